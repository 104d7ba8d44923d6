package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiRecorder struct {
	statuses []map[string]string
	statusOn []string
	comments []string
	authHdr  string
}

func newTestClient(t *testing.T, comment bool, mux func(rec *apiRecorder) *http.ServeMux) (*Client, *apiRecorder) {
	t.Helper()
	rec := &apiRecorder{}
	srv := httptest.NewServer(mux(rec))
	t.Cleanup(srv.Close)

	c, err := NewClient(ClientOpts{Token: "tkn", APIURL: srv.URL, Comment: comment})
	require.NoError(t, err)
	return c, rec
}

func defaultMux(rec *apiRecorder) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /repos/acme/web/statuses/{sha}", func(w http.ResponseWriter, r *http.Request) {
		rec.authHdr = r.Header.Get("Authorization")
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		rec.statuses = append(rec.statuses, body)
		rec.statusOn = append(rec.statusOn, r.PathValue("sha"))
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{}`)
	})
	mux.HandleFunc("GET /repos/acme/web/pulls/42", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"number":42,"head":{"sha":"headsha42"}}`)
	})
	mux.HandleFunc("POST /repos/acme/web/issues/42/comments", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		rec.comments = append(rec.comments, body["body"])
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{}`)
	})
	return mux
}

func TestReport_CommitStatus(t *testing.T) {
	c, rec := newTestClient(t, false, defaultMux)

	err := c.Report(context.Background(), Status{
		Repo:        "acme/web",
		SHA:         "abc1234def",
		State:       StateSuccess,
		Context:     "ci/frontend",
		Description: "Build passed",
		TargetURL:   "https://ci.example.com/run/1",
	})
	require.NoError(t, err)

	require.Len(t, rec.statuses, 1)
	assert.Equal(t, "abc1234def", rec.statusOn[0])
	assert.Equal(t, "success", rec.statuses[0]["state"])
	assert.Equal(t, "ci/frontend", rec.statuses[0]["context"])
	assert.Equal(t, "https://ci.example.com/run/1", rec.statuses[0]["target_url"])
	assert.Equal(t, "Bearer tkn", rec.authHdr)
	assert.Empty(t, rec.comments)
}

func TestReport_LooksUpPRHeadAndComments(t *testing.T) {
	c, rec := newTestClient(t, true, defaultMux)

	err := c.Report(context.Background(), Status{
		Repo:        "acme/web",
		PRNumber:    "42",
		State:       StateFailure,
		Context:     "ci/frontend",
		Description: "build failed",
	})
	require.NoError(t, err)

	require.Len(t, rec.statusOn, 1)
	assert.Equal(t, "headsha42", rec.statusOn[0])
	require.Len(t, rec.comments, 1)
	assert.Contains(t, rec.comments[0], "build failed")
	assert.Contains(t, rec.comments[0], "headsha")
}

func TestReport_PendingDoesNotComment(t *testing.T) {
	c, rec := newTestClient(t, true, defaultMux)

	err := c.Report(context.Background(), Status{Repo: "acme/web", SHA: "abc", PRNumber: "42", State: StatePending, Context: "ci"})
	require.NoError(t, err)
	assert.Len(t, rec.statuses, 1)
	assert.Empty(t, rec.comments)
}

func TestReport_APIFailureIsReportingError(t *testing.T) {
	c, _ := newTestClient(t, false, func(rec *apiRecorder) *http.ServeMux {
		mux := http.NewServeMux()
		mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"message":"Bad credentials"}`, http.StatusUnauthorized)
		})
		return mux
	})

	err := c.Report(context.Background(), Status{Repo: "acme/web", SHA: "abc", State: StateSuccess, Context: "ci"})
	var repErr *ReportingError
	require.True(t, errors.As(err, &repErr))
	assert.Equal(t, "create status", repErr.Op)
}

func TestReport_InvalidInput(t *testing.T) {
	c, rec := newTestClient(t, false, defaultMux)

	cases := []Status{
		{Repo: "acme", SHA: "abc"},
		{Repo: "acme/web", PRNumber: "x"},
		{Repo: "acme/web"},
	}
	for _, st := range cases {
		err := c.Report(context.Background(), st)
		var repErr *ReportingError
		assert.True(t, errors.As(err, &repErr), "status %+v", st)
	}
	assert.Empty(t, rec.statuses)
}

func TestNopReporter(t *testing.T) {
	assert.NoError(t, NopReporter{}.Report(context.Background(), Status{}))
}

func TestTruncate(t *testing.T) {
	long := strings.Repeat("a", 200)
	got := truncate(long, 140)
	assert.Len(t, got, 140)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Equal(t, "short", truncate("short", 140))
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	desc := "unstable: " + strings.Repeat("ビルド", 60) + " failed"
	got := truncate(desc, 140)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, 140, utf8.RuneCountInString(got))
	assert.True(t, strings.HasSuffix(got, "..."))
}

func TestReport_EscapesRef(t *testing.T) {
	var gotPath string
	c, _ := newTestClient(t, false, func(rec *apiRecorder) *http.ServeMux {
		mux := http.NewServeMux()
		mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.EscapedPath()
			w.WriteHeader(http.StatusCreated)
			fmt.Fprint(w, `{}`)
		})
		return mux
	})

	err := c.Report(context.Background(), Status{Repo: "acme/web", SHA: "abc def", State: StateSuccess, Context: "ci"})
	require.NoError(t, err)
	assert.Equal(t, "/repos/acme/web/statuses/abc%20def", gotPath)
}
