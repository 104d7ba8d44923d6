package checks

// ParseResult holds the normalized output from a parser.
type ParseResult struct {
	Passed   bool        `json:"passed"`
	Summary  string      `json:"summary"`
	Findings interface{} `json:"findings,omitempty"`
}

// Parser converts raw step output into a structured ParseResult.
type Parser interface {
	Parse(stdout string, stderr string, exitCode int) ParseResult
}

// parsers maps config parser names to implementations.
var parsers = map[string]Parser{
	"generic":    &GenericParser{},
	"typescript": &TypeScriptParser{},
}

func parserFor(name string) Parser {
	if p, ok := parsers[name]; ok {
		return p
	}
	return parsers["generic"]
}
