// Package trigger decides how a run obtains its source.
//
// A Context is built once per run from environment variables and CLI
// parameters, then Resolve turns it into a Plan. Resolve is pure: it does no
// I/O and always succeeds, so every run gets exactly one Plan.
package trigger
