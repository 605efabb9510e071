package httpx

// This package is the single permitted call site for outbound HTTP in this
// module (spec.md §4.5). Other packages must depend on httpx.Client rather
// than constructing an http.Client or calling http.Get/http.Post directly;
// a "no raw net/http outside httpx" rule should be enforced the same way
// the teacher framework enforces its internal conventions: a CI lint step
// (e.g. go vet + a custom analyzer, or golangci-lint's forbidigo linter
// configured to flag http.Get/http.Post/http.DefaultClient) rather than a
// runtime check.
