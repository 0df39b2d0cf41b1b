package manifest

import "fmt"

// ParseError reports a malformed resource manifest.
// Line numbers are 1-based.
type ParseError struct {
	Line int
	Msg  string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("line %d of resource manifest: %s: %v", e.Line, e.Msg, e.Err)
	}
	return fmt.Sprintf("line %d of resource manifest: %s", e.Line, e.Msg)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func parseErrf(line int, format string, args ...interface{}) *ParseError {
	return &ParseError{Line: line, Msg: fmt.Sprintf(format, args...)}
}
