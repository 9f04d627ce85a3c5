package api

import (
	"fmt"
	"net/http"
)

// ValidationError reports a missing or malformed request parameter.
type ValidationError struct {
	Param  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Reason, e.Param)
}

func missingParam(name string) *ValidationError {
	return &ValidationError{Param: name, Reason: "missing required parameter"}
}

func invalidParam(name string) *ValidationError {
	return &ValidationError{Param: name, Reason: "invalid date-time parameter"}
}

// badRequest writes msg as a 400 text/plain response. Every failure of
// this API is reported this way.
func badRequest(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusBadRequest)
	_, _ = w.Write([]byte(msg))
}
