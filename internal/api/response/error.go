package response

import (
	"errors"
	"net/http"
)

type Error struct {
	Success bool   `json:"success"`
	Code    int    `json:"code"`
	Extras  string `json:"extras"`
}

func (e Error) Error() string {
	return e.Extras
}

func NewError(code int, message string) Error {
	return Error{
		Success: false,
		Code:    code,
		Extras:  message,
	}
}

// StatusMapping pairs a sentinel error with the HTTP status it is reported as.
type StatusMapping struct {
	Err  error
	Code int
}

// FromError maps err onto the first matching status. Unmatched errors are
// reported as a 500 without leaking their text.
func FromError(err error, mappings ...StatusMapping) Error {
	for _, m := range mappings {
		if errors.Is(err, m.Err) {
			return NewError(m.Code, m.Err.Error())
		}
	}
	return NewError(http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
}
