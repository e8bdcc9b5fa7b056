package prediction

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrTimeout           = errors.New("request timed out")
	ErrConnection        = errors.New("could not connect to prediction server")
	ErrRequest           = errors.New("request failed")
	ErrMalformedResponse = errors.New("invalid response from server")
)

// FormError lists input fields outside their allowed range.
type FormError struct {
	Issues []string
}

func (e *FormError) Error() string {
	return "invalid input: " + strings.Join(e.Issues, "; ")
}

// StatusError is returned for any non-200 response.
type StatusError struct {
	Code   int
	Detail string
	Body   string
}

func (e *StatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("api error %d: %s", e.Code, e.Detail)
	}
	return fmt.Sprintf("api error %d", e.Code)
}
