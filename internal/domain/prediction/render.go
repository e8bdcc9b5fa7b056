package prediction

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// Render writes a successful prediction the way the form displays it.
func Render(w io.Writer, res *Result) {
	fmt.Fprintf(w, "Predicted Insurance Premium Category: %s\n", res.Category)
	if res.Confidence > 0 {
		fmt.Fprintf(w, "Confidence: %s\n", Percent(res.Confidence))
	}
	if len(res.Probabilities) == 0 {
		return
	}
	fmt.Fprintln(w, "Prediction Probabilities:")
	for _, name := range rankedClasses(res.Probabilities) {
		fmt.Fprintf(w, "  %s: %s\n", name, Percent(res.Probabilities[name]))
	}
}

// RenderError writes a user-facing message for err, with a hint where one helps.
func RenderError(w io.Writer, err error) {
	var (
		formErr   *FormError
		statusErr *StatusError
	)
	switch {
	case errors.As(err, &formErr):
		fmt.Fprintln(w, "Invalid input:")
		for _, issue := range formErr.Issues {
			fmt.Fprintf(w, "  - %s\n", issue)
		}
	case errors.As(err, &statusErr):
		fmt.Fprintf(w, "API Error: %d\n", statusErr.Code)
		if statusErr.Detail != "" {
			fmt.Fprintf(w, "Details: %s\n", statusErr.Detail)
		} else if statusErr.Body != "" {
			fmt.Fprintf(w, "Response: %s\n", statusErr.Body)
		}
	case errors.Is(err, ErrTimeout):
		fmt.Fprintln(w, "Request timed out. The server took too long to respond.")
		fmt.Fprintln(w, "Hint: try again later or check whether the server is under heavy load.")
	case errors.Is(err, ErrConnection):
		fmt.Fprintln(w, "Could not connect to the prediction server.")
		fmt.Fprintln(w, "Hint: make sure the server is running and its port is reachable.")
	case errors.Is(err, ErrMalformedResponse):
		fmt.Fprintf(w, "Invalid response from server: %s\n", detail(err, ErrMalformedResponse))
	case errors.Is(err, ErrRequest):
		fmt.Fprintf(w, "Request failed: %s\n", detail(err, ErrRequest))
	default:
		fmt.Fprintf(w, "Unexpected error: %v\n", err)
	}
}

// Percent formats a probability with one decimal, dropping a trailing ".0".
func Percent(p float64) string {
	s := strconv.FormatFloat(p*100, 'f', 1, 64)
	return strings.TrimSuffix(s, ".0") + "%"
}

func rankedClasses(probs map[string]float64) []string {
	names := make([]string, 0, len(probs))
	for name := range probs {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if probs[names[i]] != probs[names[j]] {
			return probs[names[i]] > probs[names[j]]
		}
		return names[i] < names[j]
	})
	return names
}

func detail(err, sentinel error) string {
	return strings.TrimPrefix(err.Error(), sentinel.Error()+": ")
}
