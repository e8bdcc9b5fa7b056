package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ehr/patients/internal/domain/prediction"
)

func TestRun_RendersPrediction(t *testing.T) {
	var got prediction.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"predicted_category":"Medium","confidence":0.82,"class_probabilities":{"Low":0.1,"Medium":0.82,"High":0.08}}`))
	}))
	defer srv.Close()

	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs([]string{"--url", srv.URL, "--age", "45", "--smoker", "--city", "Delhi", "--occupation", "private_job"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v\n%s", err, errOut.String())
	}

	if got.Age != 45 || !got.Smoker || got.City != "Delhi" || got.Weight != 65 || got.Height != 1.7 {
		t.Errorf("unexpected request body: %+v", got)
	}
	s := out.String()
	for _, want := range []string{
		"Predicted Insurance Premium Category: Medium",
		"Confidence: 82%",
		"  Medium: 82%",
	} {
		if !strings.Contains(s, want) {
			t.Errorf("output missing %q:\n%s", want, s)
		}
	}
}

func TestRun_InvalidInputSkipsRequest(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs([]string{"--url", srv.URL, "--age", "0", "--occupation", "astronaut"})
	err := cmd.Execute()

	var formErr *prediction.FormError
	if !errors.As(err, &formErr) {
		t.Fatalf("expected FormError, got %v", err)
	}
	if called {
		t.Error("request must not be sent for invalid input")
	}
	if !strings.Contains(errOut.String(), "Invalid input:") {
		t.Errorf("unexpected output: %s", errOut.String())
	}
}

func TestRun_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"detail":"city not supported"}`))
	}))
	defer srv.Close()

	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs([]string{"--url", srv.URL})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error")
	}
	s := errOut.String()
	if !strings.Contains(s, "API Error: 422") || !strings.Contains(s, "Details: city not supported") {
		t.Errorf("unexpected output: %s", s)
	}
}
