package prediction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func sampleRequest() Request {
	return Request{Age: 30, Weight: 65, Height: 1.7, IncomeLPA: 10, Smoker: false, City: "Mumbai", Occupation: "student"}
}

func newTestServer(t *testing.T, status int, body string) (*httptest.Server, *Request) {
	t.Helper()
	var got Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected JSON content type, got %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

func TestClient_PredictFlatResponse(t *testing.T) {
	srv, got := newTestServer(t, http.StatusOK,
		`{"predicted_category":"Medium","confidence":0.82,"class_probabilities":{"Low":0.1,"Medium":0.82,"High":0.08}}`)

	res, err := NewClient(srv.URL).Predict(context.Background(), sampleRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *got != sampleRequest() {
		t.Errorf("server received %+v", *got)
	}
	if res.Category != "Medium" || res.Confidence != 0.82 || len(res.Probabilities) != 3 {
		t.Errorf("unexpected result: %+v", res)
	}

	var out bytes.Buffer
	Render(&out, res)
	s := out.String()
	for _, want := range []string{"Medium", "82%", "Low: 10%", "High: 8%"} {
		if !strings.Contains(s, want) {
			t.Errorf("rendered output missing %q:\n%s", want, s)
		}
	}
}

func TestClient_PredictNestedResponse(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusOK, `{"response":{"predicted_category":"High","confidence":0.6}}`)

	res, err := NewClient(srv.URL).Predict(context.Background(), sampleRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Category != "High" || res.Confidence != 0.6 {
		t.Errorf("unexpected result: %+v", res)
	}
	if res.Probabilities == nil || len(res.Probabilities) != 0 {
		t.Errorf("expected empty probabilities, got %v", res.Probabilities)
	}
}

func TestClient_PredictDefaults(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusOK, `{}`)

	res, err := NewClient(srv.URL).Predict(context.Background(), sampleRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Category != "Unknown" || res.Confidence != 0 {
		t.Errorf("unexpected defaults: %+v", res)
	}
}

func TestClient_StatusErrorWithDetail(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusUnprocessableEntity, `{"detail":"age out of range"}`)

	_, err := NewClient(srv.URL).Predict(context.Background(), sampleRequest())
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.Code != 422 || se.Detail != "age out of range" {
		t.Errorf("unexpected status error: %+v", se)
	}
}

func TestClient_StatusErrorPlainBody(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusBadGateway, "upstream down")

	_, err := NewClient(srv.URL).Predict(context.Background(), sampleRequest())
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.Detail != "" || se.Body != "upstream down" {
		t.Errorf("unexpected status error: %+v", se)
	}
}

func TestClient_MalformedResponse(t *testing.T) {
	for _, body := range []string{"not json", "[1,2]", "null", `{"confidence":"high"}`} {
		srv, _ := newTestServer(t, http.StatusOK, body)
		_, err := NewClient(srv.URL).Predict(context.Background(), sampleRequest())
		if !errors.Is(err, ErrMalformedResponse) {
			t.Errorf("%q: expected ErrMalformedResponse, got %v", body, err)
		}
	}
}

func TestClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, WithTimeout(20*time.Millisecond)).Predict(context.Background(), sampleRequest())
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("expected ErrTimeout, got %v", err)
	}
}

func TestClient_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(url).Predict(context.Background(), sampleRequest())
	if !errors.Is(err, ErrConnection) {
		t.Errorf("expected ErrConnection, got %v", err)
	}
}

func TestClient_InvalidURL(t *testing.T) {
	_, err := NewClient("://bad").Predict(context.Background(), sampleRequest())
	if !errors.Is(err, ErrRequest) {
		t.Errorf("expected ErrRequest, got %v", err)
	}
}
