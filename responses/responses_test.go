package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestDo(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte(`short and stout`))
	}))
	defer server.Close()

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, nil)
	if err != nil {
		t.Fatal(err)
	}

	resp, err := Do(server.Client(), req)
	if err != nil {
		t.Fatal(err)
	}

	if resp.StatusCode != http.StatusTeapot {
		t.Errorf("expected status %v, got %v", http.StatusTeapot, resp.StatusCode)
	}
	if string(resp.Body) != "short and stout" {
		t.Errorf("unexpected body %q", resp.Body)
	}
}

func TestDoInterrupted(t *testing.T) {
	block := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	if err != nil {
		t.Fatal(err)
	}

	_, err = Do(server.Client(), req)

	if !errors.Is(err, ErrInterrupted) {
		t.Fatalf("expected ErrInterrupted, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected the context error to be wrapped, got %v", err)
	}
}

func TestDoTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		t.Fatal(err)
	}

	_, err = Do(http.DefaultClient, req)

	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected a TransportError, got %v", err)
	}
	if errors.Is(err, ErrInterrupted) {
		t.Error("a closed server should not look like an interruption")
	}
}

func TestAssertSuccess(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status  int
		wantErr bool
	}{
		{status: 199, wantErr: true},
		{status: 200, wantErr: false},
		{status: 204, wantErr: false},
		{status: 299, wantErr: false},
		{status: 300, wantErr: true},
		{status: 400, wantErr: true},
		{status: 503, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			err := AssertSuccess(&Response{StatusCode: tt.status, Body: []byte("nope")})

			if !tt.wantErr {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}

			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected an APIError, got %v", err)
			}
			if apiErr.StatusCode != tt.status || apiErr.Body != "nope" {
				t.Errorf("unexpected error contents %+v", apiErr)
			}
		})
	}
}

func TestAPIErrorMessage(t *testing.T) {
	err := &APIError{StatusCode: 400, Body: `{"error":"bad"}`}

	expected := `unsuccessful HTTP response (400): {"error":"bad"}`
	if err.Error() != expected {
		t.Errorf("expected %q, got %q", expected, err.Error())
	}
}

func TestParseJSONObject(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{name: "object", body: `{"a":{"b":[1,2]}}`},
		{name: "empty object", body: `{}`},
		{name: "whitespace", body: " \n{\"a\":1}\n"},
		{name: "array", body: `[1,2,3]`, wantErr: true},
		{name: "string", body: `"hello"`, wantErr: true},
		{name: "number", body: `42`, wantErr: true},
		{name: "html", body: `<html></html>`, wantErr: true},
		{name: "truncated", body: `{"a":`, wantErr: true},
		{name: "empty", body: ``, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj, err := ParseJSONObject(&Response{StatusCode: 200, Body: []byte(tt.body)})

			if tt.wantErr {
				var parseErr *ParseError
				if !errors.As(err, &parseErr) {
					t.Errorf("expected a ParseError, got %v", err)
				}
				return
			}

			if err != nil {
				t.Fatal(err)
			}
			if !json.Valid(obj) {
				t.Errorf("returned object is not valid JSON: %s", obj)
			}
		})
	}
}

func TestStringField(t *testing.T) {
	t.Parallel()

	obj := json.RawMessage(`{"access_token":"abc","expires_in":3600,"a.b":"dotted"}`)

	value, err := StringField(obj, "access_token")
	if err != nil {
		t.Fatal(err)
	}
	if value != "abc" {
		t.Errorf("expected abc, got %v", value)
	}

	value, err = StringField(obj, "a.b")
	if err != nil {
		t.Fatal(err)
	}
	if value != "dotted" {
		t.Errorf("expected dotted, got %v", value)
	}

	for _, field := range []string{"expires_in", "missing"} {
		_, err := StringField(obj, field)

		var parseErr *ParseError
		if !errors.As(err, &parseErr) {
			t.Fatalf("expected a ParseError for %v, got %v", field, err)
		}
		if parseErr.Field != field {
			t.Errorf("expected field %q, got %q", field, parseErr.Field)
		}
	}
}
