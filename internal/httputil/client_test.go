package httputil

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
)

func TestStandardClient_Wraps(t *testing.T) {
	customClient := &http.Client{}
	client := NewStandardClient(customClient)
	if client.Client != customClient {
		t.Error("expected custom client to be wrapped")
	}

	fallback := NewStandardClient(nil)
	if fallback.Client != http.DefaultClient {
		t.Error("nil should fall back to http.DefaultClient")
	}
}

func TestMockHTTPClient_Get(t *testing.T) {
	mock := NewMockHTTPClient()
	mock.AddResponse(http.StatusOK, `{"axis": "mono"}`)

	resp, err := mock.Get("http://localhost:8477/api/axes/mono")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("got status %d, want %d", resp.StatusCode, http.StatusOK)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != `{"axis": "mono"}` {
		t.Errorf("got body %q", string(body))
	}
	if mock.RequestCount() != 1 {
		t.Errorf("got %d requests, want 1", mock.RequestCount())
	}
}

func TestMockHTTPClient_Post(t *testing.T) {
	mock := NewMockHTTPClient()
	mock.AddResponse(http.StatusOK, `{"applied": 40}`)

	resp, err := mock.Post("http://localhost:8477/api/axes/mono/increment",
		"application/json", strings.NewReader(`{"steps": 40}`))
	if err != nil {
		t.Fatalf("Post failed: %v", err)
	}
	defer resp.Body.Close()

	req := mock.Requests[0]
	if req.Method != http.MethodPost {
		t.Errorf("method = %s", req.Method)
	}
	if ct := req.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}
}

func TestMockHTTPClient_ResponsesInOrder(t *testing.T) {
	mock := NewMockHTTPClient()
	mock.AddResponse(http.StatusOK, "first").
		AddResponse(http.StatusNotFound, "second")

	resp1, _ := mock.Get("http://localhost/one")
	resp2, _ := mock.Get("http://localhost/two")
	resp3, _ := mock.Get("http://localhost/three")

	if resp1.StatusCode != http.StatusOK || resp2.StatusCode != http.StatusNotFound {
		t.Errorf("queued responses out of order: %d, %d", resp1.StatusCode, resp2.StatusCode)
	}
	// queue exhausted: default 200 empty body
	if resp3.StatusCode != http.StatusOK {
		t.Errorf("default response status = %d", resp3.StatusCode)
	}
}

func TestMockHTTPClient_ErrorResponse(t *testing.T) {
	mock := NewMockHTTPClient()
	wantErr := errors.New("connection refused")
	mock.AddErrorResponse(wantErr)

	_, err := mock.Get("http://localhost/down")
	if !errors.Is(err, wantErr) {
		t.Errorf("got err %v, want %v", err, wantErr)
	}
}

func TestMockHTTPClient_DoFunc(t *testing.T) {
	mock := NewMockHTTPClient()
	mock.DoFunc = func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusTeapot,
			Body:       io.NopCloser(strings.NewReader("custom")),
		}, nil
	}

	resp, err := mock.Get("http://localhost/any")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if resp.StatusCode != http.StatusTeapot {
		t.Errorf("DoFunc not used, status = %d", resp.StatusCode)
	}
}
