package planner

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestProposeSendsPromptAndReturnsContent(t *testing.T) {
	var gotAuth string
	var gotReq chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": `[{"action":"wait","params":{"seconds":1}}]`}},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key123", "gpt-4o-mini", time.Second)
	out, err := c.Propose(context.Background(), "Step 'open_app' ended with status 'error'.")
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if out != `[{"action":"wait","params":{"seconds":1}}]` {
		t.Fatalf("content = %q", out)
	}
	if gotAuth != "Bearer key123" {
		t.Fatalf("auth = %q", gotAuth)
	}
	if gotReq.Model != "gpt-4o-mini" || len(gotReq.Messages) != 2 {
		t.Fatalf("request = %+v", gotReq)
	}
	if gotReq.Messages[1].Content != "Step 'open_app' ended with status 'error'." {
		t.Fatalf("user message = %q", gotReq.Messages[1].Content)
	}
}

func TestProposeSurfacesAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model overloaded"}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", "m", time.Second)
	if _, err := c.Propose(context.Background(), "x"); err == nil {
		t.Fatal("expected error")
	}
}

func TestProposeRejectsEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", "m", time.Second)
	if _, err := c.Propose(context.Background(), "x"); err == nil {
		t.Fatal("expected error")
	}
}
