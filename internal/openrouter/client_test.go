package openrouter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kalambet/xreply/internal/retry"
)

func fastRetry() retry.Config {
	return retry.Config{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestComplete(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"gen-1","choices":[{"message":{"role":"assistant","content":" Hello! "}}]}`)
	}))
	defer srv.Close()

	c := NewCompleter(NewClientWithBaseURL("test-key", srv.URL, fastRetry()), "anthropic/claude-3.5-haiku")
	text, err := c.Complete(context.Background(), "hi", 150)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if text != "Hello!" {
		t.Errorf("text = %q, want %q", text, "Hello!")
	}
	if got["model"] != "anthropic/claude-3.5-haiku" {
		t.Errorf("model = %v", got["model"])
	}
	if got["max_tokens"] != float64(150) {
		t.Errorf("max_tokens = %v, want 150", got["max_tokens"])
	}
}

func TestChat_AuthHeader(t *testing.T) {
	var gotAuth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"gen-1","choices":[]}`)
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("test-key", srv.URL, fastRetry())
	if _, err := c.Chat(context.Background(), ChatRequest{Model: "test", Messages: json.RawMessage(`[]`)}); err != nil {
		t.Fatalf("Chat: %v", err)
	}

	want := "Bearer test-key"
	if gotAuth != want {
		t.Errorf("Authorization = %q, want %q", gotAuth, want)
	}
}

func TestComplete_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"gen-1","choices":[]}`)
	}))
	defer srv.Close()

	c := NewCompleter(NewClientWithBaseURL("test-key", srv.URL, fastRetry()), "m")
	if _, err := c.Complete(context.Background(), "hi", 10); err == nil {
		t.Error("expected error for empty choices")
	}
}

func TestChat_RateLimit_Retry(t *testing.T) {
	var attempt atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := attempt.Add(1)
		if n == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"gen-1","choices":[]}`)
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("test-key", srv.URL, fastRetry())
	if _, err := c.Chat(context.Background(), ChatRequest{Model: "test"}); err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if got := attempt.Load(); got != 2 {
		t.Errorf("attempts = %d, want 2", got)
	}
}

func TestChat_RateLimit_Exhausted(t *testing.T) {
	var attempt atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempt.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("test-key", srv.URL, fastRetry())
	_, err := c.Chat(context.Background(), ChatRequest{Model: "test"})
	if err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	if !strings.Contains(err.Error(), "rate limited") {
		t.Errorf("error = %q, want it to contain %q", err.Error(), "rate limited")
	}
	if got := attempt.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestChat_NoKey(t *testing.T) {
	c := NewClient("")
	if _, err := c.Chat(context.Background(), ChatRequest{Model: "m"}); err == nil {
		t.Error("expected error without API key")
	}
}

func TestHasModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(ModelList{
			Object: "list",
			Data: []Model{
				{ID: "anthropic/claude-3.5-haiku", Object: "model"},
				{ID: "openai/gpt-4o", Object: "model"},
			},
		})
	}))
	defer srv.Close()

	client := NewClientWithBaseURL("test-key", srv.URL, fastRetry())
	ok, err := NewCompleter(client, "openai/gpt-4o").HasModel(context.Background())
	if err != nil || !ok {
		t.Errorf("HasModel(gpt-4o) = %v, %v", ok, err)
	}
	ok, err = NewCompleter(client, "meta/llama-3-70b").HasModel(context.Background())
	if err != nil || ok {
		t.Errorf("HasModel(llama) = %v, %v", ok, err)
	}
}

func TestListModels_Empty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ModelList{Object: "list", Data: nil})
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("test-key", srv.URL, fastRetry())
	models, err := c.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if len(models) != 0 {
		t.Errorf("got %d models, want 0", len(models))
	}
}

func TestChatRequest_ExtraRoundTrip(t *testing.T) {
	in := `{"model":"m","messages":[],"temperature":0.2}`
	var req ChatRequest
	if err := json.Unmarshal([]byte(in), &req); err != nil {
		t.Fatal(err)
	}
	if string(req.Extra["temperature"]) != "0.2" {
		t.Errorf("Extra = %v", req.Extra)
	}
}
