package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrWong99/myra/pkg/provider/llm"
)

func TestConvertMessage(t *testing.T) {
	t.Parallel()
	tests := []struct {
		role    string
		wantErr bool
	}{
		{role: llm.RoleSystem},
		{role: llm.RoleUser},
		{role: llm.RoleAssistant},
		{role: "tool", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			t.Parallel()
			p, err := convertMessage(llm.Message{Role: tt.role, Content: "hi"})
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			set := map[string]bool{
				llm.RoleSystem:    p.OfSystem != nil,
				llm.RoleUser:      p.OfUser != nil,
				llm.RoleAssistant: p.OfAssistant != nil,
			}
			if !set[tt.role] {
				t.Errorf("role %s not mapped to its union member", tt.role)
			}
		})
	}
}

func TestNew(t *testing.T) {
	t.Parallel()
	if _, err := New("", "gpt-4o-mini"); err == nil {
		t.Error("expected error for empty API key without base URL")
	}
	if _, err := New("sk-test", ""); err == nil {
		t.Error("expected error for empty model")
	}
	if _, err := New("", "llama3.2:1b", WithBaseURL("http://localhost:11434/v1")); err != nil {
		t.Errorf("local server without key: %v", err)
	}
	if _, err := New("sk-test", "gpt-4o", WithOrganization("org-123")); err != nil {
		t.Errorf("unexpected error with valid options: %v", err)
	}
}

func TestBuildParams_NoMessages(t *testing.T) {
	t.Parallel()
	p := &Provider{model: "gpt-4o"}
	if _, err := p.buildParams(llm.CompletionRequest{}); err == nil {
		t.Error("expected error for empty request")
	}
}

func TestComplete(t *testing.T) {
	t.Parallel()
	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
		Temperature float64 `json:"temperature"`
		MaxTokens   int     `json:"max_completion_tokens"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The keyless base-URL setup used for Ollama.
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1", "object": "chat.completion", "created": 0, "model": "llama3.2:1b",
			"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "It is noon."}}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 4, "total_tokens": 16}
		}`))
	}))
	defer srv.Close()

	p, err := New("", "llama3.2:1b", WithBaseURL(srv.URL+"/v1"))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		SystemPrompt: "Answer briefly.",
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: "what time is it"}},
		Temperature:  0.7,
		MaxTokens:    80,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "It is noon." {
		t.Errorf("Content = %q, want %q", resp.Content, "It is noon.")
	}
	if resp.Usage.TotalTokens != 16 {
		t.Errorf("TotalTokens = %d, want 16", resp.Usage.TotalTokens)
	}

	if got.Model != "llama3.2:1b" {
		t.Errorf("model = %q", got.Model)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Content != "what time is it" {
		t.Errorf("messages = %+v", got.Messages)
	}
	if got.Temperature != 0.7 || got.MaxTokens != 80 {
		t.Errorf("temperature = %v max = %d, want 0.7 80", got.Temperature, got.MaxTokens)
	}
}

func TestComplete_HTTPError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": {"message": "model not found", "type": "invalid_request_error"}}`))
	}))
	defer srv.Close()

	p, _ := New("sk-test", "nope", WithBaseURL(srv.URL))
	if _, err := p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	}); err == nil {
		t.Error("expected error for HTTP 400")
	}
}
