package anyllm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/myra/pkg/provider/llm"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		backend string
		model   string
		opts    []anyllmlib.Option
		wantErr bool
	}{
		{"empty backend", "", "llama3", nil, true},
		{"empty model", "ollama", "", nil, true},
		{"unsupported", "fakecloud", "m", []anyllmlib.Option{anyllmlib.WithAPIKey("dummy")}, true},
		{"ollama", "ollama", "llama3.2:1b", nil, false},
		{"case insensitive", "Ollama", "llama3.2:1b", nil, false},
		{"llamacpp", "llamacpp", "qwen", nil, false},
		{"llamafile", "llamafile", "qwen", nil, false},
		{"openai with key", "openai", "gpt-4o-mini", []anyllmlib.Option{anyllmlib.WithAPIKey("sk-test")}, false},
		{"anthropic with key", "anthropic", "claude-3-5-haiku-latest", []anyllmlib.Option{anyllmlib.WithAPIKey("sk-ant-test")}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(tt.backend, tt.model, tt.opts...)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && p.model != tt.model {
				t.Errorf("model = %q, want %q", p.model, tt.model)
			}
		})
	}
}

func TestNew_OpenAIMissingKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := New("openai", "gpt-4o-mini"); err == nil {
		t.Fatal("expected error for missing API key")
	}
}

func TestBuildParams(t *testing.T) {
	t.Parallel()
	p := &Provider{model: "llama3.2:1b"}
	got := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "Answer briefly in 1-2 sentences.",
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: "what is the capital of france"},
			{Role: llm.RoleAssistant, Content: "Paris."},
			{Role: llm.RoleUser, Content: "and of spain"},
		},
		Temperature: 0.7,
		MaxTokens:   80,
	})

	if got.Model != "llama3.2:1b" {
		t.Errorf("Model = %q", got.Model)
	}
	if len(got.Messages) != 4 {
		t.Fatalf("len(Messages) = %d, want 4", len(got.Messages))
	}
	if got.Messages[0].Role != anyllmlib.RoleSystem {
		t.Errorf("first role = %q, want system", got.Messages[0].Role)
	}
	if got.Messages[2].Role != llm.RoleAssistant || got.Messages[2].ContentString() != "Paris." {
		t.Errorf("history message = %+v", got.Messages[2])
	}
	if got.Temperature == nil || *got.Temperature != 0.7 {
		t.Errorf("Temperature = %v, want 0.7", got.Temperature)
	}
	if got.MaxTokens == nil || *got.MaxTokens != 80 {
		t.Errorf("MaxTokens = %v, want 80", got.MaxTokens)
	}
}

func TestBuildParams_Defaults(t *testing.T) {
	t.Parallel()
	p := &Provider{model: "m"}
	got := p.buildParams(llm.CompletionRequest{Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}}})
	if len(got.Messages) != 1 {
		t.Errorf("len(Messages) = %d, want 1 without system prompt", len(got.Messages))
	}
	if got.Temperature != nil || got.MaxTokens != nil {
		t.Error("zero temperature and max tokens should leave provider defaults")
	}
}

func TestComplete_NoMessages(t *testing.T) {
	p, err := NewOllama("llama3.2:1b")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Complete(context.Background(), llm.CompletionRequest{}); err == nil {
		t.Error("expected error for empty request")
	}
}

func TestComplete_LlamaCpp(t *testing.T) {
	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		var body struct {
			Model string `json:"model"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotModel = body.Model
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "c1", "object": "chat.completion", "created": 0, "model": "qwen",
			"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "Madrid."}}],
			"usage": {"prompt_tokens": 20, "completion_tokens": 2, "total_tokens": 22}
		}`))
	}))
	defer srv.Close()

	p, err := NewLlamaCpp("qwen", anyllmlib.WithBaseURL(srv.URL+"/v1"))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "capital of spain"}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "Madrid." {
		t.Errorf("Content = %q, want %q", resp.Content, "Madrid.")
	}
	if gotModel != "qwen" {
		t.Errorf("model = %q, want qwen", gotModel)
	}
}
