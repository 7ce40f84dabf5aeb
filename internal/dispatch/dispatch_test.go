package dispatch

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/myra/internal/resilience"
	"github.com/MrWong99/myra/pkg/provider/llm"
	"github.com/MrWong99/myra/pkg/provider/llm/mock"
)

func TestChain(t *testing.T) {
	t.Parallel()
	var calls []string
	decline := Func(func(context.Context, string) (string, error) {
		calls = append(calls, "decline")
		return "", ErrUnhandled
	})
	answer := Func(func(_ context.Context, cmd string) (string, error) {
		calls = append(calls, "answer")
		return "echo " + cmd, nil
	})
	never := Func(func(context.Context, string) (string, error) {
		calls = append(calls, "never")
		return "", nil
	})

	got, err := Chain{decline, answer, never}.Dispatch(context.Background(), "hello there")
	if err != nil {
		t.Fatal(err)
	}
	if got != "echo hello there" {
		t.Errorf("reply = %q, want %q", got, "echo hello there")
	}
	if strings.Join(calls, ",") != "decline,answer" {
		t.Errorf("calls = %v", calls)
	}
}

func TestChain_Errors(t *testing.T) {
	t.Parallel()
	if _, err := (Chain{}).Dispatch(context.Background(), "  "); !errors.Is(err, ErrEmptyCommand) {
		t.Errorf("err = %v, want ErrEmptyCommand", err)
	}
	if _, err := (Chain{Clock{}}).Dispatch(context.Background(), "sing a song"); !errors.Is(err, ErrUnhandled) {
		t.Errorf("err = %v, want ErrUnhandled", err)
	}
	boom := errors.New("boom")
	failing := Func(func(context.Context, string) (string, error) { return "", boom })
	if _, err := (Chain{failing, Clock{}}).Dispatch(context.Background(), "what time is it"); !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
}

func TestClock(t *testing.T) {
	t.Parallel()
	c := Clock{Now: func() time.Time { return time.Date(2026, time.March, 3, 14, 5, 0, 0, time.UTC) }}
	tests := []struct {
		cmd     string
		want    string
		handled bool
	}{
		{"what time is it", "The current time is 2:05 PM.", true},
		{"Tell me the time please", "The current time is 2:05 PM.", true},
		{"what's the date", "Today is Tuesday, March 3, 2026.", true},
		{"what day is today", "Today is Tuesday, March 3, 2026.", true},
		{"how long is a marathon", "", false},
	}
	for _, tt := range tests {
		got, err := c.Dispatch(context.Background(), tt.cmd)
		if tt.handled != !errors.Is(err, ErrUnhandled) {
			t.Errorf("Dispatch(%q) err = %v, handled want %v", tt.cmd, err, tt.handled)
			continue
		}
		if got != tt.want {
			t.Errorf("Dispatch(%q) = %q, want %q", tt.cmd, got, tt.want)
		}
	}
}

func TestLLM_Dispatch(t *testing.T) {
	t.Parallel()
	p := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "  Paris is the capital of France.  "}}
	d := NewLLM(p)

	got, err := d.Dispatch(context.Background(), "what is the capital of france")
	if err != nil {
		t.Fatal(err)
	}
	if got != "Paris is the capital of France." {
		t.Errorf("reply = %q", got)
	}

	calls := p.Calls()
	if len(calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(calls))
	}
	req := calls[0].Req
	if req.SystemPrompt != DefaultSystemPrompt {
		t.Errorf("SystemPrompt = %q", req.SystemPrompt)
	}
	if req.Temperature != 0.7 || req.MaxTokens != DefaultMaxTokens {
		t.Errorf("Temperature = %v, MaxTokens = %d", req.Temperature, req.MaxTokens)
	}
	if len(req.Messages) != 1 || req.Messages[0].Role != llm.RoleUser {
		t.Errorf("Messages = %+v", req.Messages)
	}
	if _, ok := calls[0].Ctx.Deadline(); !ok {
		t.Error("completion context has no deadline")
	}
}

func TestLLM_History(t *testing.T) {
	t.Parallel()
	n := 0
	p := &mock.Provider{CompleteFunc: func(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		n++
		return &llm.CompletionResponse{Content: "answer " + string(rune('0'+n))}, nil
	}}
	d := NewLLM(p, WithLLMConfig(LLMConfig{History: 1}))

	for _, q := range []string{"first question", "second question", "third question"} {
		if _, err := d.Dispatch(context.Background(), q); err != nil {
			t.Fatal(err)
		}
	}
	last := p.Calls()[2].Req.Messages
	if len(last) != 3 {
		t.Fatalf("len(Messages) = %d, want 3 (one pair of history plus the command)", len(last))
	}
	if last[0].Content != "second question" || last[1].Content != "answer 2" || last[2].Content != "third question" {
		t.Errorf("Messages = %+v", last)
	}

	d.Reset()
	if _, err := d.Dispatch(context.Background(), "fresh start"); err != nil {
		t.Fatal(err)
	}
	if got := len(p.Calls()[3].Req.Messages); got != 1 {
		t.Errorf("after Reset len(Messages) = %d, want 1", got)
	}
}

func TestLLM_Errors(t *testing.T) {
	t.Parallel()
	if _, err := NewLLM(&mock.Provider{}).Dispatch(context.Background(), " "); !errors.Is(err, ErrEmptyCommand) {
		t.Errorf("err = %v, want ErrEmptyCommand", err)
	}
	if _, err := NewLLM(&mock.Provider{}).Dispatch(context.Background(), "hello"); err == nil {
		t.Error("expected error for empty reply")
	}

	boom := errors.New("connection refused")
	d := NewLLM(&mock.Provider{CompleteErr: boom})
	if _, err := d.Dispatch(context.Background(), "hello"); !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
}

func TestLLM_Breaker(t *testing.T) {
	t.Parallel()
	p := &mock.Provider{CompleteErr: errors.New("connection refused")}
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "llm", MaxFailures: 1, ResetTimeout: time.Hour})
	d := NewLLM(p, WithBreaker(cb))

	_, _ = d.Dispatch(context.Background(), "hello")
	if _, err := d.Dispatch(context.Background(), "hello again"); !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Errorf("err = %v, want ErrCircuitOpen", err)
	}
	if got := len(p.Calls()); got != 1 {
		t.Errorf("provider calls = %d, want 1", got)
	}
}

func TestLLM_Timeout(t *testing.T) {
	t.Parallel()
	p := &mock.Provider{CompleteFunc: func(ctx context.Context, _ llm.CompletionRequest) (*llm.CompletionResponse, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	cfg := DefaultLLMConfig()
	cfg.Timeout = 20 * time.Millisecond
	d := NewLLM(p, WithLLMConfig(cfg))

	if _, err := d.Dispatch(context.Background(), "tell me a long story"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want DeadlineExceeded", err)
	}
}
