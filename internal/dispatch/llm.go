package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/myra/internal/resilience"
	"github.com/MrWong99/myra/pkg/provider/llm"
)

// Defaults for [LLMConfig].
const (
	DefaultSystemPrompt = "You are Myra, a friendly voice assistant. Answer briefly in 1-2 sentences. " +
		"Your answer is read aloud, so do not use lists, markdown or emoji."
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 80
	DefaultTimeout     = 8 * time.Second
	DefaultHistory     = 4
)

// LLMConfig tunes the language-model dispatcher.
type LLMConfig struct {
	SystemPrompt string
	Temperature  float64
	MaxTokens    int

	// Timeout bounds a single completion.
	Timeout time.Duration

	// History is how many previous question/answer pairs are sent along
	// with each command. Zero disables history.
	History int
}

// DefaultLLMConfig returns the short-answer configuration used for spoken
// replies.
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		SystemPrompt: DefaultSystemPrompt,
		Temperature:  DefaultTemperature,
		MaxTokens:    DefaultMaxTokens,
		Timeout:      DefaultTimeout,
		History:      DefaultHistory,
	}
}

// LLMOption configures an [LLM].
type LLMOption func(*LLM)

// WithLLMConfig replaces the default configuration.
func WithLLMConfig(cfg LLMConfig) LLMOption {
	return func(d *LLM) { d.cfg = cfg }
}

// WithBreaker routes completions through cb so that a dead model server
// fails fast instead of costing Timeout on every command.
func WithBreaker(cb *resilience.CircuitBreaker) LLMOption {
	return func(d *LLM) { d.breaker = cb }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) LLMOption {
	return func(d *LLM) { d.log = l }
}

// LLM sends commands to a language model and keeps a short conversation
// history so follow-up questions within one awake session make sense.
// It is safe for concurrent use.
type LLM struct {
	provider llm.Provider
	breaker  *resilience.CircuitBreaker
	log      *slog.Logger

	mu      sync.Mutex
	cfg     LLMConfig
	history []llm.Message
}

var _ Dispatcher = (*LLM)(nil)

// NewLLM creates an LLM dispatcher backed by p.
func NewLLM(p llm.Provider, opts ...LLMOption) *LLM {
	d := &LLM{provider: p, cfg: DefaultLLMConfig(), log: slog.Default()}
	for _, o := range opts {
		o(d)
	}
	return d
}

// SetConfig swaps the configuration. The history is kept.
func (d *LLM) SetConfig(cfg LLMConfig) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfg = cfg
	d.trimLocked()
}

// Dispatch implements [Dispatcher].
func (d *LLM) Dispatch(ctx context.Context, cmd string) (string, error) {
	cmd = strings.TrimSpace(cmd)
	if cmd == "" {
		return "", ErrEmptyCommand
	}

	d.mu.Lock()
	cfg := d.cfg
	msgs := make([]llm.Message, 0, len(d.history)+1)
	msgs = append(msgs, d.history...)
	d.mu.Unlock()
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: cmd})

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	req := llm.CompletionRequest{
		Messages:     msgs,
		SystemPrompt: cfg.SystemPrompt,
		Temperature:  cfg.Temperature,
		MaxTokens:    cfg.MaxTokens,
	}

	start := time.Now()
	var resp *llm.CompletionResponse
	call := func() error {
		var err error
		resp, err = d.provider.Complete(ctx, req)
		return err
	}
	var err error
	if d.breaker != nil {
		err = d.breaker.Execute(call)
	} else {
		err = call()
	}
	if err != nil {
		return "", fmt.Errorf("dispatch: llm: %w", err)
	}

	reply := strings.TrimSpace(resp.Content)
	if reply == "" {
		return "", errors.New("dispatch: llm returned an empty reply")
	}

	d.log.Debug("dispatch: llm reply",
		"command", cmd,
		"latency", time.Since(start),
		"tokens", resp.Usage.TotalTokens,
	)

	d.mu.Lock()
	d.history = append(d.history,
		llm.Message{Role: llm.RoleUser, Content: cmd},
		llm.Message{Role: llm.RoleAssistant, Content: reply},
	)
	d.trimLocked()
	d.mu.Unlock()
	return reply, nil
}

// Reset forgets the conversation history. Call it when the session ends.
func (d *LLM) Reset() {
	d.mu.Lock()
	d.history = nil
	d.mu.Unlock()
}

func (d *LLM) trimLocked() {
	limit := 2 * d.cfg.History
	if limit <= 0 {
		d.history = nil
		return
	}
	if over := len(d.history) - limit; over > 0 {
		d.history = append(d.history[:0], d.history[over:]...)
	}
}
