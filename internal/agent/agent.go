// Package agent runs the conversational loop between the model, the tool
// bridge, and the conversation store.
//
// A turn is a small state machine: route the user message to the model,
// read the model response, decide whether it requested tools, execute the
// requested tools in order, and feed the results back until the model
// answers with plain text or the iteration cap trips. All the messages a
// turn produces are appended to the thread in one atomic batch.
package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/tmc/langchaingo/llms"
	"golang.org/x/time/rate"

	"github.com/nviv/nviv/internal/bridge"
	"github.com/nviv/nviv/internal/conversation"
	"github.com/nviv/nviv/internal/log"
)

const (
	// DefaultMaxToolIterations caps model<->tool round trips per turn.
	DefaultMaxToolIterations = 10

	// fallbackResponse is returned when the model produces no text at all.
	fallbackResponse = "I apologize, but I couldn't generate a response. Please try rephrasing your question."

	// errorResponsePrefix opens every user-facing failure message. Chat
	// never returns a Go error; failures become text the channel can show.
	errorResponsePrefix = "I encountered an error: "
)

// step is a node of the per-turn state machine.
type step int

const (
	stepRouteToModel step = iota
	stepModelResponding
	stepDecide
	stepExecuteTools
	stepDone
)

// ToolInvoker executes a named tool. Satisfied by *bridge.Bridge.
type ToolInvoker interface {
	Invoke(ctx context.Context, name string, args map[string]string) (string, error)
}

// HistoryStore persists thread history. Satisfied by *conversation.Store.
type HistoryStore interface {
	Load(ctx context.Context, threadID string) ([]conversation.Message, error)
	Append(ctx context.Context, threadID string, msgs []conversation.Message) error
	Reset(ctx context.Context, threadID string)
}

// Config contains all required parameters for the agent.
type Config struct {
	Model   llms.Model
	Tools   []bridge.ToolSpec
	Invoker ToolInvoker
	Store   HistoryStore
	Logger  log.Logger

	// SystemPrompt is prepended to every model call. It is synthesized per
	// call and never persisted. Empty uses BuildSystemPrompt("").
	SystemPrompt string

	// MaxToolIterations caps tool round trips per turn; <= 0 uses the
	// default.
	MaxToolIterations int

	RetryConfig RetryConfig
	RateLimiter *rate.Limiter
}

// Agent drives conversation turns. Safe for concurrent use; concurrent
// turns on the same thread serialize at the store.
type Agent struct {
	model       llms.Model
	specs       []bridge.ToolSpec
	invoker     ToolInvoker
	store       HistoryStore
	logger      log.Logger
	prompt      string
	maxIter     int
	retryConfig RetryConfig
	rateLimiter *rate.Limiter

	bindOnce   sync.Once
	modelTools []llms.Tool
}

// New assembles an agent from its collaborators.
func New(cfg Config) (*Agent, error) {
	if cfg.Model == nil {
		return nil, fmt.Errorf("agent: model is required")
	}
	if cfg.Invoker == nil {
		return nil, fmt.Errorf("agent: tool invoker is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("agent: history store is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	prompt := cfg.SystemPrompt
	if prompt == "" {
		prompt = BuildSystemPrompt("")
	}
	maxIter := cfg.MaxToolIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxToolIterations
	}
	retryCfg := cfg.RetryConfig
	if retryCfg.MaxRetries == 0 && retryCfg.InitialInterval == 0 {
		retryCfg = DefaultRetryConfig()
	}

	return &Agent{
		model:       cfg.Model,
		specs:       cfg.Tools,
		invoker:     cfg.Invoker,
		store:       cfg.Store,
		logger:      logger,
		prompt:      prompt,
		maxIter:     maxIter,
		retryConfig: retryCfg,
		rateLimiter: cfg.RateLimiter,
	}, nil
}

// Chat runs one full turn for a thread and returns the assistant's reply.
// It is a total function: every internal failure is folded into an
// "I encountered an error: ..." reply instead of an error return.
func (a *Agent) Chat(ctx context.Context, message, threadID string) string {
	reply, err := a.run(ctx, message, threadID)
	if err != nil {
		a.logger.Error("turn failed", "thread_id", threadID, "error", err)
		return errorResponsePrefix + err.Error()
	}
	return reply
}

// ResetHistory wipes a thread's persisted state.
func (a *Agent) ResetHistory(ctx context.Context, threadID string) {
	a.store.Reset(ctx, threadID)
}

// toolOptions lazily builds the model tool bindings from the discovered
// specs, once per process.
func (a *Agent) toolOptions() []llms.CallOption {
	a.bindOnce.Do(func() {
		for _, spec := range a.specs {
			a.modelTools = append(a.modelTools, spec.ModelTool())
		}
	})
	if len(a.modelTools) == 0 {
		return nil
	}
	return []llms.CallOption{llms.WithTools(a.modelTools)}
}

// run executes the turn state machine and persists the turn's messages.
func (a *Agent) run(ctx context.Context, message, threadID string) (string, error) {
	history, err := a.store.Load(ctx, threadID)
	if err != nil {
		return "", fmt.Errorf("loading history: %w", err)
	}

	// The system message is synthesized for the model call only; it is
	// never written to the store.
	window := make([]conversation.Message, 0, len(history)+2)
	window = append(window, conversation.System(a.prompt))
	window = append(window, history...)

	userMsg := conversation.User(message)
	window = append(window, userMsg)
	turn := []conversation.Message{userMsg}

	var last conversation.Message
	iterations := 0
	current := stepRouteToModel

	for current != stepDone {
		switch current {
		case stepRouteToModel:
			current = stepModelResponding

		case stepModelResponding:
			assistant, err := a.callModel(ctx, window)
			if err != nil {
				return "", err
			}
			window = append(window, assistant)
			turn = append(turn, assistant)
			last = assistant
			current = stepDecide

		case stepDecide:
			if !shouldContinue(turn) {
				current = stepDone
				break
			}
			if iterations >= a.maxIter {
				a.logger.Warn("tool iteration cap reached",
					"thread_id", threadID, "max", a.maxIter)
				current = stepDone
				break
			}
			current = stepExecuteTools

		case stepExecuteTools:
			iterations++
			for _, call := range last.ToolCalls {
				result, err := a.executeTool(ctx, call)
				if err != nil {
					return "", err
				}
				window = append(window, result)
				turn = append(turn, result)
			}
			current = stepRouteToModel
		}
	}

	if err := a.store.Append(ctx, threadID, turn); err != nil {
		// The reply already exists; losing history is bad but not worth
		// failing the turn over.
		a.logger.Error("persisting turn failed", "thread_id", threadID, "error", err)
	}

	if last.Content == "" {
		return fallbackResponse, nil
	}
	return last.Content, nil
}

// callModel issues one model call over the current window and converts the
// first choice into an assistant message.
func (a *Agent) callModel(ctx context.Context, window []conversation.Message) (conversation.Message, error) {
	resp, err := a.generateWithRetry(ctx, conversation.ToModelMessages(window), a.toolOptions()...)
	if err != nil {
		return conversation.Message{}, err
	}
	if len(resp.Choices) == 0 {
		return conversation.Assistant(""), nil
	}

	assistant, err := conversation.AssistantFromChoice(resp.Choices[0])
	if err != nil {
		return conversation.Message{}, fmt.Errorf("reading model response: %w", err)
	}
	return assistant, nil
}

// executeTool invokes one tool call and wraps the outcome as a tool_result
// message. Tool-reported failures arrive as "Error: ..." result text and
// flow back to the model; a non-nil error here is a bridge-level failure
// and fails the turn.
func (a *Agent) executeTool(ctx context.Context, call conversation.ToolCall) (conversation.Message, error) {
	out, err := a.invoker.Invoke(ctx, call.Name, call.Arguments)
	if err != nil {
		return conversation.Message{}, fmt.Errorf("tool %q: %w", call.Name, err)
	}
	return conversation.ToolResult(call.ID, call.Name, out), nil
}

// shouldContinue reports whether the turn needs another tool round: true
// iff the newest message is an assistant message carrying tool calls.
func shouldContinue(msgs []conversation.Message) bool {
	if len(msgs) == 0 {
		return false
	}
	return msgs[len(msgs)-1].HasToolCalls()
}
