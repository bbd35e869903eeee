package conversation

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/llms"
)

// Role identifies the kind of message in a thread.
type Role string

// Message roles. The first message submitted to the model is always a
// system message; tool_result messages answer assistant tool calls.
const (
	RoleSystem     Role = "system"
	RoleUser       Role = "user"
	RoleAssistant  Role = "assistant"
	RoleToolResult Role = "tool_result"
)

// ToolCall is a single tool invocation requested by the model inside an
// assistant message. Arguments are a flat string-keyed map, matching the
// string-typed parameter schemas the tool bridge exposes.
type ToolCall struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Arguments map[string]string `json:"arguments"`
}

// Message is one entry in a conversation thread.
//
// Field usage by role:
//   - system, user: Content only
//   - assistant: Content (may be empty) and zero or more ToolCalls
//   - tool_result: Content plus ToolCallID/ToolName back-references
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolName   string     `json:"tool_name,omitempty"`
}

// System creates a system message.
func System(text string) Message {
	return Message{Role: RoleSystem, Content: text}
}

// User creates a user message.
func User(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

// Assistant creates an assistant message with optional tool calls.
func Assistant(text string, calls ...ToolCall) Message {
	return Message{Role: RoleAssistant, Content: text, ToolCalls: calls}
}

// ToolResult creates a tool_result message answering the given call.
func ToolResult(callID, toolName, content string) Message {
	return Message{Role: RoleToolResult, Content: content, ToolCallID: callID, ToolName: toolName}
}

// HasToolCalls reports whether m is an assistant message requesting tools.
func (m Message) HasToolCalls() bool {
	return m.Role == RoleAssistant && len(m.ToolCalls) > 0
}

// ToModelMessages converts thread messages to the model wire form.
func ToModelMessages(msgs []Message) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toModelMessage(m))
	}
	return out
}

func toModelMessage(m Message) llms.MessageContent {
	switch m.Role {
	case RoleSystem:
		return llms.TextParts(llms.ChatMessageTypeSystem, m.Content)
	case RoleUser:
		return llms.TextParts(llms.ChatMessageTypeHuman, m.Content)
	case RoleToolResult:
		return llms.MessageContent{
			Role: llms.ChatMessageTypeTool,
			Parts: []llms.ContentPart{llms.ToolCallResponse{
				ToolCallID: m.ToolCallID,
				Name:       m.ToolName,
				Content:    m.Content,
			}},
		}
	default: // assistant
		mc := llms.MessageContent{Role: llms.ChatMessageTypeAI}
		if m.Content != "" {
			mc.Parts = append(mc.Parts, llms.TextContent{Text: m.Content})
		}
		for _, tc := range m.ToolCalls {
			args, err := json.Marshal(tc.Arguments)
			if err != nil {
				args = []byte("{}")
			}
			mc.Parts = append(mc.Parts, llms.ToolCall{
				ID:   tc.ID,
				Type: "function",
				FunctionCall: &llms.FunctionCall{
					Name:      tc.Name,
					Arguments: string(args),
				},
			})
		}
		return mc
	}
}

// AssistantFromChoice converts a model content choice into an assistant
// message, decoding any tool-call arguments. Calls missing an id get a
// generated one so tool results can reference them.
func AssistantFromChoice(choice *llms.ContentChoice) (Message, error) {
	msg := Message{Role: RoleAssistant, Content: choice.Content}

	for _, tc := range choice.ToolCalls {
		if tc.FunctionCall == nil {
			continue
		}
		args, err := decodeArguments(tc.FunctionCall.Arguments)
		if err != nil {
			return Message{}, fmt.Errorf("decoding arguments for tool %q: %w", tc.FunctionCall.Name, err)
		}
		id := tc.ID
		if id == "" {
			id = uuid.NewString()
		}
		msg.ToolCalls = append(msg.ToolCalls, ToolCall{
			ID:        id,
			Name:      tc.FunctionCall.Name,
			Arguments: args,
		})
	}

	return msg, nil
}

// decodeArguments parses the model-provided JSON argument blob into a flat
// string map. Non-string scalars are stringified; nested values are kept as
// their JSON encoding.
func decodeArguments(raw string) (map[string]string, error) {
	if raw == "" {
		return map[string]string{}, nil
	}

	var decoded map[string]any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, err
	}

	args := make(map[string]string, len(decoded))
	for k, v := range decoded {
		switch val := v.(type) {
		case string:
			args[k] = val
		case float64:
			args[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			args[k] = strconv.FormatBool(val)
		case nil:
			args[k] = ""
		default:
			b, err := json.Marshal(val)
			if err != nil {
				return nil, err
			}
			args[k] = string(b)
		}
	}
	return args, nil
}
