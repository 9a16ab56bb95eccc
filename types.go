package toolagent

import (
	"github.com/feiskyer/toolagent/tools"
)

// Role tags a message in a conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a tool invocation proposed by the model.
type ToolCall struct {
	ID        string `json:"id" yaml:"id"`
	Name      string `json:"name" yaml:"name"`
	Arguments string `json:"arguments" yaml:"arguments"`
}

// Message is a single role-tagged entry of a conversation.
type Message struct {
	Role    Role   `json:"role" yaml:"role"`
	Content string `json:"content" yaml:"content"`

	// Sender is the agent that produced an assistant message
	Sender string `json:"sender,omitempty" yaml:"sender,omitempty"`

	// ToolCalls are set on assistant messages that request tool execution
	ToolCalls []ToolCall `json:"tool_calls,omitempty" yaml:"tool_calls,omitempty"`

	// ToolCallID and ToolName are set on tool result messages
	ToolCallID string `json:"tool_call_id,omitempty" yaml:"tool_call_id,omitempty"`
	ToolName   string `json:"tool_name,omitempty" yaml:"tool_name,omitempty"`
}

// UserMessage creates a user message with the given content.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// Agent represents an AI agent with its configuration and tools.
type Agent struct {
	// Name identifies the agent
	Name string

	// Model specifies the model to use (e.g., "openai/gpt-4o")
	Model string

	// Instructions can be either a string or a function returning a string
	// that provides the system message for the agent
	Instructions interface{}

	// Temperature is sent to the model when set
	Temperature *float64

	// Tools that this agent can call
	Tools []tools.Tool

	// ParallelToolCalls lets the model request several tools in one turn.
	// They are still executed one after another.
	ParallelToolCalls bool
}

// Response encapsulates the outcome of an agent interaction.
type Response struct {
	// Messages contains the messages produced during the run
	Messages []Message

	// Agent is the agent that produced the response
	Agent *Agent

	// Turns is the number of model calls made
	Turns int

	// Completed is false when the run stopped at the turn limit while the
	// model was still calling tools
	Completed bool
}

// FinalContent returns the content of the last assistant message.
func (r *Response) FinalContent() string {
	if r == nil {
		return ""
	}
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == RoleAssistant {
			return r.Messages[i].Content
		}
	}
	return ""
}

// NewAgent creates a new Agent with default values.
func NewAgent(name string) *Agent {
	return &Agent{
		Name:              name,
		Model:             DefaultModel,
		Instructions:      "You are a helpful agent.",
		Tools:             make([]tools.Tool, 0),
		ParallelToolCalls: true,
	}
}

// WithModel sets the model for the agent and returns the agent for chaining.
func (a *Agent) WithModel(model string) *Agent {
	a.Model = model
	return a
}

// WithInstructions sets the instructions for the agent and returns the agent for chaining.
func (a *Agent) WithInstructions(instructions interface{}) *Agent {
	a.Instructions = instructions
	return a
}

// WithTemperature sets the sampling temperature and returns the agent for chaining.
func (a *Agent) WithTemperature(t float64) *Agent {
	a.Temperature = &t
	return a
}

// AddTool adds tools to the agent's capabilities and returns the agent for chaining.
func (a *Agent) AddTool(t ...tools.Tool) *Agent {
	a.Tools = append(a.Tools, t...)
	return a
}
