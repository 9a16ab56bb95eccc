// Package tools defines the callable tools exposed to the agent and the
// built-in set: calculator, clock, string reverser and a weather stub.
package tools

import (
	"context"
)

// Tool is a named, described function the agent may invoke with a single
// text argument.
type Tool interface {
	// Name returns the name the model uses to call the tool.
	Name() string
	// Description returns the documentation sent to the model.
	Description() string
	// Call executes the tool with the given input.
	Call(ctx context.Context, input string) (string, error)
}

// InputDescriber is implemented by tools that document their input argument.
type InputDescriber interface {
	InputDescription() string
}

// Func is a helper to create a Tool from a plain function.
type Func struct {
	NameString      string
	DescString      string
	InputDescString string
	CallFn          func(ctx context.Context, input string) (string, error)
}

func (f *Func) Name() string {
	return f.NameString
}

func (f *Func) Description() string {
	return f.DescString
}

func (f *Func) InputDescription() string {
	return f.InputDescString
}

func (f *Func) Call(ctx context.Context, input string) (string, error) {
	return f.CallFn(ctx, input)
}

// New creates a Tool from a function that does not need a context.
func New(name, desc string, fn func(input string) (string, error)) Tool {
	return &Func{
		NameString: name,
		DescString: desc,
		CallFn: func(_ context.Context, input string) (string, error) {
			return fn(input)
		},
	}
}
