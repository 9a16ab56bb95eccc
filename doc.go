// Package toolagent runs a language model agent that can call local tools.
//
// The model is offered a set of tools, each taking a single text input. On
// every turn it either answers or asks for one or more tool calls; the
// Runner executes the calls in order, feeds the results back and repeats
// until the model answers or the turn limit is reached. Tool failures are
// reported to the model as text and never abort a run.
//
// Key Components:
//   - Agent: model, instructions and tools used for a run
//   - Runner: the tool-calling loop on top of a ChatClient
//   - Batch: queries answered one after another with a pause in between
//   - tools: the Calculator, current_time, reverse_string and weather tools
package toolagent
