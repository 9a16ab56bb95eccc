package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"github.com/feiskyer/toolagent"
	"github.com/feiskyer/toolagent/tools"
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
		With().
		Timestamp().
		Logger()

	runner, err := toolagent.NewDefaultRunner()
	if err != nil {
		fmt.Printf("Failed to create runner: %v\n", err)
		for _, hint := range errors.GetAllHints(err) {
			fmt.Printf("Hint: %s\n", hint)
		}
		os.Exit(1)
	}
	runner.WithLogger(logger)

	// Register the built-in tools plus a custom one
	registry := tools.NewDefaultRegistry(time.Now)
	shout := tools.New("shout", "Convert text to upper case.", func(s string) (string, error) {
		return strings.ToUpper(s) + "!", nil
	})
	if err := registry.Register(shout); err != nil {
		logger.Fatal().Err(err).Msg("Failed to register tool")
	}

	agent := toolagent.NewAgent("Assistant").
		WithInstructions("You are a helpful assistant. Use the tools when they help.").
		WithTemperature(0).
		AddTool(registry.List()...)

	query := "What is 25 * 4 + 10? Then shout the answer."
	resp, err := runner.Run(context.Background(), agent, []toolagent.Message{toolagent.UserMessage(query)}, toolagent.RunOptions{})
	if err != nil {
		logger.Fatal().Err(err).Msg("Query failed")
	}

	fmt.Printf("Query: %s\n", query)
	fmt.Printf("Answer: %s\n", resp.FinalContent())
}

