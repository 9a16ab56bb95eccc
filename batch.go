package toolagent

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultDelay is the pause between two queries of a batch.
	DefaultDelay = 2 * time.Second
)

// Batch is a list of queries processed one after another by the same agent.
// Settings left empty fall back to the agent's own configuration.
type Batch struct {
	// Name is the name of the batch.
	Name string `yaml:"name" toml:"name" json:"name"`
	// Model overrides the agent's model.
	Model string `yaml:"model,omitempty" toml:"model,omitempty" json:"model,omitempty"`
	// System overrides the agent's instructions.
	System string `yaml:"system,omitempty" toml:"system,omitempty" json:"system,omitempty"`
	// Temperature overrides the agent's temperature.
	Temperature *float64 `yaml:"temperature,omitempty" toml:"temperature,omitempty" json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
	// MaxTurns bounds the model calls per query.
	MaxTurns int `yaml:"max_turns" toml:"max_turns" json:"max_turns" validate:"gte=0,lte=100"`
	// Delay is the pause between queries to stay below rate limits.
	Delay time.Duration `yaml:"delay" toml:"delay" json:"delay" validate:"gte=0"`
	// Queries are sent to the agent in order.
	Queries []string `yaml:"queries" toml:"queries" json:"queries" validate:"min=1,dive,required"`
}

// QueryResult holds the outcome of one query of a batch.
type QueryResult struct {
	ID       string
	Query    string
	Answer   string
	Messages []Message
	Turns    int
	Duration time.Duration
	Err      error
}

// DefaultBatch returns the demonstration queries, one per built-in tool.
func DefaultBatch() *Batch {
	return &Batch{
		Name: "demo",
		Queries: []string{
			"What is 25 * 4 + 10?",
			"What time is it right now?",
			"Reverse the string 'Hello, tool-using agent!'",
			"What's the weather like today?",
		},
		MaxTurns: DefaultMaxTurns,
		Delay:    DefaultDelay,
	}
}

// NewBatch creates a batch for the given queries with default settings.
func NewBatch(name string, queries ...string) *Batch {
	return &Batch{
		Name:     name,
		Queries:  queries,
		MaxTurns: DefaultMaxTurns,
		Delay:    DefaultDelay,
	}
}

// Validate checks the batch and fills unset defaults.
func (b *Batch) Validate() error {
	for i, q := range b.Queries {
		b.Queries[i] = strings.TrimSpace(q)
	}
	if b.MaxTurns == 0 {
		b.MaxTurns = DefaultMaxTurns
	}
	if err := validator.New().Struct(b); err != nil {
		return errors.Wrap(err, "invalid batch")
	}
	return nil
}

type batchCodec struct {
	unmarshal func([]byte, interface{}) error
	marshal   func(interface{}) ([]byte, error)
}

func codecFor(path string) (batchCodec, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return batchCodec{unmarshal: yaml.Unmarshal, marshal: yaml.Marshal}, nil
	case ".toml":
		return batchCodec{unmarshal: toml.Unmarshal, marshal: toml.Marshal}, nil
	default:
		return batchCodec{}, errors.Newf("unsupported batch file extension %q, use .yaml, .yml or .toml", filepath.Ext(path))
	}
}

// LoadBatch reads a batch from a YAML or TOML file.
func LoadBatch(path string) (*Batch, error) {
	codec, err := codecFor(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read batch file")
	}

	// the raw keys tell an omitted delay apart from an explicit one
	var fields map[string]interface{}
	if err := codec.unmarshal(data, &fields); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal batch %s", path)
	}
	var batch Batch
	if err := codec.unmarshal(data, &batch); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal batch %s", path)
	}
	if _, ok := fields["delay"]; !ok {
		batch.Delay = DefaultDelay
	}
	if batch.Name == "" {
		batch.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	if err := batch.Validate(); err != nil {
		return nil, err
	}
	return &batch, nil
}

// Save writes the batch to a YAML or TOML file, chosen by extension.
func (b *Batch) Save(path string) error {
	codec, err := codecFor(path)
	if err != nil {
		return err
	}

	data, err := codec.marshal(b)
	if err != nil {
		return errors.Wrap(err, "failed to marshal batch")
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrap(err, "failed to write batch file")
	}
	return nil
}

// agentFor applies the batch overrides to a copy of agent.
func (b *Batch) agentFor(agent *Agent) *Agent {
	a := *agent
	if b.System != "" {
		a.Instructions = b.System
	}
	if b.Model != "" {
		a.Model = b.Model
	}
	if b.Temperature != nil {
		t := *b.Temperature
		a.Temperature = &t
	}
	return &a
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Run sends each query to the agent in order, waiting Delay between queries.
// A failed query is recorded in its QueryResult and the batch moves on; only
// cancellation of ctx stops it early. report, when not nil, is called after
// every query.
func (b *Batch) Run(ctx context.Context, runner *Runner, agent *Agent, report func(QueryResult)) ([]QueryResult, error) {
	if runner == nil {
		return nil, errors.New("runner cannot be nil")
	}
	if agent == nil {
		return nil, ErrNilAgent
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}

	active := b.agentFor(agent)
	logger := runner.logger.With().Str("batch", b.Name).Logger()
	results := make([]QueryResult, 0, len(b.Queries))

	for i, query := range b.Queries {
		if i > 0 {
			logger.Debug().Dur("delay", b.Delay).Msg("waiting before next query")
			if err := sleep(ctx, b.Delay); err != nil {
				return results, errors.Wrap(err, "batch cancelled")
			}
		}

		result := b.runQuery(ctx, runner, active, query, logger)
		results = append(results, result)
		if report != nil {
			report(result)
		}

		if err := ctx.Err(); err != nil {
			return results, errors.Wrap(err, "batch cancelled")
		}
	}

	return results, nil
}

func (b *Batch) runQuery(ctx context.Context, runner *Runner, agent *Agent, query string, logger zerolog.Logger) QueryResult {
	result := QueryResult{
		ID:    uuid.NewString(),
		Query: query,
	}
	logger = logger.With().Str("run_id", result.ID).Logger()
	logger.Info().Str("query", query).Msg("sending query to agent")

	start := time.Now()
	resp, err := runner.Run(ctx, agent, []Message{UserMessage(query)}, RunOptions{MaxTurns: b.MaxTurns})
	result.Duration = time.Since(start)

	switch {
	case err != nil:
		result.Err = err
	case !resp.Completed:
		result.Messages = resp.Messages
		result.Turns = resp.Turns
		result.Err = errors.Newf("agent stopped after %d turns without a final answer", resp.Turns)
	default:
		result.Messages = resp.Messages
		result.Turns = resp.Turns
		result.Answer = resp.FinalContent()
	}

	if result.Err != nil {
		logger.Error().Err(result.Err).Dur("elapsed", result.Duration).Msg("query failed")
	} else {
		logger.Info().Int("turns", result.Turns).Dur("elapsed", result.Duration).Msg("query answered")
	}
	return result
}
