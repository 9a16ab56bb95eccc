// Package config loads the agent configuration from a .env file, an
// optional config file, the environment and command line flags.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/feiskyer/toolagent"
)

const (
	// EnvPrefix prefixes environment variables bound to config keys.
	EnvPrefix = "TOOLAGENT"

	ProviderOpenAI = "openai"
	ProviderAzure  = "azure"
)

// Keys of the configuration tree.
const (
	KeyProvider        = "provider"
	KeyAPIKey          = "api_key"
	KeyOpenAIAPIKey    = "openai_api_key"
	KeyBaseURL         = "base_url"
	KeyModel           = "model"
	KeyTemperature     = "temperature"
	KeyMaxTurns        = "max_turns"
	KeyDelay           = "delay"
	KeyAzureEndpoint   = "azure.endpoint"
	KeyAzureAPIKey     = "azure.api_key"
	KeyAzureAPIVersion = "azure.api_version"
	KeyLogLevel        = "log.level"
	KeyLogFormat       = "log.format"
	KeyDebug           = "debug"
	KeyMetricsFile     = "metrics_file"
	KeyEnvFile         = "env_file"
	KeyConfigFile      = "config"
)

// Config holds the resolved settings.
type Config struct {
	Provider    string        `validate:"oneof=openai azure"`
	APIKey      string        `validate:"required_if=Provider openai"`
	BaseURL     string        `validate:"omitempty,url"`
	Model       string        `validate:"required"`
	Temperature float64       `validate:"gte=0,lte=2"`
	MaxTurns    int           `validate:"gte=1,lte=100"`
	Delay       time.Duration `validate:"gte=0"`

	Azure Azure

	LogLevel    string `validate:"oneof=trace debug info warn error"`
	LogFormat   string `validate:"oneof=console json"`
	Debug       bool
	MetricsFile string
}

// Azure holds Azure OpenAI settings.
type Azure struct {
	Endpoint   string `validate:"omitempty,url"`
	APIKey     string
	APIVersion string
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyProvider, ProviderOpenAI)
	v.SetDefault(KeyModel, toolagent.DefaultModel)
	v.SetDefault(KeyTemperature, 0.0)
	v.SetDefault(KeyMaxTurns, toolagent.DefaultMaxTurns)
	v.SetDefault(KeyDelay, toolagent.DefaultDelay)
	v.SetDefault(KeyAzureAPIVersion, toolagent.DefaultAzureAPIVersion)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "console")
	v.SetDefault(KeyDebug, false)
	v.SetDefault(KeyEnvFile, ".env")
}

// envAliases lists the conventional variables read for a key in addition
// to TOOLAGENT_<KEY>, in order of preference.
var envAliases = map[string][]string{
	KeyAPIKey:          {"GITHUB_TOKEN"},
	KeyOpenAIAPIKey:    {"OPENAI_API_KEY"},
	KeyBaseURL:         {"OPENAI_API_BASE"},
	KeyAzureAPIKey:     {"AZURE_OPENAI_API_KEY"},
	KeyAzureEndpoint:   {"AZURE_OPENAI_API_BASE", "AZURE_OPENAI_ENDPOINT"},
	KeyAzureAPIVersion: {"AZURE_OPENAI_API_VERSION"},
}

// envKeys are the keys that can be set from the environment or a .env file.
var envKeys = []string{
	KeyProvider, KeyAPIKey, KeyOpenAIAPIKey, KeyBaseURL, KeyModel,
	KeyTemperature, KeyMaxTurns, KeyDelay,
	KeyAzureEndpoint, KeyAzureAPIKey, KeyAzureAPIVersion,
	KeyLogLevel, KeyLogFormat, KeyDebug, KeyMetricsFile,
}

var envKeyReplacer = strings.NewReplacer(".", "_", "-", "_")

// envNames returns the environment variables read for key.
func envNames(key string) []string {
	names := []string{EnvPrefix + "_" + strings.ToUpper(envKeyReplacer.Replace(key))}
	return append(names, envAliases[key]...)
}

// BindEnv wires environment variables into v. Every key is available as
// TOOLAGENT_<KEY>; the credentials also honour their conventional names.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(envKeyReplacer)
	v.AutomaticEnv()

	for key := range envAliases {
		_ = v.BindEnv(append([]string{key}, envNames(key)...)...)
	}
}

// LoadDotEnv reads KEY=VALUE pairs from path and registers them as defaults
// of v, so the environment, the config file and flags all take precedence
// over them. Variables are matched by the same names BindEnv uses and a
// missing file is not an error.
func LoadDotEnv(v *viper.Viper, path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "failed to stat %s", path)
	}

	env := viper.New()
	env.SetConfigFile(path)
	env.SetConfigType("env")
	if err := env.ReadInConfig(); err != nil {
		return errors.Wrapf(err, "failed to read %s", path)
	}

	values := make(map[string]string, len(env.AllKeys()))
	for _, name := range env.AllKeys() {
		values[strings.ToUpper(name)] = env.GetString(name)
	}

	for _, key := range envKeys {
		for _, name := range envNames(key) {
			if value, ok := values[name]; ok {
				v.SetDefault(key, value)
				break
			}
		}
	}
	return nil
}

// ReadConfigFile merges a YAML or TOML config file into v.
func ReadConfigFile(v *viper.Viper, path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return errors.Wrapf(err, "failed to read config %s", path)
	}
	return nil
}

// Load resolves the configuration from v and validates it.
func Load(v *viper.Viper) (*Config, error) {
	// A key from OPENAI_API_KEY is meant for the OpenAI API, so it never
	// gets the GitHub Models endpoint by default.
	apiKey := strings.TrimSpace(v.GetString(KeyAPIKey))
	baseURL := strings.TrimSpace(v.GetString(KeyBaseURL))
	if apiKey == "" {
		apiKey = strings.TrimSpace(v.GetString(KeyOpenAIAPIKey))
	} else if baseURL == "" {
		baseURL = toolagent.DefaultBaseURL
	}

	cfg := &Config{
		Provider:    strings.ToLower(strings.TrimSpace(v.GetString(KeyProvider))),
		APIKey:      apiKey,
		BaseURL:     baseURL,
		Model:       strings.TrimSpace(v.GetString(KeyModel)),
		Temperature: v.GetFloat64(KeyTemperature),
		MaxTurns:    v.GetInt(KeyMaxTurns),
		Delay:       v.GetDuration(KeyDelay),
		Azure: Azure{
			Endpoint:   strings.TrimSpace(v.GetString(KeyAzureEndpoint)),
			APIKey:     strings.TrimSpace(v.GetString(KeyAzureAPIKey)),
			APIVersion: strings.TrimSpace(v.GetString(KeyAzureAPIVersion)),
		},
		LogLevel:    strings.ToLower(strings.TrimSpace(v.GetString(KeyLogLevel))),
		LogFormat:   strings.ToLower(strings.TrimSpace(v.GetString(KeyLogFormat))),
		Debug:       v.GetBool(KeyDebug),
		MetricsFile: strings.TrimSpace(v.GetString(KeyMetricsFile)),
	}
	if cfg.Debug {
		cfg.LogLevel = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Provider == ProviderOpenAI && c.APIKey == "" {
		return errors.WithHint(
			errors.New("api key not found in environment"),
			"create a .env file containing GITHUB_TOKEN=<your personal access token>\n"+
				"tokens can be generated at https://github.com/settings/tokens\n"+
				"or set OPENAI_API_KEY to use the OpenAI API (OPENAI_API_BASE selects another endpoint)",
		)
	}
	if c.Provider == ProviderAzure && (c.Azure.Endpoint == "" || c.Azure.APIKey == "") {
		return errors.WithHint(
			errors.New("azure provider requires an endpoint and an api key"),
			"set AZURE_OPENAI_API_BASE and AZURE_OPENAI_API_KEY",
		)
	}

	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}
	return nil
}

// NewClient creates the chat client for the configured provider.
func (c *Config) NewClient() (toolagent.ChatClient, error) {
	switch c.Provider {
	case ProviderAzure:
		return toolagent.NewAzureOpenAIClient(c.Azure.APIKey, c.Azure.Endpoint, c.Azure.APIVersion)
	default:
		return toolagent.NewOpenAIClient(c.APIKey, c.BaseURL)
	}
}
