// Package config loads deckhand settings from an optional YAML file and
// DECKHAND_* environment variables using Viper.
package config

import (
	stderrors "errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/felixgeelhaar/deckhand/internal/errors"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "DECKHAND"

// DefaultKnownHosts verifies SSH targets unless another file is configured.
const DefaultKnownHosts = "~/.ssh/known_hosts"

// DefaultFile is looked up in the working directory when no --config is given.
const DefaultFile = ".deckhand.yaml"

// Config holds the complete configuration.
type Config struct {
	Registry RegistryConfig `mapstructure:"registry" json:"registry" yaml:"registry"`
	Publish  PublishConfig  `mapstructure:"publish" json:"publish" yaml:"publish"`
	Rollout  RolloutConfig  `mapstructure:"rollout" json:"rollout" yaml:"rollout"`
	Health   HealthConfig   `mapstructure:"health" json:"health" yaml:"health"`
	Target   TargetConfig   `mapstructure:"target" json:"target" yaml:"target"`
	Server   ServerConfig   `mapstructure:"server" json:"server" yaml:"server"`
	Log      LogConfig      `mapstructure:"log" json:"log" yaml:"log"`
	Trace    TraceConfig    `mapstructure:"trace" json:"trace" yaml:"trace"`
}

// RegistryConfig holds the repository coordinate and push credentials.
type RegistryConfig struct {
	Repo     string `mapstructure:"repo" json:"repo" yaml:"repo"`
	Username string `mapstructure:"username" json:"username" yaml:"username"`
	Token    string `mapstructure:"token" json:"-" yaml:"-"`
}

// PublishConfig holds Image Publisher settings.
type PublishConfig struct {
	Dir         string `mapstructure:"dir" json:"dir" yaml:"dir"`
	Manifest    string `mapstructure:"manifest" json:"manifest" yaml:"manifest"`
	Workflow    string `mapstructure:"workflow" json:"workflow,omitempty" yaml:"workflow,omitempty"`
	Placeholder string `mapstructure:"placeholder" json:"placeholder" yaml:"placeholder"`
	CommitSHA   string `mapstructure:"commit_sha" json:"commit_sha,omitempty" yaml:"commit_sha,omitempty"`
}

// RolloutConfig holds Rollout Executor settings.
type RolloutConfig struct {
	Dir          string `mapstructure:"dir" json:"dir" yaml:"dir"`
	Service      string `mapstructure:"service" json:"service" yaml:"service"`
	ComposeFile  string `mapstructure:"compose_file" json:"compose_file" yaml:"compose_file"`
	OverrideFile string `mapstructure:"override_file" json:"override_file" yaml:"override_file"`
	Restart      string `mapstructure:"restart" json:"restart" yaml:"restart"`
	// Port is the host port the service publishes. Zero reads it from the base
	// manifest; if the manifest publishes none the port pass of supersession is skipped.
	Port int `mapstructure:"port" json:"port" yaml:"port"`
	// Repo overrides the repository coordinate derived from the image reference.
	Repo    string `mapstructure:"repo" json:"repo,omitempty" yaml:"repo,omitempty"`
	LogTail int    `mapstructure:"log_tail" json:"log_tail" yaml:"log_tail"`
}

// HealthConfig holds Health Verifier settings.
type HealthConfig struct {
	URL     string        `mapstructure:"url" json:"url" yaml:"url"`
	Retries int           `mapstructure:"retries" json:"retries" yaml:"retries"`
	Delay   time.Duration `mapstructure:"delay" json:"delay" yaml:"delay"`
	Timeout time.Duration `mapstructure:"timeout" json:"timeout" yaml:"timeout"`
}

// TargetConfig holds the SSH parameters of a remote target host.
// An empty Host means commands run locally.
type TargetConfig struct {
	Host       string `mapstructure:"host" json:"host,omitempty" yaml:"host,omitempty"`
	User       string `mapstructure:"user" json:"user,omitempty" yaml:"user,omitempty"`
	Port       int    `mapstructure:"port" json:"port" yaml:"port"`
	Key        string `mapstructure:"key" json:"key,omitempty" yaml:"key,omitempty"`
	KnownHosts string `mapstructure:"known_hosts" json:"known_hosts,omitempty" yaml:"known_hosts,omitempty"`

	// InsecureIgnoreHostKey accepts any host key. Only for throwaway hosts.
	InsecureIgnoreHostKey bool `mapstructure:"insecure_ignore_host_key" json:"insecure_ignore_host_key,omitempty" yaml:"insecure_ignore_host_key,omitempty"`
}

// ServerConfig holds Liveness Responder settings.
type ServerConfig struct {
	Address  string `mapstructure:"address" json:"address" yaml:"address"`
	Port     int    `mapstructure:"port" json:"port" yaml:"port"`
	Greeting string `mapstructure:"greeting" json:"greeting" yaml:"greeting"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level" json:"level" yaml:"level"`
	Format string `mapstructure:"format" json:"format" yaml:"format"`
}

// TraceConfig holds OpenTelemetry export settings. An empty Endpoint turns
// tracing off.
type TraceConfig struct {
	Endpoint    string  `mapstructure:"endpoint" json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	SampleRatio float64 `mapstructure:"sample_ratio" json:"sample_ratio" yaml:"sample_ratio"`
}

// envBindings maps config keys to the environment variables that set them,
// in priority order.
var envBindings = map[string][]string{
	"registry.repo":                   {"DECKHAND_REGISTRY_REPO"},
	"registry.username":               {"DECKHAND_REGISTRY_USERNAME"},
	"registry.token":                  {"DECKHAND_REGISTRY_TOKEN"},
	"publish.commit_sha":              {"DECKHAND_COMMIT_SHA", "GITHUB_SHA"},
	"publish.workflow":                {"DECKHAND_WORKFLOW"},
	"target.host":                     {"DECKHAND_SSH_HOST"},
	"target.user":                     {"DECKHAND_SSH_USER"},
	"target.key":                      {"DECKHAND_SSH_KEY"},
	"target.port":                     {"DECKHAND_SSH_PORT"},
	"target.known_hosts":              {"DECKHAND_SSH_KNOWN_HOSTS"},
	"target.insecure_ignore_host_key": {"DECKHAND_SSH_INSECURE_IGNORE_HOST_KEY"},
	"health.url":                      {"DECKHAND_HEALTH_URL"},
	"log.level":                       {"DECKHAND_LOG_LEVEL"},
	"log.format":                      {"DECKHAND_LOG_FORMAT"},
	"trace.endpoint":                  {"DECKHAND_TRACE_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT"},
}

// Load reads configuration from file and environment. An explicit path must
// exist; the default file is optional.
func Load(path string) (*Config, error) {
	return LoadWithFlags(path, nil)
}

// LoadWithFlags is Load with command-line flags layered on top. flags maps
// config keys to the flags that set them; a flag only wins when it was set.
func LoadWithFlags(path string, flags map[string]*pflag.Flag) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName(".deckhand")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	for key, envs := range envBindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, errors.Wrap(errors.ErrCodeConfigLoad, "failed to bind environment", err)
		}
	}

	for key, flag := range flags {
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return nil, errors.Wrap(errors.ErrCodeConfigLoad, fmt.Sprintf("failed to bind flag --%s", flag.Name), err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !stderrors.As(err, &notFound) {
			return nil, errors.Wrap(errors.ErrCodeConfigLoad, fmt.Sprintf("failed to read config file %s", v.ConfigFileUsed()), err).
				WithSuggestion("Check the YAML syntax of the config file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfigLoad, "failed to decode configuration", err)
	}
	return &cfg, nil
}

// Default returns the configuration with only defaults applied.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("publish.dir", ".")
	v.SetDefault("publish.manifest", "docker-compose.yml")
	v.SetDefault("publish.placeholder", "__IMAGE_TAG__")

	v.SetDefault("rollout.dir", "/opt/app")
	v.SetDefault("rollout.service", "app")
	v.SetDefault("rollout.compose_file", "docker-compose.yml")
	v.SetDefault("rollout.override_file", "docker-compose.deploy.yml")
	v.SetDefault("rollout.restart", "unless-stopped")
	v.SetDefault("rollout.port", 0)
	v.SetDefault("rollout.log_tail", 200)

	v.SetDefault("health.url", "http://localhost:3000/health")
	v.SetDefault("health.retries", 15)
	v.SetDefault("health.delay", 2*time.Second)
	v.SetDefault("health.timeout", 5*time.Second)

	v.SetDefault("target.port", 22)
	v.SetDefault("target.known_hosts", DefaultKnownHosts)

	v.SetDefault("server.address", "0.0.0.0")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.greeting", "Hello from deckhand")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("trace.sample_ratio", 1.0)
}

// Validate checks that the push credentials are complete.
func (c RegistryConfig) Validate() error {
	switch {
	case c.Repo == "":
		return errors.NewConfigMissingError("registry.repo", "DECKHAND_REGISTRY_REPO")
	case c.Username == "":
		return errors.NewConfigMissingError("registry.username", "DECKHAND_REGISTRY_USERNAME")
	case c.Token == "":
		return errors.NewConfigMissingError("registry.token", "DECKHAND_REGISTRY_TOKEN")
	}
	return nil
}

// Validate checks the publisher inputs.
func (c PublishConfig) Validate() error {
	if c.Manifest == "" {
		return errors.NewConfigMissingError("publish.manifest", "DECKHAND_PUBLISH_MANIFEST")
	}
	if c.Workflow != "" && c.Placeholder == "" {
		return errors.NewConfigInvalidError("publish.placeholder", "must not be empty when a workflow file is given")
	}
	return nil
}

// Validate checks the rollout target.
func (c RolloutConfig) Validate() error {
	if c.Dir == "" {
		return errors.NewConfigInvalidError("rollout.dir", "must not be empty")
	}
	if c.Service == "" {
		return errors.NewConfigInvalidError("rollout.service", "must not be empty")
	}
	if c.ComposeFile == "" || c.OverrideFile == "" {
		return errors.NewConfigInvalidError("rollout.compose_file", "base and override manifest names are required")
	}
	if c.ComposeFile == c.OverrideFile {
		return errors.NewConfigInvalidError("rollout.override_file", "must differ from the base manifest")
	}
	if c.Port < 0 || c.Port > 65535 {
		return errors.NewConfigInvalidError("rollout.port", fmt.Sprintf("%d is not a valid port", c.Port))
	}
	if c.LogTail < 1 {
		return errors.NewConfigInvalidError("rollout.log_tail", "must be at least 1")
	}
	return nil
}

// Validate checks the health-check budget.
func (c HealthConfig) Validate() error {
	if c.URL == "" {
		return errors.NewConfigMissingError("health.url", "DECKHAND_HEALTH_URL")
	}
	u, err := url.Parse(c.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.NewConfigInvalidError("health.url", fmt.Sprintf("%q is not an http(s) URL", c.URL))
	}
	if c.Retries < 1 {
		return errors.NewConfigInvalidError("health.retries", "must be at least 1")
	}
	if c.Delay < 0 {
		return errors.NewConfigInvalidError("health.delay", "must not be negative")
	}
	if c.Timeout <= 0 {
		return errors.NewConfigInvalidError("health.timeout", "must be positive")
	}
	return nil
}

// Remote reports whether commands should run over SSH.
func (c TargetConfig) Remote() bool {
	return c.Host != ""
}

// Validate checks the SSH parameters when a remote host is configured.
func (c TargetConfig) Validate() error {
	if !c.Remote() {
		return nil
	}
	if c.User == "" {
		return errors.NewConfigMissingError("target.user", "DECKHAND_SSH_USER")
	}
	if c.Key == "" {
		return errors.NewConfigMissingError("target.key", "DECKHAND_SSH_KEY")
	}
	if c.Port < 1 || c.Port > 65535 {
		return errors.NewConfigInvalidError("target.port", fmt.Sprintf("%d is not a valid port", c.Port))
	}
	if c.InsecureIgnoreHostKey {
		return nil
	}
	if c.KnownHosts == "" {
		return errors.NewConfigMissingError("target.known_hosts", "DECKHAND_SSH_KNOWN_HOSTS")
	}
	path, err := c.KnownHostsFile()
	if err != nil {
		return errors.NewConfigInvalidError("target.known_hosts", err.Error())
	}
	if _, err := os.Stat(path); err != nil {
		return errors.NewConfigInvalidError("target.known_hosts", fmt.Sprintf("%s is not readable: %v", path, err)).
			WithSuggestion(fmt.Sprintf("Record the host key first: ssh-keyscan -p %d -H %s >> %s", c.Port, c.Host, path)).
			WithSuggestion("Or pass --insecure-ignore-host-key for a throwaway host")
	}
	return nil
}

// KnownHostsFile returns KnownHosts with a leading ~ expanded.
func (c TargetConfig) KnownHostsFile() (string, error) {
	return homedir.Expand(c.KnownHosts)
}

// Validate checks the responder listen address.
func (c ServerConfig) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return errors.NewConfigInvalidError("server.port", fmt.Sprintf("%d is not a valid port", c.Port))
	}
	return nil
}

// Validate checks the sampling ratio.
func (c TraceConfig) Validate() error {
	if c.SampleRatio <= 0 || c.SampleRatio > 1 {
		return errors.NewConfigInvalidError("trace.sample_ratio", fmt.Sprintf("%g is outside (0, 1]", c.SampleRatio))
	}
	return nil
}
