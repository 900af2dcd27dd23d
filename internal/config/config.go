// Package config loads opsdeck settings from a config file, the environment
// and command-line flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. OPSDECK_JENKINS_URL.
const EnvPrefix = "OPSDECK"

// Name is the config file name searched in $HOME and the working directory.
const Name = ".opsdeck"

// Executor backends.
const (
	ExecutorCLI = "cli"
	ExecutorSDK = "sdk"
)

// Config is the validated opsdeck configuration.
type Config struct {
	// Profile is the aws credential profile; empty means ambient credentials.
	Profile     string        `mapstructure:"profile"`
	// RoleARN is assumed by the sdk executor on top of the profile.
	RoleARN     string        `mapstructure:"role_arn"`
	ExternalID  string        `mapstructure:"external_id"`
	Regions     []string      `mapstructure:"regions" validate:"required,min=1,dive,required"`
	Executor    string        `mapstructure:"executor" validate:"oneof=cli sdk"`
	AWSBinary   string        `mapstructure:"aws_binary" validate:"required"`
	Timeout     time.Duration `mapstructure:"timeout" validate:"gt=0"`
	Parallelism int           `mapstructure:"parallelism" validate:"gte=1"`
	LogLevel    string        `mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`
	// Workspace receives build.properties and job configs; empty falls
	// back to $WORKSPACE, then the working directory.
	Workspace string  `mapstructure:"workspace"`
	Jenkins   Jenkins `mapstructure:"jenkins"`
	Chef      Chef    `mapstructure:"chef"`
}

// Jenkins holds build server access and job metadata caching.
type Jenkins struct {
	ConfigFile   string        `mapstructure:"config_file"`
	Section      string        `mapstructure:"section"`
	URL          string        `mapstructure:"url" validate:"omitempty,url"`
	User         string        `mapstructure:"user"`
	Password     string        `mapstructure:"password"`
	CacheBackend string        `mapstructure:"cache_backend" validate:"oneof=file redis none"`
	CacheFile    string        `mapstructure:"cache_file" validate:"required_if=CacheBackend file"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl" validate:"gte=0"`
	RedisURL     string        `mapstructure:"redis_url" validate:"required_if=CacheBackend redis"`
	RateLimit    float64       `mapstructure:"rate_limit" validate:"gte=0"`
}

// Chef locates the chef environments repository.
type Chef struct {
	RepoURL  string `mapstructure:"repo_url" validate:"required"`
	RepoPath string `mapstructure:"repo_path" validate:"required"`
	RepoName string `mapstructure:"repo_name" validate:"required,excludesall=/"`
	User     string `mapstructure:"user"`
	Email    string `mapstructure:"email" validate:"omitempty,email"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// SetDefaults registers every key with its default value. Keys must be
// known to viper for environment overrides to reach Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("profile", "")
	v.SetDefault("role_arn", "")
	v.SetDefault("external_id", "")
	v.SetDefault("regions", []string{"us-east-1", "us-west-2"})
	v.SetDefault("executor", ExecutorCLI)
	v.SetDefault("aws_binary", "aws")
	v.SetDefault("timeout", 2*time.Minute)
	v.SetDefault("parallelism", 1)
	v.SetDefault("log_level", "info")
	v.SetDefault("workspace", "")

	v.SetDefault("jenkins.config_file", "jenkins.ini")
	v.SetDefault("jenkins.section", "stage-devops-jenkins")
	v.SetDefault("jenkins.url", "")
	v.SetDefault("jenkins.user", "")
	v.SetDefault("jenkins.password", "")
	v.SetDefault("jenkins.cache_backend", "file")
	v.SetDefault("jenkins.cache_file", "~/.opsdeck/jobs.json")
	v.SetDefault("jenkins.cache_ttl", 5*time.Minute)
	v.SetDefault("jenkins.redis_url", "redis://localhost:6379/0")
	v.SetDefault("jenkins.rate_limit", 10.0)

	v.SetDefault("chef.repo_url", "git@github.com:example/chef-environments.git")
	v.SetDefault("chef.repo_path", os.TempDir())
	v.SetDefault("chef.repo_name", "chef-environments")
	v.SetDefault("chef.user", "")
	v.SetDefault("chef.email", "")
}

// New returns a viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// ReadFile reads path, or searches $HOME and the working directory for
// .opsdeck.yaml when path is empty. A missing default file is not an error.
func ReadFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config %s: %w", path, err)
		}
		return nil
	}

	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(home)
	}
	v.AddConfigPath(".")
	v.SetConfigType("yaml")
	v.SetConfigName(Name)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("failed to read config: %w", err)
	}
	return nil
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.Jenkins.CacheFile = expandHome(cfg.Jenkins.CacheFile)
	cfg.Jenkins.ConfigFile = expandHome(cfg.Jenkins.ConfigFile)
	cfg.Chef.RepoPath = expandHome(cfg.Chef.RepoPath)

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// WorkspaceDir resolves where job artifacts are written.
func (c *Config) WorkspaceDir() string {
	if c.Workspace != "" {
		return c.Workspace
	}
	if ws := os.Getenv("WORKSPACE"); ws != "" {
		return ws
	}
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return "."
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
