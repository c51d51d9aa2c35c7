package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ProviderConfig holds the per-provider secrets used for webhook
// verification and OAuth token refresh against the CRM.
type ProviderConfig struct {
	WebhookSecret string `mapstructure:"webhook_secret"`
	ClientID      string `mapstructure:"client_id"`
	ClientSecret  string `mapstructure:"client_secret"`
	TokenURL      string `mapstructure:"token_url"`
	APIBaseURL    string `mapstructure:"api_base_url"`
}

// Config holds the configuration for the application.
type Config struct {
	Environment string `mapstructure:"environment"`

	DB struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Name     string `mapstructure:"name"`
		SSLMode  string `mapstructure:"sslmode"`
	} `mapstructure:"db"`

	Server struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"server"`

	Auth struct {
		Issuer        string `mapstructure:"issuer"`
		ClientID      string `mapstructure:"client_id"`
		DevModeBypass bool   `mapstructure:"dev_mode_bypass"`
	} `mapstructure:"auth"`

	// Engine holds the workflow step retry policy.
	Engine struct {
		MaxStepRetries int           `mapstructure:"max_step_retries"`
		RetryBase      time.Duration `mapstructure:"retry_base"`
		RetryMax       time.Duration `mapstructure:"retry_max"`
	} `mapstructure:"engine"`

	Campaign struct {
		MaxConsecutiveFailures int           `mapstructure:"max_consecutive_failures"`
		PollInterval           time.Duration `mapstructure:"poll_interval"`
	} `mapstructure:"campaign"`

	Sync struct {
		MaxAttempts  int           `mapstructure:"max_attempts"`
		RetryBase    time.Duration `mapstructure:"retry_base"`
		TickInterval time.Duration `mapstructure:"tick_interval"`
	} `mapstructure:"sync"`

	Dispatch struct {
		PollInterval time.Duration `mapstructure:"poll_interval"`
	} `mapstructure:"dispatch"`

	Collaborators struct {
		NotifyURL    string `mapstructure:"notify_url"`
		TelephonyURL string `mapstructure:"telephony_url"`
	} `mapstructure:"collaborators"`

	Providers map[string]ProviderConfig `mapstructure:"providers"`
}

// LoadConfig loads the configuration from a file and the environment.
func LoadConfig(path string) (*Config, error) {
	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
	}
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		// A missing file is fine; env vars and defaults still apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	config.Auth.Issuer = strings.TrimRight(strings.TrimSpace(config.Auth.Issuer), "/")

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("environment", "DEV")
	viper.SetDefault("server.addr", ":8080")
	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", 5432)
	viper.SetDefault("db.sslmode", "disable")
	viper.SetDefault("engine.max_step_retries", 3)
	viper.SetDefault("engine.retry_base", 200*time.Millisecond)
	viper.SetDefault("engine.retry_max", 5*time.Second)
	viper.SetDefault("campaign.max_consecutive_failures", 5)
	viper.SetDefault("campaign.poll_interval", time.Second)
	viper.SetDefault("sync.max_attempts", 5)
	viper.SetDefault("sync.retry_base", 30*time.Second)
	viper.SetDefault("sync.tick_interval", 10*time.Second)
	viper.SetDefault("dispatch.poll_interval", time.Second)
}
