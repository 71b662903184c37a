package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env                string        `mapstructure:"ENV"`
	Port               string        `mapstructure:"PORT"`
	DatabaseURL        string        `mapstructure:"DATABASE_URL"`
	CORSAllowed        string        `mapstructure:"CORS_ALLOWED_ORIGINS"`
	RequestTimeout     time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	QueryTimeout       time.Duration `mapstructure:"QUERY_TIMEOUT"`
	QueryRetries       int           `mapstructure:"QUERY_RETRIES"`
	PollInterval       time.Duration `mapstructure:"POLL_INTERVAL"`
	RecordingProxyURL  string        `mapstructure:"RECORDING_PROXY_URL"`
	RecordingCacheSize int           `mapstructure:"RECORDING_CACHE_SIZE"`
	SampleData         bool          `mapstructure:"SAMPLE_DATA"`
	SampleToken        string        `mapstructure:"SAMPLE_TOKEN"`
	LogLevel           string        `mapstructure:"LOG_LEVEL"`
}

func Load() (Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	_ = v.ReadInConfig()

	v.SetDefault("ENV", "dev")
	v.SetDefault("PORT", "4000")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("QUERY_TIMEOUT", "10s")
	v.SetDefault("QUERY_RETRIES", 1)
	v.SetDefault("POLL_INTERVAL", "30s")
	v.SetDefault("RECORDING_CACHE_SIZE", 512)
	v.SetDefault("SAMPLE_DATA", false)
	v.SetDefault("SAMPLE_TOKEN", "demo-token")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
