package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr     string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
	CORSOrigins  []string      `env:"CORS_ORIGINS" envDefault:"*" envSeparator:","`

	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"20"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" envDefault:"40"`

	AuthToken string `env:"AUTH_TOKEN"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"` // json or console

	SourceLanguage    string        `env:"SOURCE_LANGUAGE" envDefault:"ta"`
	RecognitionLocale string        `env:"RECOGNITION_LOCALE" envDefault:"ta-IN"`
	DefaultTargets    []string      `env:"DEFAULT_TARGETS" envDefault:"en,es,hi" envSeparator:","`
	DebounceDelay     time.Duration `env:"DEBOUNCE_DELAY" envDefault:"1s"`

	TranslateURL     string        `env:"TRANSLATE_URL" envDefault:"https://api.mymemory.translated.net"`
	TranslateEmail   string        `env:"TRANSLATE_EMAIL"`
	TranslateTimeout time.Duration `env:"TRANSLATE_TIMEOUT" envDefault:"0s"` // 0 = no timeout

	SpeechRate   float64 `env:"SPEECH_RATE" envDefault:"0.8"`
	SpeechPitch  float64 `env:"SPEECH_PITCH" envDefault:"1"`
	SpeechVolume float64 `env:"SPEECH_VOLUME" envDefault:"1"`

	CatalogFile   string `env:"CATALOG_FILE"`
	EventRingSize int    `env:"EVENT_RING_SIZE" envDefault:"256"`

	MQTTBrokerURL   string `env:"MQTT_BROKER_URL"`
	MQTTClientID    string `env:"MQTT_CLIENT_ID" envDefault:"voxguide"`
	MQTTTopicPrefix string `env:"MQTT_TOPIC_PREFIX" envDefault:"voxguide"`
	MQTTUsername    string `env:"MQTT_USERNAME"`
	MQTTPassword    string `env:"MQTT_PASSWORD"`

	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"voxguide.events"`

	RelayEventTypes []string `env:"RELAY_EVENT_TYPES" envDefault:"capture,translation,selection,bridge,catalog,attraction" envSeparator:","`
}

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile       string
	HTTPAddr      string
	LogLevel      string
	CatalogFile   string
	MQTTBrokerURL string
	TranslateURL  string
}

// Load reads configuration from .env file, environment variables, and CLI overrides.
// Priority: CLI flags > environment variables > .env file > struct defaults.
func Load(overrides Overrides) (*Config, error) {
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.CatalogFile != "" {
		cfg.CatalogFile = overrides.CatalogFile
	}
	if overrides.MQTTBrokerURL != "" {
		cfg.MQTTBrokerURL = overrides.MQTTBrokerURL
	}
	if overrides.TranslateURL != "" {
		cfg.TranslateURL = overrides.TranslateURL
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.SourceLanguage == "" {
		return fmt.Errorf("SOURCE_LANGUAGE must not be empty")
	}
	if c.DebounceDelay <= 0 {
		return fmt.Errorf("DEBOUNCE_DELAY must be positive, got %s", c.DebounceDelay)
	}
	if c.TranslateTimeout < 0 {
		return fmt.Errorf("TRANSLATE_TIMEOUT must not be negative")
	}
	// Web Speech API ranges.
	if c.SpeechRate < 0.1 || c.SpeechRate > 10 {
		return fmt.Errorf("SPEECH_RATE must be within [0.1, 10], got %g", c.SpeechRate)
	}
	if c.SpeechPitch < 0 || c.SpeechPitch > 2 {
		return fmt.Errorf("SPEECH_PITCH must be within [0, 2], got %g", c.SpeechPitch)
	}
	if c.SpeechVolume < 0 || c.SpeechVolume > 1 {
		return fmt.Errorf("SPEECH_VOLUME must be within [0, 1], got %g", c.SpeechVolume)
	}
	if c.EventRingSize <= 0 {
		return fmt.Errorf("EVENT_RING_SIZE must be positive")
	}
	return nil
}
