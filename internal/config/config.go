package config

import "fmt"

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

const (
	DefaultPromptText   = "Pour mieux vous aider, merci de renseigner votre nom, votre email et votre téléphone."
	DefaultGreetingText = "Merci {name} ! Un conseiller va prendre en charge votre demande dans quelques instants."
)

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	cfg := Config{}
	applyDefaults(&cfg)
	return cfg
}
