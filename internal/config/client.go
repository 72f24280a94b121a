package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// ClientConfig 描述协作客户端配置。
type ClientConfig struct {
	RelayURL      string
	CompletionURL string
	Username      string
	Debounce      time.Duration
	// RemoteCaret is "sender" or "local".
	RemoteCaret string

	LineHeight   float64
	CharWidth    float64
	TabSize      int
	PaddingTop   float64
	PaddingLeft  float64
	PaddingRight float64
	WrapWidth    float64
}

// LoadClient 从环境变量加载客户端配置。
func LoadClient() (*ClientConfig, error) {
	debounceMS, err := parseOptionalIntEnv("COLLAB_DEBOUNCE_MS")
	if err != nil {
		return nil, err
	}
	debounce := 100 * time.Millisecond
	if debounceMS != nil {
		if *debounceMS <= 0 {
			return nil, fmt.Errorf("invalid COLLAB_DEBOUNCE_MS value %d", *debounceMS)
		}
		debounce = time.Duration(*debounceMS) * time.Millisecond
	}

	tabSize := 4
	if override, err := parseOptionalIntEnv("COLLAB_TAB_SIZE"); err != nil {
		return nil, err
	} else if override != nil && *override > 0 {
		tabSize = *override
	}

	cfg := &ClientConfig{
		RelayURL:    getEnvOrDefault("COLLAB_RELAY_URL", "http://localhost:8080"),
		Username:    strings.TrimSpace(os.Getenv("COLLAB_USERNAME")),
		Debounce:    debounce,
		RemoteCaret: strings.ToLower(getEnvOrDefault("COLLAB_REMOTE_CARET", "sender")),
		TabSize:     tabSize,
	}
	cfg.CompletionURL = getEnvOrDefault("COLLAB_COMPLETION_URL", cfg.RelayURL)

	metrics := []floatEnv{
		{"COLLAB_LINE_HEIGHT", 20, &cfg.LineHeight},
		{"COLLAB_CHAR_WIDTH", 8, &cfg.CharWidth},
		{"COLLAB_PADDING_TOP", 0, &cfg.PaddingTop},
		{"COLLAB_PADDING_LEFT", 0, &cfg.PaddingLeft},
		{"COLLAB_PADDING_RIGHT", 0, &cfg.PaddingRight},
		{"COLLAB_WRAP_WIDTH", 0, &cfg.WrapWidth},
	}
	for _, m := range metrics {
		if err := m.load(); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// floatEnv binds a non-negative pixel metric to its variable.
type floatEnv struct {
	key string
	def float64
	dst *float64
}

func (f floatEnv) load() error {
	val, err := parseOptionalFloatEnv(f.key)
	if err != nil {
		return err
	}
	*f.dst = f.def
	if val == nil {
		return nil
	}
	if *val < 0 {
		return fmt.Errorf("invalid %s value %v: must not be negative", f.key, *val)
	}
	*f.dst = *val
	return nil
}
