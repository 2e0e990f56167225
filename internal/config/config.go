// Package config loads the YAML configuration, the user preferences and the
// .env file the commands start from.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	log "log/slog"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel    string           `yaml:"log_level"`
	Preferences string           `yaml:"preferences"`
	Model       ModelConfig      `yaml:"model"`
	Capture     CaptureConfig    `yaml:"capture"`
	Presenter   PresenterConfig  `yaml:"presenter"`
	Speech      SpeechConfig     `yaml:"speech"`
	Notify      NotifyConfig     `yaml:"notify"`
	Navigation  NavigationConfig `yaml:"navigation"`
	Control     ControlConfig    `yaml:"control"`
	Metrics     MetricsConfig    `yaml:"metrics"`
}

type ModelConfig struct {
	Backend string        `yaml:"backend"`
	Name    string        `yaml:"name"`
	BaseURL string        `yaml:"base_url"`
	Proxy   string        `yaml:"proxy"`
	Timeout time.Duration `yaml:"timeout"`
}

type CaptureConfig struct {
	ModelPath string `yaml:"model_path"`
	Language  string `yaml:"language"`
	Threads   int    `yaml:"threads"`
	// InputFile replaces the microphone with a recorded utterance.
	InputFile      string        `yaml:"input_file"`
	MaxDuration    time.Duration `yaml:"max_duration"`
	SilenceTimeout time.Duration `yaml:"silence_timeout"`
}

type PresenterConfig struct {
	RevealDuration time.Duration `yaml:"reveal_duration"`
}

type SpeechConfig struct {
	Voice      string  `yaml:"voice"`
	Duck       bool    `yaml:"duck"`
	DuckFactor float64 `yaml:"duck_factor"`
}

type NotifyConfig struct {
	Chime string `yaml:"chime"`
}

type Trigger struct {
	Keyword string `yaml:"keyword"`
	Target  string `yaml:"target"`
}

type NavigationConfig struct {
	Triggers []Trigger `yaml:"triggers"`
	// Commands maps a target to the program started for it.
	Commands map[string][]string `yaml:"commands"`
	BusURL   string              `yaml:"bus_url"`
}

type ControlConfig struct {
	Socket string `yaml:"socket"`
	Hotkey string `yaml:"hotkey"`
}

type MetricsConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

var (
	Backends  = []string{"openai", "genai"}
	LogLevels = map[string]log.Level{
		"debug": log.LevelDebug,
		"info":  log.LevelInfo,
		"warn":  log.LevelWarn,
		"error": log.LevelError,
	}
)

const (
	DefaultSocket         = "/tmp/zegion.sock"
	DefaultModelPath      = "third_party/whisper.cpp/models/ggml-base.bin"
	DefaultMaxDuration    = 15 * time.Second
	DefaultSilenceTimeout = 5 * time.Second
	DefaultRevealDuration = 1250 * time.Millisecond
)

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Preferences == "" {
		cfg.Preferences = DefaultPreferencesPath()
	}
	if cfg.Model.Backend == "" {
		cfg.Model.Backend = "openai"
	}
	if cfg.Model.Name == "" {
		cfg.Model.Name = "gemini-1.5-flash"
	}
	if cfg.Capture.ModelPath == "" {
		cfg.Capture.ModelPath = DefaultModelPath
	}
	if cfg.Capture.Language == "" {
		cfg.Capture.Language = "auto"
	}
	if cfg.Capture.MaxDuration == 0 {
		cfg.Capture.MaxDuration = DefaultMaxDuration
	}
	if cfg.Capture.SilenceTimeout == 0 {
		cfg.Capture.SilenceTimeout = DefaultSilenceTimeout
	}
	if cfg.Presenter.RevealDuration == 0 {
		cfg.Presenter.RevealDuration = DefaultRevealDuration
	}
	if cfg.Speech.Voice == "" {
		cfg.Speech.Voice = "en-us"
	}
	if cfg.Speech.DuckFactor == 0 {
		cfg.Speech.DuckFactor = 0.3
	}
	if len(cfg.Navigation.Triggers) == 0 {
		cfg.Navigation.Triggers = []Trigger{{Keyword: "camera", Target: "camera"}}
	}
	if cfg.Control.Socket == "" {
		cfg.Control.Socket = DefaultSocket
	}
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes, completes and validates a configuration. An empty
// document yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}

	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate returns every problem found in cfg joined into one error.
func Validate(cfg *Config) error {
	var errs []error

	if _, ok := LogLevels[cfg.LogLevel]; !ok {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}
	if !slices.Contains(Backends, cfg.Model.Backend) {
		errs = append(errs, fmt.Errorf("model.backend %q is invalid; valid values: openai, genai", cfg.Model.Backend))
	}
	if cfg.Model.Timeout < 0 {
		errs = append(errs, errors.New("model.timeout must not be negative"))
	}
	if cfg.Capture.MaxDuration < 0 || cfg.Capture.SilenceTimeout < 0 {
		errs = append(errs, errors.New("capture durations must not be negative"))
	}
	if cfg.Capture.Threads < 0 {
		errs = append(errs, errors.New("capture.threads must not be negative"))
	}
	if cfg.Presenter.RevealDuration < 0 {
		errs = append(errs, errors.New("presenter.reveal_duration must not be negative"))
	}
	if cfg.Speech.DuckFactor < 0 || cfg.Speech.DuckFactor > 1 {
		errs = append(errs, fmt.Errorf("speech.duck_factor %v must be between 0 and 1", cfg.Speech.DuckFactor))
	}
	for i, tr := range cfg.Navigation.Triggers {
		if tr.Keyword == "" || tr.Target == "" {
			errs = append(errs, fmt.Errorf("navigation.triggers[%d] needs both keyword and target", i))
		}
	}
	for target, argv := range cfg.Navigation.Commands {
		if len(argv) == 0 {
			errs = append(errs, fmt.Errorf("navigation.commands.%s is empty", target))
		}
	}

	return errors.Join(errs...)
}

// Level returns the slog level for cfg.LogLevel.
func (cfg *Config) Level() log.Level {
	return LogLevels[cfg.LogLevel]
}
