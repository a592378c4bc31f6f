package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config stores runtime configuration.
type Config struct {
	Deepgram DeepgramConfig `toml:"deepgram"`
	Gemini   GeminiConfig   `toml:"gemini"`
	Keys     KeysConfig     `toml:"keys"`
	Audio    AudioConfig    `toml:"audio"`
	Session  SessionConfig  `toml:"session"`
	Logging  LoggingConfig  `toml:"logging"`
	Server   ServerConfig   `toml:"server"`

	// Path is the config file that was read, if any.
	Path string `toml:"-"`
}

type DeepgramConfig struct {
	APIKey        string `toml:"api_key"`
	APIBaseURL    string `toml:"api_base"`
	FinishGraceMS int    `toml:"finish_grace_ms"`
}

type GeminiConfig struct {
	APIKey     string `toml:"api_key"`
	APIBaseURL string `toml:"api_base"`
	Model      string `toml:"model"`
	TimeoutMS  int    `toml:"timeout_ms"`
}

// KeysConfig points key lookups at a key server. An empty URL means the key
// is read from the environment or the config file.
type KeysConfig struct {
	DeepgramURL string `toml:"deepgram_url"`
	GeminiURL   string `toml:"gemini_url"`
}

type AudioConfig struct {
	Backend         string `toml:"backend"`
	RecorderCommand string `toml:"ffmpeg_command"`
	InputFormat     string `toml:"input_format"`
	InputDevice     string `toml:"input_device"`
	SampleRate      int    `toml:"sample_rate"`
	Channels        int    `toml:"channels"`
	ChunkIntervalMS int    `toml:"chunk_interval_ms"`
}

type SessionConfig struct {
	Option      string `toml:"option"`
	Diarize     bool   `toml:"diarize"`
	KeepAliveMS int    `toml:"keepalive_ms"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

// EnvConfigPath names an explicit config file. A missing explicit file is an error.
const EnvConfigPath = "LIVESCRIBE_CONFIG"

const (
	BackendFFMPEG    = "ffmpeg"
	BackendPortAudio = "portaudio"
)

func (c DeepgramConfig) FinishGrace() time.Duration {
	return time.Duration(c.FinishGraceMS) * time.Millisecond
}

func (c GeminiConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

func (c AudioConfig) ChunkInterval() time.Duration {
	return time.Duration(c.ChunkIntervalMS) * time.Millisecond
}

func (c SessionConfig) KeepAlive() time.Duration {
	return time.Duration(c.KeepAliveMS) * time.Millisecond
}

func defaults() Config {
	return Config{
		Deepgram: DeepgramConfig{
			APIBaseURL:    "https://api.deepgram.com/v1",
			FinishGraceMS: 4000,
		},
		Gemini: GeminiConfig{
			APIBaseURL: "https://generativelanguage.googleapis.com/v1beta",
			Model:      "gemini-1.5-flash-latest",
			TimeoutMS:  30000,
		},
		Audio: AudioConfig{
			Backend:         BackendFFMPEG,
			RecorderCommand: "ffmpeg",
			InputFormat:     "pulse",
			InputDevice:     "default",
			SampleRate:      16000,
			Channels:        1,
			ChunkIntervalMS: 250,
		},
		Session: SessionConfig{
			Option:      "nova3-en-fw",
			KeepAliveMS: 10000,
		},
		Logging: LoggingConfig{Level: "info", Format: "console"},
		Server:  ServerConfig{Addr: "127.0.0.1:8787"},
	}
}

// Load resolves configuration from defaults, the optional TOML file and
// environment variables, in increasing precedence.
func Load() (Config, error) {
	cfg := defaults()

	path, explicit, err := configPath()
	if err != nil {
		return Config{}, err
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			if !explicit && errors.Is(err, os.ErrNotExist) {
				path = ""
			} else {
				return Config{}, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}
	cfg.Path = path

	applyEnv(&cfg)
	normalize(&cfg)

	switch cfg.Audio.Backend {
	case BackendFFMPEG, BackendPortAudio:
	default:
		return Config{}, fmt.Errorf("unknown audio backend %q", cfg.Audio.Backend)
	}
	return cfg, nil
}

func configPath() (string, bool, error) {
	if path := strings.TrimSpace(os.Getenv(EnvConfigPath)); path != "" {
		return path, true, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", false, errors.New("could not determine home directory")
	}
	return filepath.Join(home, ".config", "livescribe", "config.toml"), false, nil
}

func applyEnv(cfg *Config) {
	cfg.Deepgram.APIKey = envOrDefault("DEEPGRAM_API_KEY", cfg.Deepgram.APIKey)
	cfg.Deepgram.APIBaseURL = envOrDefault("DEEPGRAM_API_BASE", cfg.Deepgram.APIBaseURL)
	cfg.Deepgram.FinishGraceMS = envOrDefaultInt("DEEPGRAM_FINISH_GRACE_MS", cfg.Deepgram.FinishGraceMS)

	cfg.Gemini.APIKey = envOrDefault("GEMINI_API_KEY", cfg.Gemini.APIKey)
	cfg.Gemini.APIBaseURL = envOrDefault("GEMINI_API_BASE", cfg.Gemini.APIBaseURL)
	cfg.Gemini.Model = envOrDefault("GEMINI_MODEL", cfg.Gemini.Model)

	cfg.Keys.DeepgramURL = envOrDefault("LIVESCRIBE_DEEPGRAM_KEY_URL", cfg.Keys.DeepgramURL)
	cfg.Keys.GeminiURL = envOrDefault("LIVESCRIBE_GEMINI_KEY_URL", cfg.Keys.GeminiURL)

	cfg.Audio.Backend = strings.ToLower(envOrDefault("LIVESCRIBE_AUDIO_BACKEND", cfg.Audio.Backend))
	cfg.Audio.RecorderCommand = envOrDefault("LIVESCRIBE_FFMPEG_COMMAND", cfg.Audio.RecorderCommand)
	cfg.Audio.InputFormat = envOrDefault("LIVESCRIBE_AUDIO_INPUT_FORMAT", cfg.Audio.InputFormat)
	cfg.Audio.InputDevice = firstNonEmpty(
		os.Getenv("LIVESCRIBE_AUDIO_INPUT_DEVICE"),
		os.Getenv("PULSE_SOURCE"),
		cfg.Audio.InputDevice,
	)
	cfg.Audio.SampleRate = envOrDefaultInt("LIVESCRIBE_SAMPLE_RATE", cfg.Audio.SampleRate)
	cfg.Audio.Channels = envOrDefaultInt("LIVESCRIBE_CHANNELS", cfg.Audio.Channels)
	cfg.Audio.ChunkIntervalMS = envOrDefaultInt("LIVESCRIBE_CHUNK_INTERVAL_MS", cfg.Audio.ChunkIntervalMS)

	cfg.Session.Option = envOrDefault("LIVESCRIBE_OPTION", cfg.Session.Option)
	cfg.Session.Diarize = envOrDefaultBool("LIVESCRIBE_DIARIZE", cfg.Session.Diarize)
	cfg.Session.KeepAliveMS = envOrDefaultInt("LIVESCRIBE_KEEPALIVE_MS", cfg.Session.KeepAliveMS)

	cfg.Logging.Level = envOrDefault("LIVESCRIBE_LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = envOrDefault("LIVESCRIBE_LOG_FORMAT", cfg.Logging.Format)

	cfg.Server.Addr = envOrDefault("LIVESCRIBE_SERVER_ADDR", cfg.Server.Addr)
}

func normalize(cfg *Config) {
	d := defaults()
	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = d.Audio.SampleRate
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = d.Audio.Channels
	}
	if cfg.Audio.ChunkIntervalMS < 20 {
		cfg.Audio.ChunkIntervalMS = d.Audio.ChunkIntervalMS
	}
	if cfg.Session.KeepAliveMS <= 0 {
		cfg.Session.KeepAliveMS = d.Session.KeepAliveMS
	}
	if cfg.Deepgram.FinishGraceMS <= 0 {
		cfg.Deepgram.FinishGraceMS = d.Deepgram.FinishGraceMS
	}
	if cfg.Gemini.TimeoutMS <= 0 {
		cfg.Gemini.TimeoutMS = d.Gemini.TimeoutMS
	}
	if cfg.Audio.Backend == "" {
		cfg.Audio.Backend = d.Audio.Backend
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
