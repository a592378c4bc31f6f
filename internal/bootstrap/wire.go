package bootstrap

import (
	"livescribe/internal/audio"
	"livescribe/internal/config"
	"livescribe/internal/keys"
	"livescribe/internal/observability/logging"
	"livescribe/internal/observability/metrics"
	"livescribe/internal/ports"
	"livescribe/internal/providers/deepgram"
	"livescribe/internal/providers/gemini"
	"livescribe/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Controller *usecase.SessionController
	Corrector  *usecase.TranscriptCorrector
	Config     config.Config
}

// Close ends any session and releases the microphone.
func (s Services) Close() error {
	if s.Controller == nil {
		return nil
	}
	return s.Controller.Close()
}

// Build loads configuration, initializes logging and wires the runtime.
func Build(eventSink ports.EventSink) (Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return Services{}, err
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	return BuildWithConfig(cfg, eventSink)
}

// BuildWithConfig wires all backend dependencies for cfg.
func BuildWithConfig(cfg config.Config, eventSink ports.EventSink) (Services, error) {
	controller, err := usecase.NewSessionController(
		AudioSource(cfg),
		deepgram.NewProvider(deepgram.Config{
			APIBaseURL:  cfg.Deepgram.APIBaseURL,
			SampleRate:  cfg.Audio.SampleRate,
			Channels:    cfg.Audio.Channels,
			FinishGrace: cfg.Deepgram.FinishGrace(),
		}),
		DeepgramKeys(cfg),
		eventSink,
		usecase.Config{
			OptionKey:         cfg.Session.Option,
			Diarize:           cfg.Session.Diarize,
			KeepAliveInterval: cfg.Session.KeepAlive(),
			Metrics:           metrics.Default,
		},
	)
	if err != nil {
		return Services{}, err
	}

	corrector := usecase.NewTranscriptCorrector(
		controller,
		GeminiKeys(cfg),
		gemini.NewClient(gemini.Config{
			APIBaseURL: cfg.Gemini.APIBaseURL,
			Model:      cfg.Gemini.Model,
			Timeout:    cfg.Gemini.Timeout(),
		}),
		eventSink,
		metrics.Default,
	)

	return Services{Controller: controller, Corrector: corrector, Config: cfg}, nil
}

// AudioSource selects the capture backend.
func AudioSource(cfg config.Config) *audio.Source {
	audioCfg := ports.AudioConfig{
		SampleRate:  cfg.Audio.SampleRate,
		Channels:    cfg.Audio.Channels,
		InputFormat: cfg.Audio.InputFormat,
		InputDevice: cfg.Audio.InputDevice,
	}
	if cfg.Audio.Backend == config.BackendPortAudio {
		return audio.NewPortAudioSource(audioCfg, cfg.Audio.ChunkInterval())
	}
	return audio.NewFFMPEGSource(cfg.Audio.RecorderCommand, audioCfg, cfg.Audio.ChunkInterval())
}

// DeepgramKeys uses the key server when configured, the environment otherwise.
func DeepgramKeys(cfg config.Config) ports.KeySource {
	if cfg.Keys.DeepgramURL != "" {
		return keys.NewHTTPSource(cfg.Keys.DeepgramURL, nil)
	}
	return keys.EnvSource{Var: "DEEPGRAM_API_KEY", Fallback: cfg.Deepgram.APIKey}
}

// GeminiKeys uses the key server when configured, the environment otherwise.
func GeminiKeys(cfg config.Config) ports.KeySource {
	if cfg.Keys.GeminiURL != "" {
		return keys.NewHTTPSource(cfg.Keys.GeminiURL, nil)
	}
	return keys.EnvSource{Var: "GEMINI_API_KEY", Fallback: cfg.Gemini.APIKey}
}
