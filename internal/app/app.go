// Package app assembles the turn controller and its collaborators from a
// configuration. Both the terminal UI and the daemon start from here.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "log/slog"

	"golang.org/x/sync/errgroup"

	"zegion/internal/audio"
	"zegion/internal/capture"
	"zegion/internal/config"
	"zegion/internal/llm"
	"zegion/internal/navigate"
	"zegion/internal/observe"
	"zegion/internal/present"
	"zegion/internal/proxy"
	"zegion/internal/tts"
	"zegion/internal/turn"
	"zegion/pkg/protocol"
	"zegion/pkg/stt"
)

// Shard is the name the assistant uses on the hub.
const Shard = "ZEGION"

const VoiceUnavailableMessage = "Language not supported, using the default voice"

// selfStreams are the PulseAudio application names ducking leaves alone.
var selfStreams = []string{"zegion", "eSpeak", "espeak-ng"}

type App struct {
	Controller *turn.Controller
	// Warnings are problems found at startup that did not stop it.
	Warnings []string

	bus *protocol.Client
}

// Build wires everything cfg describes around ui. On error every
// resource opened so far is released.
func Build(ctx context.Context, cfg *config.Config, ui turn.UI, observers ...turn.Observer) (a *App, err error) {
	var cleanup []func() error
	defer func() {
		if err == nil {
			return
		}
		for i := len(cleanup) - 1; i >= 0; i-- {
			if cerr := cleanup[i](); cerr != nil {
				log.Debug("Cleanup failed", "err", cerr)
			}
		}
	}()

	a = &App{}

	model, err := buildModel(cfg)
	if err != nil {
		return nil, err
	}

	src, perms, err := buildSource(cfg)
	if err != nil {
		return nil, err
	}
	if c, ok := src.(interface{ Close() error }); ok {
		cleanup = append(cleanup, c.Close)
	}

	tr, err := stt.NewTranscriber(cfg.Capture.ModelPath, stt.Options{
		Language: cfg.Capture.Language,
		Threads:  cfg.Capture.Threads,
	})
	if err != nil {
		return nil, err
	}
	cleanup = append(cleanup, tr.Close)
	log.Debug("Loaded whisper", "model", cfg.Capture.ModelPath)

	capturer := capture.New(capture.NewLocal(src, tr), perms)

	espeak, err := tts.NewEspeak(cfg.Speech.Voice)
	switch {
	case errors.Is(err, tts.ErrVoiceUnavailable):
		log.Warn("Voice not available", "voice", cfg.Speech.Voice)
		a.Warnings = append(a.Warnings, VoiceUnavailableMessage)
	case err != nil:
		return nil, err
	}
	cleanup = append(cleanup, espeak.Close)

	var speaker turn.Speaker = espeak
	if cfg.Speech.Duck {
		speaker = audio.NewDuckingSpeaker(espeak, audio.NewDucker(selfStreams, 10), cfg.Speech.DuckFactor, 150*time.Millisecond)
	}

	metrics, err := observe.Default()
	if err != nil {
		return nil, err
	}

	opts := []turn.Option{
		turn.WithTriggers(triggers(cfg.Navigation.Triggers)),
		turn.WithObserver(metrics),
	}
	for _, o := range observers {
		opts = append(opts, turn.WithObserver(o))
	}

	nav, bus, err := buildNavigator(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if nav != nil {
		opts = append(opts, turn.WithNavigator(nav))
	}
	a.bus = bus

	a.Controller = turn.New(
		capturer,
		observe.InstrumentModel(model, cfg.Model.Backend, metrics),
		present.New(present.WithDuration(cfg.Presenter.RevealDuration)),
		speaker,
		ui,
		opts...,
	)
	return a, nil
}

// Run drives the controller, and the hub connection when there is one,
// until ctx is done.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.Controller.Run(ctx)
	})
	if a.bus != nil {
		g.Go(func() error {
			return a.bus.Run(ctx)
		})
	}

	return g.Wait()
}

func buildModel(cfg *config.Config) (llm.Client, error) {
	prefs, err := config.LoadPreferences(cfg.Preferences)
	if err != nil {
		return nil, err
	}
	apiKey := prefs.APIKey()
	if apiKey == "" {
		log.Warn("No model credential configured", "preference", config.GeminiAPIKey, "env", config.GeminiAPIKeyEnv)
	}

	httpClient, err := proxy.NewHTTPClient(cfg.Model.Proxy, cfg.Model.Timeout)
	if err != nil {
		return nil, err
	}

	return llm.New(llm.Config{
		Backend:    llm.Backend(cfg.Model.Backend),
		Model:      cfg.Model.Name,
		BaseURL:    cfg.Model.BaseURL,
		APIKey:     apiKey,
		HTTPClient: httpClient,
	})
}

func buildSource(cfg *config.Config) (capture.Source, capture.Permissions, error) {
	if cfg.Capture.InputFile != "" {
		log.Info("Capturing from file", "path", cfg.Capture.InputFile)
		return &audio.FileSource{
			Path: cfg.Capture.InputFile,
			Max:  cfg.Capture.MaxDuration,
		}, audio.FilePermission{Path: cfg.Capture.InputFile}, nil
	}

	rec := audio.NewRecorder(audio.WithLimits(cfg.Capture.MaxDuration, cfg.Capture.SilenceTimeout))
	if err := rec.Init(); err != nil {
		return nil, nil, fmt.Errorf("init audio: %w", err)
	}
	return rec, audio.DevicePermission{}, nil
}

func buildNavigator(ctx context.Context, cfg *config.Config) (turn.Navigator, *protocol.Client, error) {
	var (
		navs navigate.All
		bus  *protocol.Client
	)

	if len(cfg.Navigation.Commands) > 0 {
		navs = append(navs, navigate.NewCommand(cfg.Navigation.Commands))
	}

	if cfg.Navigation.BusURL != "" {
		var err error
		bus, err = protocol.Dial(ctx, protocol.Config{
			Shard: Shard,
			URL:   cfg.Navigation.BusURL,
			EmitOut: func(m *protocol.Message) {
				log.Debug("Hub message ignored", "msg", m.String())
			},
		})
		if err != nil {
			return nil, nil, err
		}
		navs = append(navs, navigate.NewBus(bus, "", 0))
	}

	if len(navs) == 0 {
		log.Info("No navigation configured, triggers will only be logged")
		return nil, nil, nil
	}
	return navs, bus, nil
}

func triggers(in []config.Trigger) []turn.Trigger {
	out := make([]turn.Trigger, 0, len(in))
	for _, t := range in {
		out = append(out, turn.Trigger{Keyword: t.Keyword, Target: t.Target})
	}
	return out
}
