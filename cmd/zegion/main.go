package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/lmittmann/tint"
	cli "github.com/spf13/pflag"

	log "log/slog"

	"zegion/internal/app"
	"zegion/internal/config"
	"zegion/internal/tui"
)

func main() {
	cfgPath := cli.StringP("config", "c", "", "Config file path")
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	logLevel := cli.StringP("log", "l", "", "Log level, overrides the config")
	logFile := cli.String("log-file", "zegion.log", "Log file path")
	proxyAddr := cli.StringP("proxy", "p", "", "Socks proxy address for the model")
	inputFile := cli.StringP("input", "i", "", "Transcribe this audio file instead of the microphone")
	cli.Parse()

	if err := run(*cfgPath, *envFile, *logLevel, *logFile, *proxyAddr, *inputFile); err != nil {
		fmt.Fprintln(os.Stderr, "zegion:", err)
		os.Exit(1)
	}
}

func run(cfgPath, envFile, logLevel, logFile, proxyAddr, inputFile string) error {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if proxyAddr != "" {
		cfg.Model.Proxy = proxyAddr
	}
	if inputFile != "" {
		cfg.Capture.InputFile = inputFile
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	// The screen belongs to the UI, logs go to a file.
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	log.SetDefault(log.New(tint.NewHandler(f, &tint.Options{
		Level:   cfg.Level(),
		NoColor: true,
	})))

	if err := config.LoadEnv(envFile); err != nil {
		log.Warn("Failed to load env file", "err", err)
	}

	log.Info("Booting up")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bridge := tui.NewBridge(nil)
	a, err := app.Build(ctx, cfg, bridge, bridge)
	if err != nil {
		return err
	}

	model := tui.New(a.Controller)
	for _, w := range a.Warnings {
		model = model.WithNotice(w)
	}

	p := tea.NewProgram(model, tea.WithContext(ctx))
	bridge.Attach(p)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- a.Run(runCtx) }()

	log.Info("Boot up - successful")

	_, uiErr := p.Run()
	cancel()
	runErr := <-done

	// A signal kills the program through its context.
	if errors.Is(uiErr, tea.ErrProgramKilled) && ctx.Err() != nil {
		uiErr = nil
	}
	return errors.Join(uiErr, runErr)
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}
