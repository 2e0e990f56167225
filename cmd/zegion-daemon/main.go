package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	cli "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	log "log/slog"

	"zegion/internal/app"
	"zegion/internal/config"
	"zegion/internal/hotkey"
	"zegion/internal/ipc"
	"zegion/internal/notify"
	"zegion/internal/observe"
	"zegion/internal/turn"
)

var version = "dev"

func main() {
	cfgPath := cli.StringP("config", "c", "", "Config file path")
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	logLevel := cli.StringP("log", "l", "", "Log level, overrides the config")
	proxyAddr := cli.StringP("proxy", "p", "", "Socks proxy address for the model")
	socket := cli.StringP("socket", "s", "", "Control socket path")
	cli.Parse()

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "zegion-daemon:", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *proxyAddr != "" {
		cfg.Model.Proxy = *proxyAddr
	}
	if *socket != "" {
		cfg.Control.Socket = *socket
	}
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintln(os.Stderr, "zegion-daemon:", err)
		os.Exit(1)
	}

	log.SetDefault(log.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level: cfg.Level(),
	})))

	// The hotkey event loop needs the main thread on macOS.
	hotkey.RunOnMainThread(func() {
		if err := run(cfg, *envFile); err != nil {
			log.Error("Daemon failed", "err", err)
			os.Exit(1)
		}
	})
}

func run(cfg *config.Config, envFile string) error {
	log.Info("Booting up")

	if err := config.LoadEnv(envFile); err != nil {
		log.Warn("Failed to load env file", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := observe.InitProvider(ctx, version, nil)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := shutdown(ctx); err != nil {
			log.Warn("Telemetry shutdown failed", "err", err)
		}
	}()

	var chime *notify.Chime
	if cfg.Notify.Chime != "" {
		if chime, err = notify.LoadChime(cfg.Notify.Chime); err != nil {
			log.Warn("Chime disabled", "err", err)
		}
	}
	ui := notify.NewDesktop(chime)

	a, err := app.Build(ctx, cfg, ui)
	if err != nil {
		return err
	}
	for _, w := range a.Warnings {
		ui.Notify(w)
	}

	var combo *hotkey.Combo
	if cfg.Control.Hotkey != "" {
		c, err := hotkey.Parse(cfg.Control.Hotkey)
		if err != nil {
			return err
		}
		combo = &c
	}

	srv, err := ipc.Listen(cfg.Control.Socket, control(a.Controller))
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.Run(ctx)
	})

	g.Go(func() error {
		log.Info("Control socket ready", "path", srv.Path())
		return srv.Serve(ctx)
	})

	if combo != nil {
		hk, err := hotkey.Register(*combo, func() { trigger(ctx, a.Controller) })
		if err != nil {
			log.Warn("Hotkey disabled", "err", err)
		} else {
			g.Go(func() error {
				<-ctx.Done()
				return hk.Unregister()
			})
		}
	}

	if cfg.Metrics.ListenAddr != "" {
		g.Go(func() error {
			return serveMetrics(ctx, cfg.Metrics.ListenAddr)
		})
	}

	log.Info("Boot up - successful")
	return g.Wait()
}

// control maps socket commands onto the controller.
func control(ctrl *turn.Controller) ipc.Handler {
	return func(ctx context.Context, msg ipc.ControlMessage) error {
		switch msg.Cmd {
		case ipc.CmdTrigger:
			return ctrl.Activate(ctx)
		case ipc.CmdStop:
			return ctrl.Stop(ctx)
		default:
			log.Warn("Unknown command", "cmd", msg.Cmd)
			return fmt.Errorf("%w: %s", ipc.ErrUnknownCommand, msg.Cmd)
		}
	}
}

// trigger starts a turn, or stops the running one, from the hotkey.
func trigger(ctx context.Context, ctrl *turn.Controller) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := ctrl.Activate(ctx)
	if errors.Is(err, turn.ErrBusy) {
		err = ctrl.Stop(ctx)
	}
	if err != nil {
		log.Warn("Hotkey action failed", "err", err)
	}
}

func serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observe.Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("Serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}
