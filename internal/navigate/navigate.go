// Package navigate opens application features, like the camera, that a
// reply asked for.
package navigate

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	log "log/slog"

	"zegion/internal/turn"
	"zegion/pkg/protocol"
)

var ErrUnknownTarget = errors.New("navigate: unknown target")

// Command starts a program per target and does not wait for it to exit.
type Command struct {
	commands map[string][]string
	start    func(argv []string) error
}

var _ turn.Navigator = (*Command)(nil)

func NewCommand(commands map[string][]string) *Command {
	return &Command{commands: commands, start: startDetached}
}

func (c *Command) Navigate(_ context.Context, target string) error {
	argv, ok := c.commands[target]
	if !ok || len(argv) == 0 {
		return fmt.Errorf("%w: %q", ErrUnknownTarget, target)
	}

	log.Info("Starting", "target", target, "cmd", strings.Join(argv, " "))
	if err := c.start(argv); err != nil {
		return fmt.Errorf("navigate: start %s: %w", argv[0], err)
	}
	return nil
}

func startDetached(argv []string) error {
	cmd := exec.Command(argv[0], argv[1:]...)
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() {
		if err := cmd.Wait(); err != nil {
			log.Debug("Program exited", "cmd", argv[0], "err", err)
		}
	}()
	return nil
}

// Requester is the part of [protocol.Client] the bus navigator uses.
type Requester interface {
	Request(ctx context.Context, m protocol.Message) (*protocol.Message, error)
}

// Bus asks the hub to open a target and waits for its acknowledgement.
type Bus struct {
	client  Requester
	to      string
	timeout time.Duration
}

var _ turn.Navigator = (*Bus)(nil)

// NewBus addresses OPEN requests to the shard to, [protocol.Broadcast] when
// empty.
func NewBus(client Requester, to string, timeout time.Duration) *Bus {
	if to == "" {
		to = protocol.Broadcast
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Bus{client: client, to: to, timeout: timeout}
}

func (b *Bus) Navigate(ctx context.Context, target string) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	resp, err := b.client.Request(ctx, protocol.Message{
		To:   b.to,
		Verb: "OPEN",
		Noun: strings.ToUpper(target),
	})
	if err != nil {
		return fmt.Errorf("navigate: open %s: %w", target, err)
	}
	if resp.IsError() {
		return fmt.Errorf("navigate: open %s refused: %s", target, strings.Join(append([]string{resp.Noun}, resp.Args...), " "))
	}
	return nil
}

// All asks every navigator in turn. It succeeds when at least one did and
// otherwise reports the combined failures.
type All []turn.Navigator

func (a All) Navigate(ctx context.Context, target string) error {
	var (
		errs []error
		ok   bool
	)
	for _, n := range a {
		if err := n.Navigate(ctx, target); err != nil {
			errs = append(errs, err)
			continue
		}
		ok = true
	}
	if ok {
		if len(errs) > 0 {
			log.Warn("Some navigators failed", "target", target, "err", errors.Join(errs...))
		}
		return nil
	}
	return errors.Join(errs...)
}
