package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	cli "github.com/spf13/pflag"

	"zegion/internal/config"
	"zegion/internal/ipc"
)

func main() {
	socket := cli.StringP("socket", "s", ipc.DefaultSocketPath, "Control socket path")
	prefsPath := cli.String("preferences", config.DefaultPreferencesPath(), "Preferences file for set-key")
	cli.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: zegion-ctl [flags] [trigger|stop|set-key KEY]\n")
		cli.PrintDefaults()
	}
	cli.Parse()

	cmd := ipc.CmdTrigger
	if cli.NArg() > 0 {
		cmd = cli.Arg(0)
	}

	var err error
	switch cmd {
	case "set-key":
		err = setKey(*prefsPath, cli.Arg(1))
	default:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err = ipc.SendCommand(ctx, *socket, cmd)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "zegion-ctl:", err)
		os.Exit(1)
	}
}

// setKey stores the model credential in the preferences the assistant
// reads at startup.
func setKey(path, key string) error {
	if key == "" {
		return errors.New("set-key needs the key as its argument")
	}

	prefs, err := config.LoadPreferences(path)
	if err != nil {
		return err
	}
	if prefs == nil {
		prefs = config.Preferences{}
	}
	prefs[config.GeminiAPIKey] = key
	return prefs.Save(path)
}
