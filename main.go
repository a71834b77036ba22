package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"racedirector/pkg/config"
	"racedirector/pkg/logging"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

type command struct {
	name  string
	usage string
	run   func(ctx context.Context, args []string) error
}

var commands = []command{
	{"serve", "run the control API, websocket feed and alerts", runServe},
	{"watch", "print the live timing screen in the terminal", runWatch},
	{"mock", "serve a synthetic simulator REST API", runMock},
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) < 2 || os.Args[1] == "-h" || os.Args[1] == "--help" || os.Args[1] == "help" {
		printHelp()
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for _, c := range commands {
		if c.name == os.Args[1] {
			return c.run(ctx, os.Args[2:])
		}
	}
	printHelp()
	return errors.Errorf("unknown command %q", os.Args[1])
}

func printHelp() {
	fmt.Fprintf(os.Stderr, "racedirector - live timing from the simulator REST API\n\nUsage:\n  racedirector <command> [flags]\n\nCommands:\n")
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-6s %s\n", c.name, c.usage)
	}
	fmt.Fprintf(os.Stderr, "\nRun racedirector <command> --help for the command flags.\n")
}

// connectionFlags registers the flags every command that talks to the
// simulator shares. Their names match the config keys with "-" for "_".
func connectionFlags(flagSet *pflag.FlagSet) *string {
	defaults := config.New()
	path := flagSet.StringP("config", "c", "", "YAML config file (default $"+config.EnvConfig+")")
	flagSet.StringP("endpoint", "e", defaults.Endpoint, "simulator REST base URL")
	flagSet.Duration("poll-interval", defaults.PollInterval, "time between polls")
	flagSet.Duration("probe-timeout", defaults.ProbeTimeout, "connection probe timeout")
	flagSet.Duration("fetch-timeout", defaults.FetchTimeout, "per poll fetch timeout")
	flagSet.Duration("reset-delay", defaults.ResetDelay, "how long ERROR is held before DISCONNECTED")
	flagSet.String("schema", defaults.Schema, "payload schema: auto, lmu or rf2")
	flagSet.String("log-level", defaults.LogLevel, "trace, debug, info, warn or error")
	flagSet.String("log-format", defaults.LogFormat, "console or json")
	flagSet.BoolP("help", "h", false, "show help")
	return path
}

// parse handles --help and loads the config with every flag the user set
// layered on top.
func parse(flagSet *pflag.FlagSet, args []string, path *string) (*config.Config, bool, error) {
	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			flagSet.PrintDefaults()
			return nil, false, nil
		}
		return nil, false, err
	}
	if help, _ := flagSet.GetBool("help"); help {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", flagSet.Name())
		flagSet.PrintDefaults()
		return nil, false, nil
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return nil, false, errors.Errorf("unexpected argument: %s", rest[0])
	}

	overrides := map[string]any{}
	flagSet.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "config", "help", "connect", "once", "generation", "speed":
			return
		}
		overrides[strings.ReplaceAll(f.Name, "-", "_")] = f.Value.String()
	})

	cfg, err := config.Load(context.Background(), *path, overrides)
	if err != nil {
		return nil, false, err
	}
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	return cfg, true, nil
}
