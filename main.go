package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"

	"eventdash/internal/api"
	"eventdash/internal/config"
	"eventdash/internal/core"
	"eventdash/src"
	"eventdash/src/logger"
)

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: eventdash [-config config.yaml] <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "commands:")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-14s %s\n", c.name, c.summary)
	}
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	// .env is optional; real environment variables still apply
	envErr := godotenv.Load()

	env, err := src.LoadConfig()
	if err != nil {
		return err
	}
	if err := logger.InitLogger(env.LogConfig); err != nil {
		return err
	}
	log := logger.Component("main")
	if envErr != nil {
		log.Debug().Err(envErr).Msg("no .env file loaded")
	}

	global := flag.NewFlagSet("eventdash", flag.ContinueOnError)
	configPath := global.String("config", "config.yaml", "optional YAML config file")
	global.Usage = func() { usage(global.Output()) }
	if err := global.Parse(args); err != nil {
		return err
	}
	if global.NArg() == 0 {
		usage(os.Stderr)
		return flag.ErrHelp
	}

	cmd, ok := lookupCommand(global.Arg(0))
	if !ok {
		usage(os.Stderr)
		return fmt.Errorf("unknown command %q", global.Arg(0))
	}

	yamlConfig, err := config.LoadOptional(*configPath)
	if err != nil {
		return err
	}
	cfg, err := config.BuildCoreConfig(yamlConfig, env)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	mutationLog := logger.Component("mutations")
	app, err := core.NewApp(ctx, cfg,
		core.WithLogger(logger.Logger),
		core.WithMutationObserver(func(m api.MutationEntry) {
			ev := mutationLog.Debug()
			if m.Status == api.MutationError {
				ev = mutationLog.Warn().Err(m.Err)
			}
			ev.Str("endpoint", m.Endpoint).
				Str("status", string(m.Status)).
				Int("invalidated", m.Invalidated).
				Dur("elapsed", elapsed(m)).
				Msg("mutation")
		}),
	)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close app")
		}
	}()

	app.Start(ctx)
	log.Debug().Str("command", cmd.name).Str("backend", cfg.API.BaseURL).Msg("running command")

	c := &cli{app: app, out: out, now: time.Now}
	return cmd.run(c, ctx, global.Args()[1:])
}

func elapsed(m api.MutationEntry) time.Duration {
	if m.FinishedAt.IsZero() {
		return 0
	}
	return m.FinishedAt.Sub(m.StartedAt)
}
