package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"racedirector/pkg/connection"
	"racedirector/pkg/logging"
	"racedirector/pkg/model"
	"racedirector/pkg/render"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

const clearScreen = "\033[H\033[2J"

func runWatch(ctx context.Context, args []string) error {
	flagSet := pflag.NewFlagSet("watch", pflag.ContinueOnError)
	path := connectionFlags(flagSet)
	flagSet.Duration("refresh-interval", time.Second, "time between redraws")
	once := flagSet.Bool("once", false, "print the first snapshot and exit")

	cfg, ok, err := parse(flagSet, args, path)
	if err != nil || !ok {
		return err
	}

	conn, err := connection.NewManager(ctx, cfg.Connection())
	if err != nil {
		return err
	}
	defer conn.Close()

	if *once {
		first := make(chan model.State, 1)
		cancel := conn.OnSnapshot(func(st model.State) {
			if st.Session == nil {
				return
			}
			select {
			case first <- st:
			default:
			}
		})
		defer cancel()

		conn.Connect(ctx)
		if conn.Status() != model.Connected {
			return errors.Errorf("could not connect to %s", cfg.Endpoint)
		}
		select {
		case st := <-first:
			fmt.Fprint(os.Stdout, render.Screen(st))
		case <-ctx.Done():
		}
		return nil
	}

	ticker := time.NewTicker(cfg.RefreshInterval)
	defer ticker.Stop()
	for {
		// redial after the ERROR cool-down
		if conn.Status() == model.Disconnected {
			logging.Debug().Str("endpoint", cfg.Endpoint).Msg("connecting")
			conn.Connect(ctx)
		}
		fmt.Fprint(os.Stdout, clearScreen+render.Screen(conn.State()))

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
