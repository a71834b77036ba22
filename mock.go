package main

import (
	"context"
	"net/http"
	"time"

	"racedirector/pkg/adapter"
	"racedirector/pkg/logging"
	"racedirector/pkg/mocksim"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

func runMock(ctx context.Context, args []string) error {
	flagSet := pflag.NewFlagSet("mock", pflag.ContinueOnError)
	path := connectionFlags(flagSet)
	addr := flagSet.String("addr", ":6397", "listen address")
	generation := flagSet.String("generation", adapter.LMU, "payload schema to serve: lmu or rf2")
	speed := flagSet.Float64("speed", 1, "session clock speed multiplier")

	cfg, ok, err := parse(flagSet, args, path)
	if err != nil || !ok {
		return err
	}
	if _, found := adapter.Lookup(*generation); !found {
		return errors.Wrapf(adapter.ErrUnknownAdapter, "%q", *generation)
	}
	if *speed <= 0 {
		return errors.New("speed must be positive")
	}

	sim := mocksim.New(*generation)
	srv := &http.Server{
		Addr:         *addr,
		Handler:      sim.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		ticker := time.NewTicker(cfg.PollInterval)
		defer ticker.Stop()
		step := time.Duration(float64(cfg.PollInterval) * *speed)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sim.Advance(step)
			}
		}
	}()

	errChan := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", *addr).Str("sim", sim.Describe()).Msg("mock simulator listening")
		errChan <- srv.ListenAndServe()
	}()

	select {
	case err := <-errChan:
		return errors.Wrap(err, "mock simulator")
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
