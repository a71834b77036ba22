package main

import (
	"context"

	"racedirector/pkg/connection"
	"racedirector/pkg/logging"
	"racedirector/pkg/metrics"
	"racedirector/pkg/model"
	"racedirector/pkg/notification"
	"racedirector/pkg/settings"
	"racedirector/pkg/webserver"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/thejerf/suture/v4"
)

func runServe(ctx context.Context, args []string) error {
	flagSet := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	path := connectionFlags(flagSet)
	flagSet.String("addr", ":8085", "control API listen address")
	flagSet.String("settings-db", "racedirector.db", "SQLite file for persisted settings, :memory: to keep nothing")
	flagSet.Bool("restore-settings", true, "reuse the endpoint saved by the last configure")
	connect := flagSet.Bool("connect", false, "connect on startup")

	cfg, ok, err := parse(flagSet, args, path)
	if err != nil || !ok {
		return err
	}

	mm := metrics.NewManager()
	sm, err := settings.NewManager(cfg.SettingsDB)
	if err != nil {
		return err
	}
	defer sm.Close()

	connCfg := cfg.Connection()
	if cfg.RestoreSettings {
		saved, found, err := sm.LoadConnection(ctx)
		if err != nil {
			return err
		}
		if found {
			connCfg.Endpoint = saved.Endpoint
			connCfg.PollInterval = saved.PollInterval
			connCfg.Schema = saved.Schema
			logging.Info().Str("endpoint", saved.Endpoint).Time("saved_at", saved.UpdatedAt).Msg("restored connection settings")
		}
	}

	conn, err := connection.NewManager(ctx, connCfg, connection.WithMetrics(mm))
	if err != nil {
		return err
	}
	defer conn.Close()

	web := webserver.NewManager(cfg.Addr, conn,
		webserver.WithSettings(sm),
		webserver.WithMetrics(mm),
	)
	defer web.Close()
	web.Debug()

	sup := suture.New("racedirector", suture.Spec{
		EventHook: func(e suture.Event) {
			logging.Warn().Str("event", e.String()).Msg("supervisor")
		},
	})
	sup.Add(web)

	if cfg.TelegramToken != "" {
		sender, err := notification.NewTelegramSender(cfg.TelegramToken)
		if err != nil {
			return err
		}
		notifier := notification.NewManager(sender,
			notification.WithChatIDs(cfg.TelegramChatIDs...),
			notification.WithLister(sm),
			notification.WithEndpoint(func() string { return conn.Config().Endpoint }),
			notification.WithMetrics(mm),
		)
		cancel := conn.OnStatus(func(s model.ConnectionStatus) {
			notifier.Notify(s, "")
		})
		defer cancel()
		sup.Add(notifier)
	} else {
		logging.Info().Msg("no telegram token, alerts disabled")
	}

	if *connect {
		go conn.Connect(ctx)
	}

	err = sup.Serve(ctx)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		err = nil
	}
	logging.Info().Msg("bye")
	return err
}
