package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/zulandar/intellifactory/internal/config"
	"github.com/zulandar/intellifactory/internal/dashboard"
	"github.com/zulandar/intellifactory/internal/notify"
	"github.com/zulandar/intellifactory/internal/notify/discord"
	"github.com/zulandar/intellifactory/internal/notify/slack"
	"github.com/zulandar/intellifactory/internal/scheduler"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server, event stream and optional schedule",
		Long: `Starts the HTTP API and the server-sent event stream. When schedule.cron is
set, a full agent cycle runs on that schedule. When Slack or Discord is
configured, decisions and state updates are relayed there as well.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, port)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	cmd.Flags().IntVar(&port, "port", 0, "HTTP port (overrides dashboard.port)")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string, port int) error {
	a, err := buildApp(cmd, configPath)
	if err != nil {
		return err
	}
	if port <= 0 {
		port = a.cfg.Dashboard.Port
	}

	notifiers, err := buildNotifiers(a.cfg.Notify)
	if err != nil {
		return err
	}

	var sched *scheduler.Scheduler
	if a.cfg.Schedule.Cron != "" {
		sched, err = scheduler.New(a.cfg.Schedule.Cron, a.orch, a.log)
		if err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			a.log.Info("shutting down")
			cancel()
		case <-ctx.Done():
		}
	}()

	var wg sync.WaitGroup
	if sched != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.log.Info("schedule enabled", "cron", a.cfg.Schedule.Cron)
			sched.Start(ctx)
		}()
	}
	if len(notifiers) > 0 {
		relay, err := notify.NewRelay(notify.RelayOpts{
			Source:       a.hub,
			Notifiers:    notifiers,
			FallbackOnly: a.cfg.Notify.FallbackOnly,
			Logger:       a.log,
		})
		if err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := relay.Run(ctx); err != nil {
				a.log.Error("notify relay stopped", "err", err)
			}
		}()
	}

	err = dashboard.Start(ctx, dashboard.StartOpts{
		Store:  a.store,
		Runner: a.orch,
		Hub:    a.hub,
		Port:   port,
		Out:    cmd.OutOrStdout(),
		Logger: a.log,
	})

	cancel()
	a.hub.Close()
	wg.Wait()
	return err
}

// buildNotifiers returns a notifier per configured destination.
func buildNotifiers(cfg config.NotifyConfig) ([]notify.Notifier, error) {
	var out []notify.Notifier
	if cfg.SlackWebhookURL != "" {
		n, err := slack.New(slack.Opts{WebhookURL: cfg.SlackWebhookURL})
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	if cfg.DiscordToken != "" {
		n, err := discord.New(discord.Opts{BotToken: cfg.DiscordToken, ChannelID: cfg.DiscordChannelID})
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

