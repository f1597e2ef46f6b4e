package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/CZERTAINLY/Updater/internal/gitsync"
	"github.com/CZERTAINLY/Updater/internal/log"
	"github.com/CZERTAINLY/Updater/internal/mailcfg"
	"github.com/CZERTAINLY/Updater/internal/service"

	"github.com/spf13/cobra"
)

var (
	flagRestart    bool   // value of check --restart
	flagMailConfig string // value of mail --file
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "run keeps the repository up to date until interrupted",
	RunE:  doRun,
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "check runs a single update check and prints its outcome",
	RunE:  doCheck,
}

var mailCmd = &cobra.Command{
	Use:   "mail",
	Short: "mail prints the resolved email settings",
	RunE:  doMail,
}

func doRun(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = log.ContextAttrs(ctx, slog.Group("updater",
		slog.String("cmd", "run"),
		slog.Int("pid", os.Getpid()),
	))

	cfg, err := service.ConfigFromModel(config.Supervisor)
	if err != nil {
		return err
	}
	syncer, err := newSyncer()
	if err != nil {
		return err
	}

	// checks are not interrupted by the signal, Stop waits for them instead
	supervisor, err := service.SetupWithConfig(context.WithoutCancel(ctx), cfg,
		service.WithLogger(logger),
		service.WithSyncer(syncer),
	)
	if err != nil {
		return err
	}

	<-ctx.Done()
	logger.InfoContext(ctx, "shutting down")
	return supervisor.Stop()
}

func doCheck(cmd *cobra.Command, _ []string) error {
	ctx := log.ContextAttrs(cmd.Context(), slog.Group("updater",
		slog.String("cmd", "check"),
		slog.Int("pid", os.Getpid()),
	))

	cfg, err := service.ConfigFromModel(config.Supervisor)
	if err != nil {
		return err
	}
	syncer, err := newSyncer()
	if err != nil {
		return err
	}

	opts := []service.Option{
		service.WithLogger(logger),
		service.WithSyncer(syncer),
	}
	if !flagRestart {
		opts = append(opts, service.WithoutRestart())
	}
	supervisor, err := service.New(cfg, opts...)
	if err != nil {
		return err
	}

	res := supervisor.CheckAndUpdate(ctx)
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), res.String())
	if res.Outcome.Failed() {
		return fmt.Errorf("update check failed: %s", res)
	}
	return nil
}

func doMail(cmd *cobra.Command, _ []string) error {
	cfg, err := mailcfg.Load(cmd.Context(), logger, flagMailConfig)
	if err != nil {
		return err
	}
	cfg = cfg.Redacted()
	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "provider:  %s\n", cfg.Provider)
	if cfg.Provider == mailcfg.ProviderSMTP {
		_, _ = fmt.Fprintf(out, "server:    %s:%d\n", cfg.SMTP.Server, cfg.SMTP.Port)
		_, _ = fmt.Fprintf(out, "tls:       %t\n", cfg.SMTP.UseTLS)
		_, _ = fmt.Fprintf(out, "username:  %s\n", cfg.SMTP.Username)
		_, _ = fmt.Fprintf(out, "password:  %s\n", cfg.SMTP.Password)
		_, _ = fmt.Fprintf(out, "from:      %s\n", cfg.SMTP.FromEmail)
	}
	return nil
}

func newSyncer() (*gitsync.Syncer, error) {
	fetch, status, pull, err := config.Git.Timeouts()
	if err != nil {
		return nil, err
	}
	return gitsync.New(
		gitsync.WithGitBinary(config.Git.BinaryOrDefault()),
		gitsync.WithTimeouts(fetch, status, pull),
		gitsync.WithLogger(logger),
	), nil
}
