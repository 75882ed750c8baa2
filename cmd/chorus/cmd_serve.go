package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"chorus/internal/api"
	"chorus/internal/config"
	"chorus/internal/feed"
	"chorus/internal/logging"
	"chorus/internal/scheduler"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler, the news cache and the read API",
	Long: `Sets up the store, starts every enabled agent on its own timer, keeps
the world-news cache fresh and serves the read API.

SIGINT or SIGTERM stops the timers, waits for in-flight cycles up to the
configured shutdown grace, shuts the HTTP server down and closes the store.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := a.schedule()
	if err != nil {
		return err
	}

	news := feed.NewNewsCache(a.source, cfg.Feeds.NewsFeeds, cfg.Feeds.GetNewsRefresh())
	srv := api.NewServer(cfg.Server, a.store, api.WithNews(news), api.WithScheduler(sched))

	bg, cancelBG := context.WithCancel(ctx)
	defer cancelBG()
	go news.Run(bg)
	go watchConfig(bg)

	if err := srv.Start(ctx); err != nil {
		return err
	}
	if err := sched.Start(ctx); err != nil {
		return err
	}
	logger.Info("chorus live",
		zap.String("addr", srv.Addr()),
		zap.Int("agents", sched.Len()),
		zap.String("driver", a.store.Driver()))

	<-ctx.Done()
	logger.Info("shutdown requested")
	return shutdown(sched, srv, cancelBG)
}

// shutdown stops the timers first, then drains cycles, then HTTP.
// The store is closed by the caller's deferred Close.
func shutdown(sched *scheduler.Scheduler, srv *api.Server, stopBackground context.CancelFunc) error {
	var errs []error
	if err := sched.Stop(); err != nil {
		errs = append(errs, err)
	}
	stopBackground()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	logger.Info("shutdown complete")
	return errors.Join(errs...)
}

// watchConfig applies logging changes from the config file without a restart.
func watchConfig(ctx context.Context) {
	if configPath == "" {
		return
	}
	err := config.Watch(ctx, configPath, func(next *config.Config) {
		level := next.Logging.Level
		if verbose {
			level = "debug"
		}
		if err := logging.SetLevel(level); err != nil {
			logger.Warn("ignoring config reload", zap.Error(err))
			return
		}
		logger.Info("config reloaded", zap.String("log_level", level))
	})
	if err != nil {
		logger.Warn("config watch unavailable", zap.Error(err))
	}
}
