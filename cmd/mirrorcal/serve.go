package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"mirrorcal/internal/bus"
	"mirrorcal/internal/capture"
	"mirrorcal/internal/config"
	appLog "mirrorcal/internal/log"
	"mirrorcal/internal/metrics"
	"mirrorcal/internal/module"
	"mirrorcal/internal/schedule"
	"mirrorcal/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the calendar module, scheduler and HTTP server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg)
	},
}

func serve(ctx context.Context, cfg *config.Config) error {
	appLog.Info("mirrorcal starting", "version", version)
	appLog.Info("effective config",
		"listen", cfg.Listen,
		"timezone", cfg.Location().String(),
		"refresh", cfg.RefreshCron,
		"calendars", len(cfg.Calendars),
		"number_of_days", cfg.NumberOfDays,
		"snapshot", cfg.Snapshot.Enabled,
		"fetcher", config.RedactURL(cfg.FetcherURL),
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	b := bus.New()
	defer b.Close()

	// The forwarder subscribes before the module announces its calendars.
	var fw *web.Forwarder
	if cfg.FetcherURL != "" {
		fw = web.NewForwarder(b, cfg.FetcherURL)
	}

	mod, err := module.New(module.Options{Config: cfg, Bus: b, Metrics: m})
	if err != nil {
		return err
	}

	srv, err := web.NewServer(web.Options{Config: cfg, Calendar: mod, Bus: b, Gatherer: reg})
	if err != nil {
		return err
	}

	schedOpts := schedule.Options{
		RefreshSpec: cfg.RefreshCron,
		Sources:     cfg.Sources(),
		Updater:     mod,
		Fetcher:     mod,
	}
	if cfg.Snapshot.Enabled {
		snap := &capture.Snapshotter{Options: capture.OptionsFromConfig(cfg), Metrics: m}
		schedOpts.Snapshot = snap.Snapshot
	}
	sched, err := schedule.New(schedOpts)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg      sync.WaitGroup
		srvErr  error
		errOnce sync.Once
	)
	fail := func(err error) {
		errOnce.Do(func() { srvErr = err })
		cancel()
	}

	wg.Add(3)
	go func() {
		defer wg.Done()
		if err := srv.Run(ctx); err != nil {
			appLog.Error("HTTP server failed", err)
			fail(err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := mod.Run(ctx); err != nil {
			appLog.Error("calendar module stopped", err)
			fail(err)
		}
	}()
	go func() {
		defer wg.Done()
		sched.Run(ctx)
	}()
	if fw != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fw.Run(ctx)
		}()
	}

	<-ctx.Done()
	appLog.Info("shutting down")
	wg.Wait()
	appLog.Info("mirrorcal exiting")
	return srvErr
}
