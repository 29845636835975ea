package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"classcal/internal/booking"
	"classcal/internal/capture"
	"classcal/internal/config"
	"classcal/internal/ics"
	appLog "classcal/internal/log"
	"classcal/internal/schedule"
	"classcal/internal/store"
	"classcal/internal/web"
)

const version = "0.3.0"

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath  string
	listen      string
	once        bool
	capturePath string
	debug       bool
}

func main() {
	flags := parseFlags()
	if err := run(flags); err != nil {
		appLog.Error("classcal exiting with error", err)
		_ = appLog.Close()
		os.Exit(1)
	}
}

func run(flags flagConfig) error {
	conf, err := config.Load(flags.configPath)
	if err != nil {
		return fmt.Errorf("loading config %s: %w", flags.configPath, err)
	}

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	setupLogging(conf, flags.debug)
	defer appLog.Close()

	appLog.Info("classcal starting", "version", version)
	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"database", conf.Database,
		"generate_cron", conf.GenerateCron,
		"horizon_days", conf.HorizonDays,
		"recurring_count", len(conf.Recurring),
		"ics_count", len(conf.ICS),
		"admin", conf.AdminEnabled(),
		"once", flags.once,
		"capture", flags.capturePath,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	loc := web.ResolveLocationOrLocal(conf.Timezone)

	st, err := store.Open(ctx, conf.Database, store.Options{DefaultLocation: conf.DefaultLocation})
	if err != nil {
		return err
	}
	defer st.Close()

	gen, err := schedule.NewGenerator(conf, st, ics.NewFetcher(conf.CacheDir, nil), loc)
	if err != nil {
		return err
	}

	if flags.once {
		rep, err := gen.Run(ctx)
		if err != nil {
			return err
		}
		appLog.Info("one-shot generation done", "created", rep.Created, "failed", rep.Failed, "fetch_errors", rep.FetchErrors)
		return nil
	}

	srv, err := web.NewServer(web.Options{
		Config:    conf,
		Classes:   st,
		Booking:   booking.New(st, nil),
		Generator: gen,
		Location:  loc,
	})
	if err != nil {
		return err
	}

	if flags.capturePath != "" {
		return runCapture(ctx, srv, flags.capturePath)
	}

	sched, err := schedule.NewScheduler(conf.GenerateCron, loc, func(ctx context.Context) {
		if _, err := gen.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			appLog.Error("scheduled generation failed", err)
		}
	})
	if err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	if err := srv.Run(ctx); err != nil {
		return err
	}
	appLog.Info("classcal exiting")
	return nil
}

func setupLogging(conf *config.Config, debug bool) {
	level := appLog.ParseLevel(conf.Log.Level)
	if debug {
		level = appLog.LevelDebug
	}
	appLog.SetLevel(level)
	appLog.UseFile(appLog.FileOptions{
		Path:       conf.Log.File,
		MaxSizeMB:  conf.Log.MaxSizeMB,
		MaxBackups: conf.Log.MaxBackups,
		MaxAgeDays: conf.Log.MaxAgeDays,
	})
}

// runCapture serves the calendar on a loopback port just long enough to
// screenshot it.
func runCapture(ctx context.Context, srv *web.Server, out string) error {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return err
	}

	serveCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- srv.Serve(serveCtx, ln) }()

	start := time.Now()
	err = capture.CaptureCalendarPNG(ctx, capture.CaptureOptions{
		URL:        "http://" + ln.Addr().String() + "/",
		OutputPath: out,
	})
	stop()
	if serveErr := <-done; serveErr != nil {
		appLog.Error("capture server stopped with error", serveErr)
	}
	if err != nil {
		return err
	}
	appLog.Info("calendar captured", "path", out, "elapsed", time.Since(start).String())
	return nil
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/classcal/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Generate recurring and imported classes once and exit")
	flag.StringVar(&cfg.capturePath, "capture", "", "Write a PNG screenshot of the calendar page to this path and exit")
	flag.BoolVar(&cfg.debug, "debug", false, "Enable debug logging")

	flag.Parse()

	return cfg
}
