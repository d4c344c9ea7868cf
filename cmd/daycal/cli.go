package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"daycal/internal/board"
	"daycal/internal/capture"
	"daycal/internal/clock"
	"daycal/internal/config"
	"daycal/internal/errors"
	"daycal/internal/gesture"
	"daycal/internal/kv"
	"daycal/internal/layout"
	appLog "daycal/internal/log"
	"daycal/internal/recur"
	"daycal/internal/store"
	"daycal/internal/web"
)

const defaultConfigPath = "daycal.yaml"

// newCLIApp creates the CLI application. Running it without a subcommand
// starts the server.
func newCLIApp() *cli.App {
	app := &cli.App{
		Name:    "daycal",
		Usage:   "Day-board calendar with touch gesture editing",
		Version: Version,
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   defaultConfigPath,
				EnvVars: []string{"DAYCAL_CONFIG"},
				Usage:   "Path to config file (created with defaults if missing)",
			},
		}, serveFlags()...),
		Action: serveAction,
		Commands: []*cli.Command{
			serveCmd(),
			dayCmd(),
			snapshotCmd(),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

func serveFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "listen", Aliases: []string{"l"}, Usage: "HTTP listen address (overrides config)"},
		&cli.StringFlag{Name: "preview", Usage: "PNG file served at /preview.png"},
	}
}

// serveCmd creates the serve command.
func serveCmd() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Run the board UI and JSON API",
		Flags:  serveFlags(),
		Action: serveAction,
	}
}

func serveAction(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if listen := c.String("listen"); listen != "" {
		cfg.Listen = listen
	}

	b, backend, err := openBoard(ctx, cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	refresher, err := clock.NewRefresher(cfg.RefreshCron, b.RefreshNow)
	if err != nil {
		return fmt.Errorf("refresh schedule: %w", err)
	}
	refresher.Start()
	defer refresher.Stop()

	appLog.Info("daycal starting",
		"version", Version,
		"listen", cfg.Listen,
		"storage", cfg.Storage.Driver,
		"refresh", cfg.RefreshCron,
		"hour_height", cfg.Grid.HourHeight,
		"snap_minutes", cfg.Grid.SnapMinutes,
		"basic_auth", cfg.BasicAuth != nil,
	)

	srv := web.NewServer(cfg, b, c.String("preview"))
	if err := srv.Serve(ctx); err != nil {
		return err
	}
	appLog.Info("daycal exiting")
	return nil
}

type dayOutput struct {
	Date   string              `json:"date"`
	Events []layout.ViewRecord `json:"events"`
}

// dayCmd creates the day command.
func dayCmd() *cli.Command {
	return &cli.Command{
		Name:  "day",
		Usage: "Print one day's laid-out events as JSON",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "date", Aliases: []string{"d"}, Usage: "Day to lay out (YYYY-MM-DD, default today)"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return outputError(err)
			}
			b, backend, err := openBoard(c.Context, cfg)
			if err != nil {
				return outputError(err)
			}
			defer backend.Close()

			date := c.String("date")
			if date == "" {
				date = b.CurrentDate()
			}
			views, err := b.DayView(date)
			if err != nil {
				return outputError(err)
			}
			if views == nil {
				views = []layout.ViewRecord{}
			}
			return outputJSON(c.App.Writer, dayOutput{Date: date, Events: views})
		},
	}
}

// snapshotCmd creates the snapshot command.
func snapshotCmd() *cli.Command {
	return &cli.Command{
		Name:  "snapshot",
		Usage: "Render the running board UI to a PNG with headless Chromium",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "url", Usage: "Board URL (defaults to the configured listen address)"},
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Value: "preview.png", Usage: "Output PNG path"},
			&cli.IntFlag{Name: "width", Value: capture.DefaultWidth, Usage: "Viewport width in px"},
			&cli.IntFlag{Name: "height", Value: capture.DefaultHeight, Usage: "Viewport height in px"},
			&cli.DurationFlag{Name: "timeout", Value: capture.DefaultTimeoutSec * time.Second, Usage: "Capture timeout"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return outputError(err)
			}
			url := c.String("url")
			if url == "" {
				url = boardURL(cfg.Listen)
			}
			opts := capture.Options{
				URL:        url,
				OutputPath: c.String("out"),
				Width:      c.Int("width"),
				Height:     c.Int("height"),
				Timeout:    c.Duration("timeout"),
			}
			if err := capture.CaptureBoardPNG(c.Context, opts); err != nil {
				return outputError(err)
			}
			appLog.Info("snapshot written", "url", opts.URL, "path", opts.OutputPath)
			return nil
		},
	}
}

// loadConfig reads the config file named by --config, overlays the
// environment and applies the log level.
func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.String("config")
	cfg, err := config.Load(path)
	if err != nil {
		if cfg == nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
		appLog.Warn("could not write default config", "config_path", path, "err", err)
	}
	cfg.ApplyEnv()
	appLog.SetLevel(appLog.ParseLevel(cfg.LogLevel))
	return cfg, nil
}

// openBoard opens the configured backend and builds a board over it. A
// backend that cannot be read yields an empty board rather than an error.
func openBoard(ctx context.Context, cfg *config.Config) (*board.Board, kv.KV, error) {
	backend, err := kv.Open(cfg.Storage)
	if err != nil {
		return nil, nil, errors.NewPersistence(fmt.Errorf("open %s storage: %w", cfg.Storage.Driver, err))
	}

	s, err := store.Open(ctx, backend, store.Options{
		Key:     cfg.Storage.Key,
		Quantum: cfg.Grid.SnapMinutes,
	})
	if err != nil {
		if s == nil {
			_ = backend.Close()
			return nil, nil, err
		}
		appLog.Warn("starting with an empty calendar", "driver", cfg.Storage.Driver, "err", err)
	}

	return board.New(s, boardOptions(cfg)), backend, nil
}

func boardOptions(cfg *config.Config) board.Options {
	return board.Options{
		Geometry: layout.Geometry{
			HourHeight:    cfg.Grid.HourHeight,
			GutterPercent: cfg.Grid.GutterPercent,
		},
		Gesture: gesture.Config{
			LongPress:          time.Duration(cfg.Gesture.LongPressMs) * time.Millisecond,
			JitterPx:           cfg.Gesture.JitterPx,
			SwipeDistanceRatio: cfg.Gesture.SwipeDistanceRatio,
			SwipeVelocity:      cfg.Gesture.SwipeVelocity,
			FlingWindow:        time.Duration(cfg.Gesture.FlingWindowMs) * time.Millisecond,
			ViewportWidth:      cfg.Gesture.ViewportWidth,
		},
		Recurrence: recur.ExpandConfig{
			DailyHorizon: cfg.Recurrence.DailyHorizonDays,
			WeeklyCount:  cfg.Recurrence.WeeklyOccurrences,
		},
		DefaultDuration: cfg.Grid.DefaultDurationMinutes,
		Timeout:         cfg.Storage.Timeout(),
	}
}

// boardURL turns a listen address into a URL a local browser can reach.
func boardURL(listen string) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return "http://" + listen + "/"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port) + "/"
}

// outputJSON writes v as indented JSON.
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	var calErr *errors.CalError
	if stderrors.As(err, &calErr) {
		return cli.Exit(fmt.Sprintf("[%s] %s", calErr.Code, calErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}
