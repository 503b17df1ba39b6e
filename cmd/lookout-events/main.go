// lookout-events tails the Lookout Mobile Risk event stream and prints one
// JSON object per event to stdout. All stream engineering lives in the
// library; this binary only parses flags, loads the application key, and
// formats output.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/araddon/dateparse"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/canopysec/lookoutstream"
	"github.com/canopysec/lookoutstream/auth"
	"github.com/canopysec/lookoutstream/obs"
)

const appKeyEnv = "LOOKOUT_APP_KEY"

type cliOptions struct {
	current     bool
	historical  bool
	startTime   string
	eventTypes  []string
	lastEventID string
	baseURL     string
	verbose     bool
	trace       bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}
	cmd := &cobra.Command{
		Use:           "lookout-events",
		Short:         "Stream Lookout security events",
		Long:          "Stream DEVICE, THREAT, and AUDIT events from the Lookout Mobile Risk API, live or as historical replay.",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&opts.current, "current", false, "stream current events")
	flags.BoolVar(&opts.historical, "historical", false, "stream historical events from --start-time")
	flags.StringVar(&opts.startTime, "start-time", "", "start time for historical replay (ISO8601 or human-readable, within 10 days)")
	flags.StringSliceVar(&opts.eventTypes, "event-types", nil, "event types to stream (DEVICE, THREAT, AUDIT)")
	flags.StringVar(&opts.lastEventID, "last-event-id", "", "resume from a specific event id")
	flags.StringVar(&opts.baseURL, "base-url", lookoutstream.DefaultBaseURL, "API base URL")
	flags.BoolVar(&opts.verbose, "verbose", false, "debug logging")
	flags.BoolVar(&opts.trace, "trace", false, "print OpenTelemetry spans to stderr")
	cmd.MarkFlagsMutuallyExclusive("current", "historical")
	cmd.MarkFlagsOneRequired("current", "historical")

	return cmd
}

func run(parent context.Context, opts *cliOptions) error {
	// A missing .env is fine; the key may come from the real environment.
	_ = godotenv.Load()
	appKey := os.Getenv(appKeyEnv)
	if appKey == "" {
		return fmt.Errorf("%s not set (environment or .env)", appKeyEnv)
	}

	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	obsOpts := obs.DefaultOptions()
	obsOpts.ServiceName = "lookout-events"
	if opts.trace {
		obsOpts.Exporter = obs.ExporterStdout
	}
	shutdown, err := obs.Init(ctx, obsOpts)
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdown(shutdownCtx)
	}()

	req, err := buildRequest(opts)
	if err != nil {
		return err
	}

	client := lookoutstream.New(
		auth.New(appKey, auth.WithBaseURL(opts.baseURL)),
		lookoutstream.WithBaseURL(opts.baseURL),
		lookoutstream.WithLogger(logger),
	)

	logger.Info("starting event stream",
		"mode", string(req.Mode),
		"types", strings.Join(opts.eventTypes, ","),
		"last_event_id", req.LastEventID)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	runErr := client.Run(ctx, req, func(ev lookoutstream.Event) {
		if err := enc.Encode(ev); err != nil {
			logger.Error("write event", "error", err)
		}
	})
	if runErr != nil {
		return runErr
	}
	logger.Info("stream stopped")
	return nil
}

func buildRequest(opts *cliOptions) (lookoutstream.StreamRequest, error) {
	mode := lookoutstream.ModeCurrent
	var reqOpts []lookoutstream.RequestOption

	if opts.historical {
		mode = lookoutstream.ModeHistorical
		if opts.startTime == "" {
			return lookoutstream.StreamRequest{}, errors.New("--historical requires --start-time")
		}
		start, err := dateparse.ParseAny(opts.startTime)
		if err != nil {
			return lookoutstream.StreamRequest{}, fmt.Errorf("invalid --start-time %q: %w", opts.startTime, err)
		}
		reqOpts = append(reqOpts, lookoutstream.WithStartTime(start))
	}

	if len(opts.eventTypes) > 0 {
		types := make([]lookoutstream.EventType, 0, len(opts.eventTypes))
		for _, t := range opts.eventTypes {
			types = append(types, lookoutstream.EventType(strings.ToUpper(strings.TrimSpace(t))))
		}
		reqOpts = append(reqOpts, lookoutstream.WithEventTypes(types...))
	}
	if opts.lastEventID != "" {
		reqOpts = append(reqOpts, lookoutstream.WithLastEventID(opts.lastEventID))
	}

	return lookoutstream.NewStreamRequest(mode, reqOpts...)
}
