package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/your-username/ehr-console/internal/buffer"
	"github.com/your-username/ehr-console/internal/config"
	"github.com/your-username/ehr-console/internal/models"
	"github.com/your-username/ehr-console/internal/monitoring"
	"github.com/your-username/ehr-console/internal/output"
	"github.com/your-username/ehr-console/internal/stream"
	"github.com/your-username/ehr-console/internal/tui"
	"github.com/your-username/ehr-console/internal/view"
)

var logsFlags struct {
	plain     bool
	paused    bool
	buffer    int
	transport string
	levels    string
	search    string
	output    string
	exportDir string
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Follow the live log stream",
	Long: `Follow the platform's live log stream.

The interactive viewer is used when stdout is a terminal; --plain (or a
redirected stdout) prints matching entries line by line instead.

Examples:
  ehr-console logs
  ehr-console logs --level error,warn --search patient
  ehr-console logs --plain --output json > stream.jsonl`,
	Args: cobra.NoArgs,
	RunE: runLogs,
}

func init() {
	f := logsCmd.Flags()
	f.BoolVar(&logsFlags.plain, "plain", false, "print entries instead of starting the interactive viewer")
	f.BoolVar(&logsFlags.paused, "paused", false, "start without connecting")
	f.IntVar(&logsFlags.buffer, "buffer", 0, "number of entries kept in memory (default BUFFER_SIZE)")
	f.StringVar(&logsFlags.transport, "transport", "", "stream transport: sse or ws (default STREAM_TRANSPORT)")
	f.StringVarP(&logsFlags.levels, "level", "l", "", "visible levels (comma-separated: log,error,warn,debug,verbose)")
	f.StringVarP(&logsFlags.search, "search", "s", "", "initial search text")
	f.StringVarP(&logsFlags.output, "output", "o", "text", "plain output format: text, json")
	f.StringVar(&logsFlags.exportDir, "export-dir", ".", "directory for exports from the viewer")

	rootCmd.AddCommand(logsCmd)
}

func runLogs(cmd *cobra.Command, args []string) error {
	if logsFlags.transport != "" {
		cfg.Stream.Transport = strings.ToLower(logsFlags.transport)
	}
	if logsFlags.buffer != 0 {
		cfg.Stream.BufferSize = logsFlags.buffer
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	filter, err := parseLevels(logsFlags.levels)
	if err != nil {
		return err
	}
	filter = filter.WithQuery(logsFlags.search)

	buf, err := buffer.New(cfg.Stream.BufferSize)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	interactive := !logsFlags.plain && isatty.IsTerminal(os.Stdout.Fd())
	if logsFlags.paused && !interactive {
		return fmt.Errorf("--paused needs the interactive viewer")
	}
	if interactive {
		restore, err := logToFile(cfg.Log.File)
		if err != nil {
			return err
		}
		defer restore()
	}

	store, _ := newSession()
	if err := store.Watch(ctx, cfg.TokenFile()); err != nil {
		log.Warn().Err(err).Msg("Failed to watch the token file, logins from other terminals need a restart")
	}
	if store.Get() == "" {
		log.Warn().Msg("No access token stored, run `ehr-console login` first")
	}

	metrics := monitoring.NewMetricsCollector()
	mgr := stream.NewManager(stream.Options{
		Transport: newTransport(cfg),
		Tokens:    store,
		Backoff: stream.Backoff{
			Delay:      cfg.Stream.RetryDelay,
			Multiplier: cfg.Stream.RetryMultiplier,
			MaxDelay:   cfg.Stream.RetryMaxDelay,
			MaxRetries: cfg.Stream.MaxRetries,
		},
		Paused:  logsFlags.paused,
		Metrics: metrics,
	})
	mgr.Start(ctx)
	defer mgr.Close()

	log.Info().
		Str("url", cfg.StreamURL()).
		Str("transport", cfg.Stream.Transport).
		Int("buffer", cfg.Stream.BufferSize).
		Msg("Following log stream")

	if interactive {
		return tui.Run(ctx, tui.Options{
			Stream:     mgr,
			Buffer:     buf,
			Filter:     filter,
			Paused:     logsFlags.paused,
			StreamPath: cfg.Stream.Path,
			ExportDir:  logsFlags.exportDir,
			Tokens:     store,
			Metrics:    metrics,
		})
	}

	var renderer output.Renderer
	switch strings.ToLower(logsFlags.output) {
	case "json":
		renderer = output.NewJSONRenderer(os.Stdout)
	default:
		renderer = output.NewTextRenderer(os.Stdout, isatty.IsTerminal(os.Stdout.Fd()))
	}
	return follow(mgr.Events(), buf, filter, renderer)
}

// follow prints frames passing filter until the event channel closes
func follow(events <-chan stream.Event, buf *buffer.Buffer, filter view.Filter, renderer output.Renderer) error {
	for ev := range events {
		switch ev := ev.(type) {
		case stream.StateEvent:
			logState(ev)
		case stream.FrameEvent:
			rec := buf.Ingest(ev.Data)
			if !filter.Matches(rec) {
				continue
			}
			if err := renderer.Render(rec); err != nil {
				return fmt.Errorf("failed to write entry: %w", err)
			}
		}
	}
	return nil
}

func logState(ev stream.StateEvent) {
	switch ev.State {
	case models.StateError:
		if ev.Refreshing {
			log.Warn().Err(ev.Err).Int("attempt", ev.Attempt).Msg("Stream error, refreshing access token")
			return
		}
		log.Warn().Err(ev.Err).Int("attempt", ev.Attempt).Dur("retry_in", ev.RetryIn).Msg("Retrying stream")
	case models.StateClosed:
		if ev.Err != nil {
			log.Error().Err(ev.Err).Msg("Stream closed")
			return
		}
		log.Info().Msg("Stream closed")
	default:
		log.Info().Str("state", string(ev.State)).Msg("Stream state changed")
	}
}

// parseLevels builds the level filter from a comma-separated list; empty shows every level
func parseLevels(s string) (view.Filter, error) {
	filter := view.NewFilter()
	if strings.TrimSpace(s) == "" {
		return filter, nil
	}
	for level := range filter.Levels {
		filter.Levels[level] = false
	}
	for _, part := range strings.Split(s, ",") {
		level := models.ParseLevel(strings.ToUpper(strings.TrimSpace(part)))
		if level == models.LevelUnknown {
			return view.Filter{}, fmt.Errorf("unknown level %q", part)
		}
		filter.Levels[level] = true
	}
	return filter, nil
}

func newTransport(cfg *config.Config) stream.Transport {
	if cfg.Stream.Transport == config.TransportWebSocket {
		return stream.NewWSTransport(cfg.StreamURL())
	}
	return stream.NewSSETransport(cfg.StreamURL())
}
