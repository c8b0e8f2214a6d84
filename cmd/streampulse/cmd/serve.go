package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/jmylchreest/streampulse/internal/analysis"
	"github.com/jmylchreest/streampulse/internal/config"
	"github.com/jmylchreest/streampulse/internal/database"
	"github.com/jmylchreest/streampulse/internal/events"
	"github.com/jmylchreest/streampulse/internal/ffmpeg"
	"github.com/jmylchreest/streampulse/internal/hls"
	internalhttp "github.com/jmylchreest/streampulse/internal/http"
	"github.com/jmylchreest/streampulse/internal/httpclient"
	"github.com/jmylchreest/streampulse/internal/monitor"
	"github.com/jmylchreest/streampulse/internal/repository"
	"github.com/jmylchreest/streampulse/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the streampulse monitor and API server",
	Long: `Start the monitor loop and the HTTP server.

The monitor polls every configured stream on a fixed cadence, keeps a
rolling health assessment per stream, and runs media analysis on the
newest segment. The HTTP server exposes stream records, metric history,
and a live SSE event feed.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().Int("port", 8090, "Port to listen on")
	serveCmd.Flags().String("dsn", "streampulse.db", "Database DSN")

	mustBindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	mustBindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	mustBindPFlag("database.dsn", serveCmd.Flags().Lookup("dsn"))
}

// mustBindPFlag binds a viper key to a cobra flag and panics if binding
// fails.
func mustBindPFlag(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("binding flag %q to key %q: %v", flag.Name, key, err))
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := slog.Default()

	var cfg config.Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	db, err := database.New(cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warn("closing database failed", slog.String("error", err.Error()))
		}
	}()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	streamRepo := repository.NewStreamRepository(db.DB).
		WithErrorRetention(cfg.Monitor.ErrorRetention)
	metricRepo := repository.NewMetricRepository(db.DB)

	binaries, err := ffmpeg.FindBinaries(cfg.FFmpeg.BinaryPath, cfg.FFmpeg.ProbePath)
	if err != nil {
		return fmt.Errorf("locating ffmpeg binaries: %w", err)
	}
	logger.Info("ffmpeg binaries located",
		slog.String("ffmpeg", binaries.FFmpegPath),
		slog.String("ffprobe", binaries.FFprobePath),
	)

	bus := events.NewBus(logger)
	pipeline := analysis.NewPipeline(cfg.Monitor.MaxConcurrentAnalysis, logger)
	analyzer := analysis.NewAnalyzer(pipeline, streamRepo, binaries, bus, logger)

	client := httpclient.New(httpclient.Config{
		Timeout:             cfg.Monitor.FetchTimeout,
		UserAgent:           "streampulse/" + version.Short(),
		Logger:              logger,
		EnableDecompression: true,
	})
	fetcher := hls.NewFetcher(client, cfg.Monitor.FetchTimeout, logger)

	evaluator := monitor.NewEvaluator(
		fetcher,
		monitor.NewStateCache(),
		streamRepo,
		metricRepo,
		analyzer,
		bus,
		cfg.Monitor.WindowSpan,
		cfg.Monitor.StaleThreshold,
		logger,
	)
	mon := monitor.NewMonitor(evaluator, streamRepo, cfg.Monitor.PollInterval, logger)
	retention := monitor.NewRetentionSweeper(metricRepo, cfg.Monitor.MetricsRetention, logger)

	server := internalhttp.NewServer(cfg.Server, internalhttp.Dependencies{
		Streams: streamRepo,
		Metrics: metricRepo,
		Bus:     bus,
		DB:      db,
		Version: version.Short(),
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mon.Start(ctx)
	if err := retention.Start(ctx); err != nil {
		return fmt.Errorf("starting retention sweeper: %w", err)
	}

	logger.Info("streampulse started",
		slog.String("version", version.Short()),
		slog.String("address", cfg.Server.Address()),
		slog.Duration("poll_interval", cfg.Monitor.PollInterval),
	)

	err = server.ListenAndServe(ctx)

	mon.Stop()
	retention.Stop()
	pipeline.Shutdown()

	if err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	logger.Info("streampulse stopped")
	return nil
}
