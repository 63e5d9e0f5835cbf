package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/WangQiHao-Charlie/thc6gw/internal/config"
	"github.com/WangQiHao-Charlie/thc6gw/internal/gateway"
	"github.com/WangQiHao-Charlie/thc6gw/internal/httpapi"
	"github.com/WangQiHao-Charlie/thc6gw/internal/observability"
	"github.com/WangQiHao-Charlie/thc6gw/internal/service"
	"github.com/WangQiHao-Charlie/thc6gw/pkg/driver"
)

const shutdownGrace = 10 * time.Second

func newServeCmd() *cobra.Command {
	var (
		listen     string
		path       string
		grpcListen string
		logLevel   string
		logJSON    bool
		noMetrics  bool
		timeout    time.Duration
		maxConc    int
		allow      []string
		allowFile  string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the toolkit over MCP streamable HTTP (and optionally gRPC)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("listen") {
				cfg.Listen = listen
			}
			if flags.Changed("path") {
				cfg.Path = path
			}
			if flags.Changed("grpc-listen") {
				cfg.GRPCListen = grpcListen
			}
			if flags.Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			if flags.Changed("log-json") {
				cfg.LogJSON = logJSON
			}
			if flags.Changed("no-metrics") {
				cfg.Metrics = !noMetrics
			}
			if flags.Changed("timeout") {
				cfg.Exec.Timeout = timeout
			}
			if flags.Changed("max-concurrency") {
				cfg.Exec.MaxConcurrency = maxConc
			}
			if flags.Changed("allow") {
				cfg.Exec.AllowedBinaries = allow
			}
			if flags.Changed("allow-file") {
				cfg.Exec.AllowedBinariesFile = allowFile
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
	f := cmd.Flags()
	f.StringVar(&listen, "listen", "", "MCP listen address (default 0.0.0.0:3000)")
	f.StringVar(&path, "path", "", "MCP endpoint path (default /mcp)")
	f.StringVar(&grpcListen, "grpc-listen", "", "optional gRPC listen address")
	f.StringVar(&logLevel, "log-level", "", "log level: trace, debug, info, warn, error")
	f.BoolVar(&logJSON, "log-json", false, "emit JSON logs instead of console output")
	f.BoolVar(&noMetrics, "no-metrics", false, "disable /metrics and tool metrics")
	f.DurationVar(&timeout, "timeout", 0, "kill tools running longer than this (0 waits forever)")
	f.IntVar(&maxConc, "max-concurrency", 0, "limit concurrent tools (0 is unlimited)")
	f.StringSliceVar(&allow, "allow", nil, "absolute paths of binaries allowed to run (empty allows any)")
	f.StringVar(&allowFile, "allow-file", "", "file listing allowed binaries, one absolute path per line")
	return cmd
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return config.Config{}, err
	}
	return config.Load(path)
}

func serve(ctx context.Context, cfg config.Config) error {
	logger := observability.InitLogger("thc6gw", observability.LogOptions{Level: cfg.LogLevel, JSON: cfg.LogJSON})

	dcfg := cfg.DriverConfig()
	dcfg.Logger = &logger
	if cfg.Metrics {
		dcfg.Recorder = observability.NewToolRecorder()
	}
	warnRestrictions(logger, cfg)
	execDrv := driver.NewExecDriver(dcfg)
	gw := gateway.New(execDrv).WithLogger(logger)

	mcpSrv := service.NewMCPServer(gw, version)
	streamable := server.NewStreamableHTTPServer(mcpSrv, server.WithEndpointPath(cfg.Path))

	gin.SetMode(gin.ReleaseMode)
	router := httpapi.NewRouter(streamable, httpapi.Options{
		Path:      cfg.Path,
		Metrics:   cfg.Metrics,
		Logger:    logger,
		Service:   service.ServerName,
		Version:   version,
		Endpoints: len(gateway.Endpoints()),
		Stats:     execDrv.Metrics,
	})
	httpSrv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 2)
	go func() {
		logger.Info().Str("addr", cfg.Listen).Str("path", cfg.Path).Msg("mcp streamable-http listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("http serve: %w", err)
		}
	}()

	var grpcSrv *grpc.Server
	if cfg.GRPCListen != "" {
		l, err := net.Listen("tcp", cfg.GRPCListen)
		if err != nil {
			_ = httpSrv.Close()
			return fmt.Errorf("grpc listen: %w", err)
		}
		grpcSrv = service.NewGRPCServer(gw, logger)
		go func() {
			logger.Info().Str("addr", cfg.GRPCListen).Msg("grpc listening")
			if err := grpcSrv.Serve(l); err != nil {
				errc <- fmt.Errorf("grpc serve: %w", err)
			}
		}()
	}

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errc:
		logger.Error().Err(serveErr).Msg("listener failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	logger.Info().Msg("stopped")
	return serveErr
}

// warnRestrictions flags settings that make the gateway refuse or cut short
// invocations that would otherwise run to completion.
func warnRestrictions(logger zerolog.Logger, cfg config.Config) {
	if cfg.Exec.Timeout > 0 {
		logger.Warn().Dur("timeout", cfg.Exec.Timeout).Msg("tool timeout enabled; long-running tools will be killed")
	}
	if cfg.Exec.MaxConcurrency > 0 {
		logger.Warn().Int("max", cfg.Exec.MaxConcurrency).Msg("tool concurrency limited; extra calls will queue")
	}
	if len(cfg.Exec.AllowedBinaries) > 0 || cfg.Exec.AllowedBinariesFile != "" {
		logger.Warn().Strs("allow", cfg.Exec.AllowedBinaries).Str("allow_file", cfg.Exec.AllowedBinariesFile).
			Msg("binary allowlist enabled; other tools are rejected")
	}
}
