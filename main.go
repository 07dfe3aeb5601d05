// Command bridge runs the websocket acceptor and its management surface.
//
// It supports two modes:
//  1. "server" (default) – binds the acceptor and runs the HTTP management API,
//     /metrics, and an /mcp HTTP endpoint
//  2. "stdio-mcp" – runs an MCP stdio server against a running bridge, or spins
//     up an internal one if none is reachable
//
// Acceptor settings come from an optional JSON or YAML file, overridden by
// flags and BRIDGE_* environment variables. A .env file in the working
// directory is loaded first.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v3"
	"github.com/wricardo/bridge/api"
	"github.com/wricardo/bridge/bridge/config"
	"github.com/wricardo/bridge/bridge/handler"
	"github.com/wricardo/bridge/bridge/service"
	"github.com/wricardo/bridge/bridge/session"
	"github.com/wricardo/bridge/logger"
	"github.com/wricardo/bridge/metrics"
	"github.com/wricardo/bridge/transport/mcp"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"
	"golang.org/x/sync/errgroup"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "Bridge"
)

const shutdownTimeout = 10 * time.Second

var errNotActive = errors.New("acceptor not active")

// main loads .env and runs the command tree.
func main() {
	// Load .env file if it exists (ignore error if not found)
	envErr := godotenv.Load()

	cmd := newCommand()
	cmd.Before = func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
		if err := setupLogging(cmd); err != nil {
			return ctx, err
		}
		if envErr == nil {
			logger.Info("Loaded environment variables from .env file")
		} else if !os.IsNotExist(envErr) {
			logger.Warn("Error loading .env file: %v", envErr)
		}
		return ctx, nil
	}
	cmd.After = func(ctx context.Context, cmd *cli.Command) error {
		return closeLogging()
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}
}

// newCommand builds the CLI. Actions are set for both modes; flags are shared.
func newCommand() *cli.Command {
	return &cli.Command{
		Name:    "bridge",
		Usage:   "Websocket acceptor with client status reporting",
		Version: Version,
		Flags: []cli.Flag{
			// Acceptor
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "acceptor configuration file (.json, .yaml or .yml)",
				Sources: cli.EnvVars("BRIDGE_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "address",
				Usage:   "acceptor bind address",
				Value:   config.DefaultBindAddress,
				Sources: cli.EnvVars("BRIDGE_ADDRESS"),
			},
			&cli.IntFlag{
				Name:    "port",
				Usage:   "acceptor port",
				Value:   config.DefaultPort,
				Sources: cli.EnvVars("BRIDGE_PORT"),
			},
			&cli.IntFlag{
				Name:    "timeout",
				Usage:   "seconds of inactivity in both directions before a session is closed",
				Value:   config.DefaultIdleTimeoutSeconds,
				Sources: cli.EnvVars("BRIDGE_TIMEOUT"),
			},
			&cli.IntFlag{
				Name:    "max-connections",
				Usage:   "maximum concurrent connections, 0 for unlimited",
				Sources: cli.EnvVars("BRIDGE_MAX_CONNECTIONS"),
			},
			&cli.IntFlag{
				Name:    "bind-retries",
				Usage:   "retries with exponential backoff when the initial bind fails",
				Sources: cli.EnvVars("BRIDGE_BIND_RETRIES"),
			},
			&cli.DurationFlag{
				Name:    "sweep-interval",
				Usage:   "how often stale identity registrations are swept, 0 to disable",
				Value:   30 * time.Second,
				Sources: cli.EnvVars("BRIDGE_SWEEP_INTERVAL"),
			},

			// Management API
			&cli.StringFlag{
				Name:    "host",
				Usage:   "management HTTP host",
				Value:   "localhost",
				Sources: cli.EnvVars("HTTP_HOST"),
			},
			&cli.IntFlag{
				Name:    "http-port",
				Usage:   "management HTTP port",
				Value:   8080,
				Sources: cli.EnvVars("HTTP_PORT"),
			},

			// Logging
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "debug, info, warn, error or off",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-file",
				Usage:   "write logs to this file instead of stderr",
				Sources: cli.EnvVars("LOG_FILE"),
			},

			// Tunnel
			&cli.BoolFlag{
				Name:    "ngrok",
				Usage:   "expose the management API through an ngrok tunnel",
				Sources: cli.EnvVars("NGROK_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "ngrok-auth",
				Usage:   "ngrok auth token",
				Sources: cli.EnvVars("NGROK_AUTHTOKEN", "NGROK_AUTH_TOKEN"),
			},
			&cli.StringFlag{
				Name:    "ngrok-domain",
				Usage:   "custom ngrok domain (optional)",
				Sources: cli.EnvVars("NGROK_DOMAIN"),
			},
		},
		Action: runServer,
		Commands: []*cli.Command{
			{
				Name:    "server",
				Aliases: []string{"http"},
				Usage:   "bind the acceptor and serve the management API (default)",
				Action:  runServer,
			},
			{
				Name:    "stdio-mcp",
				Aliases: []string{"mcp-stdio", "mcp"},
				Usage:   "serve MCP over stdio, proxying to a bridge management API",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "api-url",
						Usage:   "management API of a running bridge",
						Value:   "http://localhost:8080",
						Sources: cli.EnvVars("BRIDGE_API_URL"),
					},
				},
				Action: runStdioMCP,
			},
		},
	}
}

// setupLogging installs the global logger from the log flags.
func setupLogging(cmd *cli.Command) error {
	l, err := logger.Open(logger.ParseLevel(cmd.String("log-level")), cmd.String("log-file"), "")
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	logger.SetGlobal(l)
	return nil
}

// closeLogging closes the log file, if any, and falls back to stderr.
func closeLogging() error {
	l := logger.Global()
	logger.SetGlobal(logger.New(logger.LevelInfo, os.Stderr, ""))
	return l.Close()
}

// buildConfig reads the config file, if any, and applies flag and
// environment overrides.
func buildConfig(cmd *cli.Command) (config.Config, error) {
	opts, err := config.LoadOptions(cmd.String("config"))
	if err != nil {
		return config.Config{}, err
	}

	if cmd.IsSet("address") {
		opts.BindAddress = cmd.String("address")
	}
	if cmd.IsSet("port") {
		opts.Port = int(cmd.Int("port"))
	}
	if cmd.IsSet("timeout") {
		opts.IdleTimeoutSeconds = int(cmd.Int("timeout"))
	}
	if cmd.IsSet("max-connections") {
		opts.MaxConnections = int(cmd.Int("max-connections"))
	}

	return config.New(opts)
}

// components is everything runServer and the internal stdio server share
type components struct {
	bridge  *service.Bridge
	handler *handler.Handler
	apiSrv  *api.Server
}

// initializeComponents wires the registry, handler, bridge, metrics and API.
func initializeComponents(cfg config.Config) (*components, error) {
	registry := session.NewRegistry()
	frames := metrics.NewFrames()
	h := handler.New(registry, handler.WithFrameRecorder(frames))
	bridge := service.NewBridge(cfg, registry, h)

	reg, err := metrics.NewRegistry(bridge, frames)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	return &components{
		bridge:  bridge,
		handler: h,
		apiSrv:  api.NewServer(bridge, promhttp.HandlerFor(reg, promhttp.HandlerOpts{})),
	}, nil
}

// starter is the part of the bridge startWithRetry drives
type starter interface {
	Start()
	IsActive() bool
}

// startWithRetry starts the acceptor, retrying per policy while the bind
// fails. The bridge stays usable when every attempt fails.
func startWithRetry(ctx context.Context, b starter, policy backoff.BackOff) error {
	attempt := 0
	op := func() error {
		attempt++
		b.Start()
		if !b.IsActive() {
			return fmt.Errorf("attempt %d: %w", attempt, errNotActive)
		}
		return nil
	}
	notify := func(err error, wait time.Duration) {
		logger.Warn("Acceptor bind failed (%v), retrying in %s", err, wait.Round(time.Millisecond))
	}
	return backoff.RetryNotify(op, backoff.WithContext(policy, ctx), notify)
}

func bindPolicy(retries int) backoff.BackOff {
	if retries <= 0 {
		return &backoff.StopBackOff{}
	}
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 0
	return backoff.WithMaxRetries(b, uint64(retries))
}

// runServer binds the acceptor and serves the management API until SIGINT or
// SIGTERM, then disposes the acceptor.
func runServer(ctx context.Context, cmd *cli.Command) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	c, err := initializeComponents(cfg)
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(cmd.String("host"), strconv.Itoa(int(cmd.Int("http-port"))))
	mcpClient := mcp.NewClient("http://"+addr, Version)
	c.apiSrv.Handle("/mcp", mcpClient.HTTPHandler())

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting %s v%s", AppName, Version)
	if err := startWithRetry(ctx, c.bridge, bindPolicy(int(cmd.Int("bind-retries")))); err != nil {
		logger.Warn("Acceptor is not running; POST /api/start to retry")
	}

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      c.apiSrv,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Management API listening on %s", addr)
		logger.Info("REST API: http://%s/api", addr)
		logger.Info("Metrics: http://%s/metrics", addr)
		logger.Info("MCP endpoint: http://%s/mcp", addr)

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("management server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return c.handler.RunSweeper(gctx, cmd.Duration("sweep-interval"), c.bridge.LiveSessions)
	})

	if cmd.Bool("ngrok") {
		g.Go(func() error {
			runNgrok(gctx, cmd.String("ngrok-auth"), cmd.String("ngrok-domain"), c.apiSrv)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Management server shutdown error: %v", err)
		}
		return nil
	})

	err = g.Wait()
	c.bridge.Dispose()
	logger.Info("Bridge stopped")
	return err
}

// runNgrok serves h through an ngrok tunnel until ctx is done. Tunnel
// failures are logged and do not stop the bridge.
func runNgrok(ctx context.Context, authToken, domain string, h http.Handler) {
	if authToken == "" {
		logger.Warn("Ngrok enabled but no auth token provided (use --ngrok-auth, NGROK_AUTHTOKEN, or NGROK_AUTH_TOKEN env var)")
		return
	}

	logger.Info("Starting ngrok tunnel...")

	var tunnel ngrokConfig.Tunnel
	if domain != "" {
		tunnel = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(domain))
		logger.Info("Using custom ngrok domain: %s", domain)
	} else {
		tunnel = ngrokConfig.HTTPEndpoint()
	}

	tun, err := ngrok.Listen(ctx, tunnel, ngrok.WithAuthtoken(authToken))
	if err != nil {
		logger.Error("Failed to start ngrok tunnel: %v", err)
		return
	}

	ngrokURL := tun.URL()
	logger.Info("Ngrok tunnel established: %s", ngrokURL)
	logger.Info("  REST API (ngrok): %s/api", ngrokURL)
	logger.Info("  MCP endpoint (ngrok): %s/mcp", ngrokURL)

	srv := &http.Server{Handler: h}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	if err := srv.Serve(tun); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Warn("Ngrok server error: %v", err)
	}
	logger.Info("Ngrok tunnel closed")
}

// runStdioMCP serves MCP over stdio. It proxies to the bridge at --api-url
// when one answers /health; otherwise it starts an internal bridge with its
// management API on a random loopback port.
func runStdioMCP(ctx context.Context, cmd *cli.Command) error {
	baseURL := cmd.String("api-url")
	logger.Info("Checking for a running bridge at %s...", baseURL)

	if !reachable(ctx, baseURL) {
		logger.Info("No bridge found, starting an internal one")

		cfg, err := buildConfig(cmd)
		if err != nil {
			return err
		}
		c, err := initializeComponents(cfg)
		if err != nil {
			return err
		}

		c.bridge.Start()
		defer c.bridge.Dispose()

		sweepCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go c.handler.RunSweeper(sweepCtx, cmd.Duration("sweep-interval"), c.bridge.LiveSessions)

		listener, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return fmt.Errorf("failed to get available port: %w", err)
		}

		httpServer := &http.Server{Handler: c.apiSrv}
		go func() {
			if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Internal HTTP server error: %v", err)
			}
		}()
		defer httpServer.Close()

		baseURL = "http://" + listener.Addr().String()
		logger.Info("Internal management API on %s", baseURL)
	}

	mcpClient := mcp.NewClient(baseURL, Version)
	logger.Info("MCP stdio server ready (using %s)", baseURL)

	if err := server.ServeStdio(mcpClient.GetMCPServer()); err != nil {
		return fmt.Errorf("MCP stdio server error: %w", err)
	}
	return nil
}

// reachable reports whether a bridge management API answers at baseURL.
func reachable(ctx context.Context, baseURL string) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < 500
}
