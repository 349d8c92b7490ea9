package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mj1618/web-bridge/internal/httpapi"
	"github.com/mj1618/web-bridge/internal/metrics"
	"github.com/mj1618/web-bridge/internal/model"
	"github.com/mj1618/web-bridge/internal/platform"
	"github.com/mj1618/web-bridge/internal/transport"
	"github.com/mj1618/web-bridge/internal/transport/nativemsg"
	"github.com/mj1618/web-bridge/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Connect to the bridge and answer its commands",
	Long: `Connect to the bridge over a websocket and answer the commands it sends.
When the websocket cannot be reached and a secondary host command is
configured, the same frames travel over that host's stdio instead.

With --http the command vocabulary is also served locally:
  POST /browser/{command}   run one command
  GET  /tabs                list tabs
  GET  /healthz             bridge connection state
  GET  /metrics             Prometheus metrics

Examples:
  web-bridge serve --open https://example.com
  web-bridge serve --bridge ws://127.0.0.1:3457/extension --http 127.0.0.1:8765
  web-bridge serve --config bridge.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	addHostFlags(serveCmd)
	serveCmd.Flags().String("bridge", "", "Bridge websocket URL (overrides the config file)")
	serveCmd.Flags().String("http", "", "Listen address for the HTTP API, e.g. 127.0.0.1:8765")
	serveCmd.Flags().Duration("http-timeout", 0, "Upper bound for one HTTP command (0 leaves it to the command)")
	serveCmd.Flags().StringArray("open", nil, "Open a tab for this URL on start (repeatable)")
	serveCmd.Flags().Bool("no-bridge", false, "Serve only the HTTP API")
}

func runServe(cmd *cobra.Command, args []string) error {
	bridgeURL, _ := cmd.Flags().GetString("bridge")
	listen, _ := cmd.Flags().GetString("http")
	httpTimeout, _ := cmd.Flags().GetDuration("http-timeout")
	opens, _ := cmd.Flags().GetStringArray("open")
	noBridge, _ := cmd.Flags().GetBool("no-bridge")
	if bridgeURL != "" {
		cfg.Bridge.URL = bridgeURL
	}
	if listen == "" {
		listen = cfg.HTTP.Listen
	}
	if noBridge && listen == "" {
		return fmt.Errorf("--no-bridge needs an HTTP listen address")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h, err := openHost(cmd)
	if err != nil {
		return err
	}
	defer h.Close()

	var m *transport.ConnectionManager
	if !noBridge {
		m = transport.New(transport.Options{
			URL: cfg.Bridge.URL,
			Identity: transport.Identity{
				Name:      cfg.Bridge.Name,
				Version:   version.Version,
				UserAgent: cfg.Bridge.UserAgent,
			},
			ReconnectDelay:   cfg.Bridge.ReconnectDelay,
			Secondary:        secondary(),
			SecondaryTimeout: cfg.Secondary.Timeout,
			Handler:          transport.HandlerFunc(h.dispatch.HandleCommand),
			Logger:           logger,
		})
		defer m.Close()
	}
	if h.provider.Mutations != nil {
		h.provider.Mutations.OnMutation(func(r model.MutationReport) {
			if m == nil {
				return
			}
			if err := m.Publish(transport.TypeMutation, r); err != nil {
				logger.Debug("mutation report dropped", "error", err)
				return
			}
			metrics.MutationReports.Inc()
		})
	}

	targets := make([]platform.CreateOptions, 0, len(opens))
	for _, u := range opens {
		targets = append(targets, platform.CreateOptions{URL: u})
	}
	if err := h.open(ctx, targets); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	if m != nil {
		g.Go(func() error {
			if err := m.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	if listen != "" {
		opts := httpapi.Options{Commands: h.dispatch, Timeout: httpTimeout, Logger: logger}
		if m != nil {
			opts.Transport = m
		}
		srv := &http.Server{
			Addr:              listen,
			Handler:           httpapi.NewRouter(opts),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			logger.Info("http api listening", "addr", listen)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http api: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	return g.Wait()
}

// secondary spawns the configured host command for the fallback channel.
func secondary() func(ctx context.Context) (*nativemsg.Conn, error) {
	if cfg.Secondary.Command == "" {
		return nil
	}
	command, args, maxFrame := cfg.Secondary.Command, cfg.Secondary.Args, cfg.Secondary.MaxFrameSize
	return func(ctx context.Context) (*nativemsg.Conn, error) {
		return nativemsg.Spawn(exec.CommandContext(ctx, command, args...), maxFrame)
	}
}
