package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/n0madic/go-chatpipe/internal/bridge"
	"github.com/n0madic/go-chatpipe/internal/config"
	"github.com/n0madic/go-chatpipe/internal/pipe"
	"github.com/n0madic/go-chatpipe/internal/server"
)

const shutdownTimeout = 5 * time.Second

func main() {
	config.LoadDotEnv()
	cfg := config.FromEnv()
	if err := newRootCmd(&cfg).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd(cfg *config.Config) *cobra.Command {
	root := &cobra.Command{
		Use:           "chatpipe",
		Short:         "Chat-completion relay for Anthropic and Perplexity with an ADK bridge",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging(cfg.Verbose)
		},
	}
	root.PersistentFlags().BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "Enable verbose logging")

	root.AddCommand(newServeCmd(cfg))
	root.AddCommand(newBridgeCmd(cfg))
	root.AddCommand(newAskCmd(cfg))
	root.AddCommand(newModelsCmd(cfg))
	return root
}

func setupLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func newRegistry(cfg config.Config) *pipe.Registry {
	return pipe.NewRegistry(pipe.NewAnthropic(cfg), pipe.NewPerplexity(cfg))
}

func newServeCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the pipes as an OpenAI-compatible API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			srv := server.New(*cfg, newRegistry(*cfg))
			slog.Info("chatpipe starting", "host", cfg.Host, "port", cfg.Port)
			return serveUntilSignal(srv)
		},
	}
	cmd.Flags().StringVar(&cfg.Host, "host", cfg.Host, "Bind host")
	cmd.Flags().IntVar(&cfg.Port, "port", cfg.Port, "Listen port")
	cmd.Flags().StringVar(&cfg.AccessToken, "access-token", cfg.AccessToken, "Bearer token required on /v1 routes")
	cmd.Flags().BoolVar(&cfg.StatusEvents, "status-events", cfg.StatusEvents, "Send status frames on chat completion streams")
	cmd.Flags().IntVar(&cfg.MaxAttempts, "max-attempts", cfg.MaxAttempts, "Upstream attempts per non-streaming request")
	return cmd
}

func newBridgeCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bridge",
		Short: "Expose an ADK app as an OpenAI-compatible chat model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serveUntilSignal(bridge.New(cfg.Bridge))
		},
	}
	cmd.Flags().StringVar(&cfg.Bridge.Addr, "addr", cfg.Bridge.Addr, "Listen address")
	cmd.Flags().StringVar(&cfg.Bridge.BackendURL, "backend", cfg.Bridge.BackendURL, "ADK backend base URL")
	cmd.Flags().StringVar(&cfg.Bridge.AppName, "app", cfg.Bridge.AppName, "ADK app name, exposed as the model id")
	cmd.Flags().StringVar(&cfg.Bridge.UserID, "user", cfg.Bridge.UserID, "ADK user id")
	cmd.Flags().DurationVar(&cfg.Bridge.Timeout, "timeout", cfg.Bridge.Timeout, "Backend request timeout")
	return cmd
}

type listener interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

func serveUntilSignal(srv listener) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	fmt.Fprintln(os.Stderr, "\nShutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
