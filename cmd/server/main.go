// Command server runs the line relay: a TCP listener (default port 12345)
// that rebroadcasts every line a client sends to all other clients, plus an
// optional WebSocket gateway joining browser clients to the same relay.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/Tyrowin/linerelay/internal/server"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "linerelay: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := loadConfig(args, os.Stderr)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	logger := server.NewLogger(os.Stderr, cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)
	logger.Info("starting line relay", "addr", cfg.Addr(), "websocket_addr", cfg.WebSocketAddr)

	relay := server.NewServer(cfg, server.WithLogger(logger))

	listener, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return fmt.Errorf("%w: %w", server.ErrListenerFailure, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if err := relay.Serve(listener); !errors.Is(err, server.ErrServerClosed) {
			return err
		}
		return nil
	})

	var httpServer *http.Server
	if cfg.WebSocketAddr != "" {
		httpServer = server.CreateServer(cfg.WebSocketAddr, server.NewGateway(relay).SetupRoutes())
		group.Go(func() error {
			logger.Info("WebSocket gateway listening", "addr", cfg.WebSocketAddr)
			if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("websocket gateway: %w", err)
			}
			return nil
		})
	}

	group.Go(func() error {
		<-ctx.Done()
		logger.Info("stopping line relay")
		if httpServer != nil {
			if err := server.ShutdownServer(httpServer, cfg.ShutdownTimeout); err != nil {
				logger.Warn("gateway shutdown", "error", err)
			}
		}
		if err := relay.Shutdown(cfg.ShutdownTimeout); err != nil {
			logger.Warn("relay shutdown", "error", err)
		}
		return nil
	})

	return group.Wait()
}
