package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/julienstroheker/hexpipe/internal/endpoint"
	"github.com/julienstroheker/hexpipe/internal/server"
	"github.com/spf13/cobra"
)

const (
	defaultServeListen     = ":8080"
	defaultShutdownTimeout = 30
)

var (
	serveListenFlag     string
	serveTargetFlag     string
	servePathFlag       string
	shutdownTimeoutFlag int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Tunnel WebSocket clients to a TCP target",
	Long:  `Start an HTTP server that upgrades WebSocket clients and tunnels each one to a TCP target`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&serveListenFlag, "listen", "l", defaultServeListen, "Address to listen on")
	serveCmd.Flags().StringVarP(&serveTargetFlag, "target", "t", "", "TCP target (host:port) every client is tunnelled to")
	serveCmd.Flags().StringVar(&servePathFlag, "path", server.DefaultTunnelPath, "WebSocket upgrade path")
	serveCmd.Flags().IntVar(&shutdownTimeoutFlag, "shutdown-timeout", defaultShutdownTimeout,
		"Graceful shutdown timeout in seconds")
	_ = serveCmd.MarkFlagRequired("target")
}

func runServe(cmd *cobra.Command) error {
	srv, err := server.New(&server.Options{
		Target:      serveTargetFlag,
		Dialer:      &endpoint.Dialer{Timeout: cfg.DialTimeout, Logger: logger},
		MaxTunnels:  int64(cfg.MaxTunnels),
		BufferSize:  cfg.BufferSize,
		MaxLifetime: cfg.AwaitTimeout,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	hs := server.NewHTTPServer(&server.HTTPOptions{
		Addr:   serveListenFlag,
		Path:   servePathFlag,
		Server: srv,
	})

	serverErrors := make(chan error, 1)
	go func() {
		cmd.Printf("Serving tunnels on %s%s\n", serveListenFlag, servePathFlag)
		serverErrors <- hs.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		cmd.Printf("\nReceived signal %v, starting graceful shutdown...\n", sig)

		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(shutdownTimeoutFlag)*time.Second)
		defer cancel()

		if err := hs.Shutdown(ctx); err != nil {
			if err := hs.Close(); err != nil {
				return fmt.Errorf("could not stop server gracefully: %w", err)
			}
			return fmt.Errorf("could not gracefully shutdown the server: %w", err)
		}

		cmd.Println("Server stopped gracefully")
	}

	return nil
}
