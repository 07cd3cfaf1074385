package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/julienstroheker/hexpipe/internal/config"
	"github.com/julienstroheker/hexpipe/internal/endpoint"
	"github.com/julienstroheker/hexpipe/internal/server"
	"github.com/spf13/cobra"
)

var listenTargetFlag string

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Tunnel hybrid connection senders to a local target",
	Long: `Listen on the configured Azure Relay hybrid connection and join every
sender to a new connection to the target. This is the remote end of
"hexpipe tunnel" in remote mode.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runListen(cmd)
	},
}

func init() {
	rootCmd.AddCommand(listenCmd)
	listenCmd.Flags().StringVarP(&listenTargetFlag, "target", "t", "", "Target (tcp://host:port or host:port) every sender is tunnelled to")
	_ = listenCmd.MarkFlagRequired("target")
}

func runListen(cmd *cobra.Command) error {
	if cfg.Mode != config.ModeRemote {
		return fmt.Errorf("listen requires %s_MODE=remote", config.EnvPrefix)
	}

	token, err := endpoint.HybridConnectionToken(cfg.RelayNamespace, cfg.HybridConnection, cfg.SASKeyName, cfg.SASKey, cfg.SASExpiry)
	if err != nil {
		return fmt.Errorf("failed to generate SAS token: %w", err)
	}

	srv, err := server.New(&server.Options{
		Target:      listenTargetFlag,
		Dialer:      &endpoint.Dialer{Timeout: cfg.DialTimeout, Logger: logger},
		MaxTunnels:  int64(cfg.MaxTunnels),
		BufferSize:  cfg.BufferSize,
		MaxLifetime: cfg.AwaitTimeout,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := endpoint.ListenHybrid(ctx, &endpoint.HybridListenerOptions{
		Namespace:        cfg.RelayNamespace,
		HybridConnection: cfg.HybridConnection,
		Token:            token,
		Timeout:          cfg.DialTimeout,
		Logger:           logger,
	})
	if err != nil {
		return err
	}
	cmd.Printf("Listening on %s\n", ln.Addr())

	if err := srv.Serve(ctx, ln); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("listener error: %w", err)
	}
	cmd.Println("Listener stopped")
	return nil
}
