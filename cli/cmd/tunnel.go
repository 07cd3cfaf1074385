package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/julienstroheker/hexpipe/internal/config"
	"github.com/julienstroheker/hexpipe/internal/endpoint"
	"github.com/julienstroheker/hexpipe/internal/server"
	"github.com/spf13/cobra"
)

const defaultTunnelListen = "127.0.0.1:7000"

var (
	tunnelListenFlag string
	tunnelTargetFlag string
)

var tunnelCmd = &cobra.Command{
	Use:   "tunnel",
	Short: "Tunnel local TCP clients to a target",
	Long: `Accept TCP clients and join each one to a new connection to the target.

The target is tcp://host:port, ws://host/path or wss://host/path. In remote
mode the target defaults to the configured Azure Relay hybrid connection.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTunnel(cmd)
	},
}

func init() {
	rootCmd.AddCommand(tunnelCmd)
	tunnelCmd.Flags().StringVarP(&tunnelListenFlag, "listen", "l", defaultTunnelListen, "Address to accept clients on")
	tunnelCmd.Flags().StringVarP(&tunnelTargetFlag, "target", "t", "", "Target URL every client is tunnelled to")
}

func runTunnel(cmd *cobra.Command) error {
	target, dialer, err := resolveTarget(cfg, tunnelTargetFlag)
	if err != nil {
		return err
	}

	srv, err := server.New(&server.Options{
		Target:      target,
		Dialer:      dialer,
		MaxTunnels:  int64(cfg.MaxTunnels),
		BufferSize:  cfg.BufferSize,
		MaxLifetime: cfg.AwaitTimeout,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", tunnelListenFlag)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", tunnelListenFlag, err)
	}
	cmd.Printf("Tunnel listening on %s\n", ln.Addr())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Serve(ctx, ln); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("tunnel error: %w", err)
	}
	cmd.Println("Tunnel stopped")
	return nil
}

// resolveTarget returns the dial target and a dialer configured for it.
// An empty target in remote mode selects the hybrid connection.
func resolveTarget(c *config.Config, target string) (string, *endpoint.Dialer, error) {
	dialer := &endpoint.Dialer{Timeout: c.DialTimeout, Logger: logger}

	if target != "" {
		return target, dialer, nil
	}
	if c.Mode != config.ModeRemote {
		return "", nil, errors.New("--target is required in local mode")
	}

	token, err := endpoint.HybridConnectionToken(c.RelayNamespace, c.HybridConnection, c.SASKeyName, c.SASKey, c.SASExpiry)
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate SAS token: %w", err)
	}
	dialer.Token = token
	return endpoint.HybridConnectionURL(c.RelayNamespace, c.HybridConnection, ""), dialer, nil
}
