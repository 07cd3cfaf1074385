package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/julienstroheker/hexpipe/internal/api"
	"github.com/spf13/cobra"
)

var statusAddrFlag string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "List the tunnels open on a serve instance",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStatus(cmd)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringVarP(&statusAddrFlag, "addr", "a", "http://localhost:8080", "Base URL of the serve instance")
}

func runStatus(cmd *cobra.Command) error {
	client := api.NewClient(&api.Options{
		BaseURL:    statusAddrFlag,
		Timeout:    cfg.DialTimeout,
		MaxRetries: 2,
		Logger:     logger,
	})

	list, err := client.Tunnels(cmd.Context())
	if err != nil {
		return err
	}

	cmd.Printf("%d/%d tunnels open\n", list.Active, list.Limit)
	if len(list.Tunnels) == 0 {
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tCLIENT\tTARGET\tSTATE\tAGE")
	for _, t := range list.Tunnels {
		age := time.Since(t.Started).Truncate(time.Second)
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", t.Name, t.Client, t.Target, t.State, age)
	}
	return w.Flush()
}
