package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/julienstroheker/hexpipe/internal/logging"
	"github.com/julienstroheker/hexpipe/pipe"
	"github.com/julienstroheker/hexpipe/proc"
	"github.com/spf13/cobra"
)

// shell runs every stage command line
var shell = "/bin/sh"

var execTimeoutFlag time.Duration

var execCmd = &cobra.Command{
	Use:   `exec [--timeout D] -- "cmd a" ["cmd b" ...]`,
	Short: "Run commands as a process pipeline",
	Long: `Run each argument as a shell command line, connecting the stdout of every
stage to the stdin of the next. The pipeline reads this process's stdin,
writes the last stage's stdout, merges every stage's stderr, and exits with
the exit code of the last stage.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExec(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(execCmd)
	execCmd.Flags().DurationVar(&execTimeoutFlag, "timeout", 0, "Destroy the pipeline after this long (0 waits forever)")
}

func runExec(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if execTimeoutFlag > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, execTimeoutFlag)
		defer cancel()
	}

	p, err := startStages(args)
	if err != nil {
		return err
	}

	log := logger.WithComponent("exec")
	opts := func(name string) *pipe.Options {
		return &pipe.Options{Name: name, BufferSize: cfg.BufferSize, Logger: log}
	}

	// stdin is never awaited: a pending terminal read cannot be unblocked
	if _, err := pipe.ConnectBytes(pipe.NopCloseReader(cmd.InOrStdin()), p.Stdin(), opts("stdin")); err != nil {
		_ = p.Destroy()
		return err
	}
	stdout, err := pipe.ConnectBytes(p.Stdout(), pipe.NopCloseWriter(cmd.OutOrStdout()), opts("stdout"))
	if err != nil {
		_ = p.Destroy()
		return err
	}
	stderr, err := pipe.ConnectBytes(p.Stderr(), pipe.NopCloseWriter(cmd.ErrOrStderr()), opts("stderr"))
	if err != nil {
		_ = p.Destroy()
		return err
	}

	future, err := proc.NewFuture(p, proc.FutureListenerFuncs{
		Complete: func(_ *proc.Future, code int) {
			log.Debug("Pipeline completed", logging.Int("exit_code", code))
		},
		Interrupted: func(*proc.Future) {
			log.Debug("Pipeline interrupted")
		},
	})
	if err != nil {
		_ = p.Destroy()
		return err
	}

	code, err := future.GetContext(ctx)
	if errors.Is(err, pipe.ErrTimeout) {
		future.Cancel()
		err = fmt.Errorf("pipeline timed out after %s", execTimeoutFlag)
	}
	<-future.Done()

	// the output relays drain what the stages wrote before exiting
	for _, c := range []*pipe.Connection{stdout, stderr} {
		if werr := c.Await(); werr != nil {
			log.Debug("Output relay ended early", logging.String("relay", c.Pipe().Name()), logging.Error(werr))
		}
	}

	if err != nil {
		return err
	}
	if code != 0 {
		return &ExitError{Code: code}
	}
	return nil
}

// startStages starts one shell per command line. A single command runs on
// its own, several are chained into a pipeline.
func startStages(lines []string) (proc.Process, error) {
	stages := make([]proc.Process, 0, len(lines))
	for _, line := range lines {
		c, err := proc.Start(context.Background(), shell, "-c", line)
		if err != nil {
			for _, started := range stages {
				_ = started.Destroy()
			}
			return nil, fmt.Errorf("failed to start %q: %w", line, err)
		}
		logger.Debug("Stage started", logging.String("command", line), logging.Int("pid", c.PID()))
		stages = append(stages, c)
	}

	if len(stages) == 1 {
		return stages[0], nil
	}
	return proc.NewPipeline(stages, &proc.Options{
		Name:       "exec",
		BufferSize: cfg.BufferSize,
		Logger:     logger,
	})
}
