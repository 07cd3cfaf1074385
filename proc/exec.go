package proc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync/atomic"
	"time"

	"github.com/julienstroheker/hexpipe/internal/spool"
)

// DefaultGracePeriod is how long a cancelled command may take to exit after
// SIGTERM before it is killed
const DefaultGracePeriod = 5 * time.Second

// Cmd is a Process backed by os/exec.
//
// Stdin and Stdout are OS pipes that stay usable after the command exited,
// so a downstream reader can drain them. Stderr is spooled in memory and
// reaches end of data once the command exited.
type Cmd struct {
	cmd    *exec.Cmd
	stdin  *os.File
	stdout *os.File
	stderr *spool.Reader

	exited chan struct{}
	code   int
	err    error
	killed atomic.Bool
}

// Start runs name with args as a Process. Cancelling ctx terminates the
// command's process group and kills it after DefaultGracePeriod.
func Start(ctx context.Context, name string, args ...string) (*Cmd, error) {
	if name == "" {
		return nil, errors.New("proc: binary is required")
	}
	c := exec.CommandContext(ctx, name, args...) //nolint:gosec // running arbitrary commands is the purpose of this function
	c.Cancel = func() error {
		if c.Process == nil {
			return nil
		}
		if err := terminateGroup(c.Process.Pid); err != nil {
			return c.Process.Kill()
		}
		return nil
	}
	c.WaitDelay = DefaultGracePeriod
	return Command(c)
}

// Command starts an unstarted exec.Cmd as a Process. Its Stdin, Stdout and
// Stderr must be unset.
func Command(c *exec.Cmd) (*Cmd, error) {
	if c == nil {
		return nil, errors.New("proc: nil command")
	}
	if c.Stdin != nil || c.Stdout != nil || c.Stderr != nil {
		return nil, errors.New("proc: command streams are already set")
	}
	if c.SysProcAttr == nil {
		c.SysProcAttr = sysProcAttr()
	}

	inR, inW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("proc: stdin pipe: %w", err)
	}
	outR, outW, err := os.Pipe()
	if err != nil {
		closeAll(inR, inW)
		return nil, fmt.Errorf("proc: stdout pipe: %w", err)
	}
	errR, errW := spool.New()

	c.Stdin = inR
	c.Stdout = outW
	c.Stderr = errW

	if err := c.Start(); err != nil {
		closeAll(inR, inW, outR, outW)
		return nil, fmt.Errorf("proc: start %s: %w", c.Path, err)
	}
	// the child holds its own copies
	closeAll(inR, outW)

	p := &Cmd{
		cmd:    c,
		stdin:  inW,
		stdout: outR,
		stderr: errR,
		exited: make(chan struct{}),
		code:   -1,
	}
	go func() {
		err := c.Wait()
		var exitErr *exec.ExitError
		if err != nil && !errors.As(err, &exitErr) {
			p.err = err
		}
		p.code = c.ProcessState.ExitCode()
		_ = errW.Close()
		close(p.exited)
	}()
	return p, nil
}

func closeAll(closers ...io.Closer) {
	for _, c := range closers {
		_ = c.Close()
	}
}

// PID returns the operating system process id
func (p *Cmd) PID() int {
	return p.cmd.Process.Pid
}

func (p *Cmd) Stdin() io.WriteCloser   { return p.stdin }
func (p *Cmd) Stdout() io.ReadCloser   { return p.stdout }
func (p *Cmd) Stderr() io.ReadCloser   { return p.stderr }
func (p *Cmd) String() string          { return p.cmd.String() }
func (p *Cmd) Exited() <-chan struct{} { return p.exited }

// Wait blocks until the command exited. A non-zero exit status is reported
// through the code, not as an error.
func (p *Cmd) Wait() (int, error) {
	<-p.exited
	return p.code, p.err
}

// ExitCode returns the exit code, or ErrNotTerminated while running. A
// command killed by a signal reports -1.
func (p *Cmd) ExitCode() (int, error) {
	select {
	case <-p.exited:
		return p.code, nil
	default:
		return -1, ErrNotTerminated
	}
}

// Destroy closes the command input and terminates its process group. When
// signals are unavailable it kills the process.
func (p *Cmd) Destroy() error {
	_ = p.stdin.Close()

	select {
	case <-p.exited:
		return nil
	default:
	}
	if !p.killed.CompareAndSwap(false, true) {
		return nil
	}
	if err := terminateGroup(p.cmd.Process.Pid); err != nil {
		if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return fmt.Errorf("proc: destroy %d: %w", p.cmd.Process.Pid, err)
		}
	}
	return nil
}

var _ Process = (*Cmd)(nil)
