package proc

import (
	"context"
	"io"
	"sync/atomic"

	"github.com/julienstroheker/hexpipe/internal/spool"
)

// stageFunc is the body of a fake process. It returns the exit code.
type stageFunc func(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer) int

// fakeProcess runs a stageFunc on a goroutine behind the Process interface
type fakeProcess struct {
	stdinR  *io.PipeReader
	stdinW  *io.PipeWriter
	stdoutR *io.PipeReader
	stdoutW *io.PipeWriter
	stderrR *spool.Reader
	stderrW *spool.Writer

	cancel    context.CancelFunc
	exited    chan struct{}
	code      int
	destroyed atomic.Int32
}

func newFakeProcess(body stageFunc) *fakeProcess {
	ctx, cancel := context.WithCancel(context.Background())
	p := &fakeProcess{cancel: cancel, exited: make(chan struct{})}
	p.stdinR, p.stdinW = io.Pipe()
	p.stdoutR, p.stdoutW = io.Pipe()
	p.stderrR, p.stderrW = spool.New()

	go func() {
		p.code = body(ctx, p.stdinR, p.stdoutW, p.stderrW)
		_ = p.stdoutW.Close()
		_ = p.stderrW.Close()
		_ = p.stdinR.Close()
		close(p.exited)
	}()
	return p
}

func (p *fakeProcess) Stdin() io.WriteCloser { return p.stdinW }
func (p *fakeProcess) Stdout() io.ReadCloser { return p.stdoutR }
func (p *fakeProcess) Stderr() io.ReadCloser { return p.stderrR }

func (p *fakeProcess) Wait() (int, error) {
	<-p.exited
	return p.code, nil
}

func (p *fakeProcess) ExitCode() (int, error) {
	select {
	case <-p.exited:
		return p.code, nil
	default:
		return -1, ErrNotTerminated
	}
}

func (p *fakeProcess) Destroy() error {
	p.destroyed.Add(1)
	p.cancel()
	_ = p.stdinR.CloseWithError(io.ErrClosedPipe)
	return nil
}

// blockingStage waits until destroyed and exits with 137
func blockingStage(ctx context.Context, _ io.Reader, _, _ io.Writer) int {
	<-ctx.Done()
	return 137
}

// exitStage exits at once with code
func exitStage(code int) stageFunc {
	return func(context.Context, io.Reader, io.Writer, io.Writer) int {
		return code
	}
}
