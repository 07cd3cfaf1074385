package proc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/julienstroheker/hexpipe/internal/logging"
	"github.com/julienstroheker/hexpipe/internal/spool"
	"github.com/julienstroheker/hexpipe/pipe"
)

// Options configures a pipeline
type Options struct {
	// Name prefixes the inter-stage relay names; a random UUID when empty
	Name string

	// BufferSize is the chunk size of the inter-stage relays
	BufferSize int

	// Logger receives debug lifecycle logs
	Logger *logging.Logger
}

// Pipeline chains processes: the output of each stage is relayed to the
// input of the next one. It behaves as a single Process whose input is the
// first stage input, whose output is the last stage output and whose error
// stream merges the error output of every stage.
type Pipeline struct {
	name    string
	stages  []Process
	futures []*Future
	relays  []*pipe.Connection
	logger  *logging.Logger

	errMu   sync.Mutex
	errr    *spool.Reader
	errw    *spool.Writer
	exit    atomic.Pointer[int]
	pending atomic.Int32
	done    chan struct{}
	destroy sync.Once
}

// stageObserver reports the completion of stages[index]
type stageObserver struct {
	pipeline *Pipeline
	index    int
}

func (o stageObserver) OnComplete(f *Future, code int) {
	p := o.pipeline
	if o.index == len(p.stages)-1 {
		p.exit.CompareAndSwap(nil, &code)
	}
	p.appendErrors(o.index, f.Process())
	p.stageFinished(o.index)
}

func (o stageObserver) OnInterrupted(*Future) {
	o.pipeline.stageFinished(o.index)
}

// NewPipeline wires the stages together and starts observing them
func NewPipeline(stages []Process, opts *Options) (*Pipeline, error) {
	if len(stages) < 2 {
		return nil, ErrTooFewStages
	}
	for i, stage := range stages {
		if stage == nil {
			return nil, fmt.Errorf("%w: stage %d is nil", pipe.ErrIllegalArgument, i)
		}
	}
	if opts == nil {
		opts = &Options{}
	}

	name := opts.Name
	if name == "" {
		name = uuid.NewString()
	}

	p := &Pipeline{
		name:   name,
		stages: append([]Process(nil), stages...),
		logger: opts.Logger.With(logging.String("pipeline", name)),
		done:   make(chan struct{}),
	}
	p.errr, p.errw = spool.New()
	p.pending.Store(int32(len(stages)))

	for i, stage := range p.stages {
		f, err := NewFuture(stage, stageObserver{pipeline: p, index: i})
		if err != nil {
			p.abort()
			return nil, err
		}
		p.futures = append(p.futures, f)

		if i == 0 {
			continue
		}
		conn, err := pipe.ConnectBytes(p.stages[i-1].Stdout(), stage.Stdin(), &pipe.Options{
			Name:       fmt.Sprintf("%s[%d=>%d]", name, i-1, i),
			BufferSize: opts.BufferSize,
			Logger:     opts.Logger,
		})
		if err != nil {
			p.abort()
			return nil, err
		}
		p.relays = append(p.relays, conn)
	}

	p.logger.Debug("pipeline started", logging.Int("stages", len(stages)))
	return p, nil
}

// Pipe chains at least two processes
func Pipe(first, next Process, others ...Process) (*Pipeline, error) {
	return NewPipeline(append([]Process{first, next}, others...), nil)
}

// appendErrors copies the whole error output of a stage into the merged
// stream. The lock keeps contributions of different stages apart.
func (p *Pipeline) appendErrors(index int, stage Process) {
	stderr := stage.Stderr()
	if stderr == nil {
		return
	}
	defer func() { _ = stderr.Close() }()

	p.errMu.Lock()
	n, err := io.Copy(p.errw, stderr)
	p.errMu.Unlock()

	if err != nil {
		p.logger.Debug("stage error output lost", logging.Int("stage", index), logging.Error(err))
		return
	}
	p.logger.Debug("stage error output merged", logging.Int("stage", index), logging.Int64("bytes", n))
}

func (p *Pipeline) stageFinished(index int) {
	p.logger.Debug("stage finished", logging.Int("stage", index))
	if p.pending.Add(-1) == 0 {
		_ = p.errw.Close()
		close(p.done)
	}
}

// Stages returns the chained processes
func (p *Pipeline) Stages() []Process {
	return append([]Process(nil), p.stages...)
}

// Stdin is the input of the first stage
func (p *Pipeline) Stdin() io.WriteCloser {
	return p.stages[0].Stdin()
}

// Stdout is the output of the last stage
func (p *Pipeline) Stdout() io.ReadCloser {
	return p.stages[len(p.stages)-1].Stdout()
}

// Stderr merges the error output of every stage, in completion order. It
// reaches end of data once all stages finished.
func (p *Pipeline) Stderr() io.ReadCloser {
	return p.errr
}

// Done is closed once every stage finished
func (p *Pipeline) Done() <-chan struct{} {
	return p.done
}

// ExitCode returns the exit code of the last stage once every stage
// finished, ErrNotTerminated otherwise
func (p *Pipeline) ExitCode() (int, error) {
	select {
	case <-p.done:
	default:
		return -1, ErrNotTerminated
	}
	if code := p.exit.Load(); code != nil {
		return *code, nil
	}
	return -1, ErrNotTerminated
}

// Wait blocks until every stage finished and returns the last stage exit code
func (p *Pipeline) Wait() (int, error) {
	<-p.done
	return p.ExitCode()
}

// WaitTimeout is Wait bounded by d. On expiry it returns pipe.ErrTimeout
// and leaves the pipeline running.
func (p *Pipeline) WaitTimeout(d time.Duration) (int, error) {
	select {
	case <-p.done:
		return p.ExitCode()
	default:
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-p.done:
		return p.ExitCode()
	case <-timer.C:
		return -1, fmt.Errorf("%w: pipeline %s after %s", pipe.ErrTimeout, p.name, d)
	}
}

// WaitContext is Wait bound to ctx. A deadline reports pipe.ErrTimeout; any
// other cancellation destroys the pipeline and reports pipe.ErrInterrupted.
func (p *Pipeline) WaitContext(ctx context.Context) (int, error) {
	select {
	case <-p.done:
		return p.ExitCode()
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return -1, fmt.Errorf("%w: pipeline %s", pipe.ErrTimeout, p.name)
		}
		_ = p.Destroy()
		return -1, fmt.Errorf("%w: pipeline %s: %w", pipe.ErrInterrupted, p.name, ctx.Err())
	}
}

// abort tears down a partially built pipeline: stages without a future yet
// are destroyed directly, the rest go through Destroy
func (p *Pipeline) abort() {
	for _, stage := range p.stages[len(p.futures):] {
		_ = stage.Destroy()
	}
	_ = p.Destroy()
}

// Destroy interrupts every relay, cancels every stage and returns once all
// stage observers finished. It never fails.
func (p *Pipeline) Destroy() error {
	p.destroy.Do(func() {
		p.logger.Debug("destroying pipeline")
		for _, conn := range p.relays {
			conn.Interrupt()
		}
		for _, f := range p.futures {
			f.Cancel()
		}
	})
	for _, f := range p.futures {
		<-f.Done()
	}
	return nil
}

func (p *Pipeline) String() string {
	return "pipeline(" + p.name + ")"
}

var _ Process = (*Pipeline)(nil)
