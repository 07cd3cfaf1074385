// Package proc composes operating system processes.
//
// A Future waits for one process in the background and destroys it once the
// wait resolves. A Pipeline chains processes the way a shell `|` does, with
// byte relays between the stages, a merged error stream and the exit code of
// the last stage:
//
//	ls, _ := proc.Start(ctx, "ls", "-l")
//	grep, _ := proc.Start(ctx, "grep", "go")
//	p, err := proc.Pipe(ls, grep)
//	if err != nil {
//		return err
//	}
//	_ = p.Stdin().Close()
//	out, _ := io.ReadAll(p.Stdout())
//	code, err := p.Wait()
//
// The signal helpers (Terminate, Kill, Signal, Exists) use unix signals and
// report ErrSignalsUnsupported elsewhere.
package proc
