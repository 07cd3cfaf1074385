//go:build unix

package proc

import (
	"errors"
	"fmt"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// Signal delivers sig to pid
func Signal(pid int, sig os.Signal) error {
	s, ok := sig.(syscall.Signal)
	if !ok {
		return fmt.Errorf("proc: unsupported signal %v", sig)
	}
	return unix.Kill(pid, s)
}

// Terminate sends SIGTERM to pid
func Terminate(pid int) error {
	return unix.Kill(pid, unix.SIGTERM)
}

// Kill sends SIGKILL to pid
func Kill(pid int) error {
	return unix.Kill(pid, unix.SIGKILL)
}

// Exists reports whether pid names a live process, including one owned by
// another user
func Exists(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

// terminateGroup sends SIGTERM to the process group led by pid
func terminateGroup(pid int) error {
	return unix.Kill(-pid, unix.SIGTERM)
}

func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}
