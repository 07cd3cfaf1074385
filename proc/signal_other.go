//go:build !unix

package proc

import (
	"os"
	"syscall"
)

// Signal is not supported on this platform
func Signal(int, os.Signal) error {
	return ErrSignalsUnsupported
}

// Terminate is not supported on this platform
func Terminate(int) error {
	return ErrSignalsUnsupported
}

// Kill kills pid through os.Process
func Kill(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}

// Exists reports whether pid can be opened
func Exists(pid int) bool {
	if pid <= 0 {
		return false
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	_ = p.Release()
	return true
}

func terminateGroup(int) error {
	return ErrSignalsUnsupported
}

func sysProcAttr() *syscall.SysProcAttr {
	return nil
}
