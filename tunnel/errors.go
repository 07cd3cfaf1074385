package tunnel

import (
	"fmt"

	"github.com/julienstroheker/hexpipe/pipe"
)

// BrokenTunnelError reports that one leg of a tunnel broke
type BrokenTunnelError struct {
	// Tunnel is the tunnel name
	Tunnel string
	// Leg is the error of the leg that decided the outcome
	Leg *pipe.BrokenPipeError
}

func (e *BrokenTunnelError) Error() string {
	return fmt.Sprintf("tunnel: %s broken: %v", e.Tunnel, e.Leg)
}

func (e *BrokenTunnelError) Unwrap() error {
	return e.Leg
}
