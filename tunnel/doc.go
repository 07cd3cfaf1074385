// Package tunnel bridges two duplex endpoints with a pair of byte relays,
// one per direction.
//
// The first leg to reach a terminal state decides the tunnel outcome and
// forcibly interrupts the other leg. The tunnel listener is notified once.
// Await returns after both legs terminated:
//
//	t, err := tunnel.ConnectConns(client, upstream, nil, &tunnel.Options{Logger: logger})
//	if err != nil {
//		return err
//	}
//	var broken *tunnel.BrokenTunnelError
//	if err := t.Await(); errors.As(err, &broken) {
//		logger.Warn("tunnel broken", logging.Error(broken.Leg.Err))
//	}
package tunnel
