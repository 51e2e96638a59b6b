// Package xmppproxy implements a TLS-terminating man-in-the-middle
// between the game client and the real chat host, rewriting outbound
// presence on the client->server direction and forwarding everything
// else byte-for-byte.
package xmppproxy

import (
	"context"
	"crypto/tls"
	"net"

	"github.com/google/uuid"
	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/quietqueue/teemoproxy/lib/broadcast"
	"github.com/quietqueue/teemoproxy/lib/certs"
	"github.com/quietqueue/teemoproxy/lib/stealth"
)

var log = logrus.WithField("component", "xmppproxy")

// ListenAddr is the fixed local address the real client is told (via
// the patched config) to dial for chat.
const ListenAddr = "127.0.0.1:5223"

// RemotePort is the TLS port the real chat host listens on.
const RemotePort = 5223

// Handle is the running XMPP proxy's control surface.
type Handle struct {
	ModeCh *broadcast.Latest[stealth.Mode]
	HostCh *broadcast.Latest[string]

	listener net.Listener
	done     chan struct{}
	clock    clockwork.Clock
}

// Start binds the TLS listener using leaf (signed by the CA the client
// is expected to trust) and begins accepting connections in a
// background goroutine. fallbackHost seeds HostCh until the config
// proxy discovers the real host. Start returns only after the listener
// has bound.
func Start(leaf *certs.Material, fallbackHost string, initialMode stealth.Mode) (*Handle, error) {
	tlsCert, err := leaf.TLSCertificate()
	if err != nil {
		return nil, trace.Wrap(err)
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{tlsCert},
		ClientAuth:   tls.NoClientCert,
	}

	listener, err := tls.Listen("tcp", ListenAddr, tlsConfig)
	if err != nil {
		return nil, trace.Wrap(err, "binding XMPP proxy on %s", ListenAddr)
	}

	h := &Handle{
		ModeCh:   broadcast.NewLatest(initialMode),
		HostCh:   broadcast.NewLatest(fallbackHost),
		listener: listener,
		done:     make(chan struct{}),
		clock:    clockwork.NewRealClock(),
	}

	go h.acceptLoop()

	log.WithField("addr", ListenAddr).Info("XMPP proxy listening")
	return h, nil
}

// Shutdown signals the accept loop to stop and closes the listener.
// In-flight sessions are not individually cancelled: they end when
// their underlying sockets close.
func (h *Handle) Shutdown(_ context.Context) error {
	close(h.done)
	return trace.Wrap(h.listener.Close())
}

func (h *Handle) acceptLoop() {
	for {
		conn, err := h.listener.Accept()
		if err != nil {
			select {
			case <-h.done:
				log.Info("XMPP proxy shutting down")
				return
			default:
				log.WithError(err).Error("accept failed")
				continue
			}
		}

		id := uuid.New().String()
		remoteHost := h.HostCh.Get()
		sessionLog := log.WithFields(logrus.Fields{"session": id, "peer": conn.RemoteAddr().String()})
		sessionLog.Info("connection accepted")

		go func() {
			s := &session{
				id:     id,
				client: conn,
				host:   remoteHost,
				modeCh: h.ModeCh,
				log:    sessionLog,
				clock:  h.clock,
			}
			start := h.clock.Now()
			err := s.run()
			fields := logrus.Fields{"duration": h.clock.Now().Sub(start)}
			if err != nil {
				sessionLog.WithError(err).WithFields(fields).Warn("session ended with error")
			} else {
				sessionLog.WithFields(fields).Info("session closed cleanly")
			}
		}()
	}
}
