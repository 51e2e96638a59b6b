package xmppproxy

import (
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/quietqueue/teemoproxy/lib/broadcast"
	"github.com/quietqueue/teemoproxy/lib/presence"
	"github.com/quietqueue/teemoproxy/lib/stanza"
	"github.com/quietqueue/teemoproxy/lib/stealth"
)

const readBufferSize = 8192

// session is the per-connection state: the client connection, the
// upstream host to dial, and the mode subscription. The in-flight stanza
// buffer and the last-seen online presence are local variables of
// pumpClientToServer, so only the client->server goroutine touches them
// and no locking is needed between the two pumps.
type session struct {
	id     string
	client net.Conn
	host   string
	modeCh *broadcast.Latest[stealth.Mode]
	log    *logrus.Entry
	clock  clockwork.Clock
}

// run dials the real chat host, completes both TLS handshakes, and pumps
// bytes in both directions until either side closes. The first pump to
// finish ends the session: its lifetime is bounded by the first side of
// the duplex closing.
func (s *session) run() error {
	serverConn, err := dialUpstream(s.host)
	if err != nil {
		_ = s.client.Close()
		return trace.Wrap(err, "dialing upstream chat host %s", s.host)
	}
	defer serverConn.Close()

	s.log.WithField("upstream", s.host).Info("TLS tunnel established")

	done := make(chan error, 2)

	go func() {
		done <- pumpServerToClient(serverConn, s.client)
	}()
	go func() {
		done <- s.pumpClientToServer(serverConn)
	}()

	err = <-done
	_ = s.client.Close()
	_ = serverConn.Close()
	return err
}

// dialUpstream opens a TCP connection to host:RemotePort and performs a
// TLS handshake as a client, verifying against system roots with host as
// the SNI/verification name (never 127.0.0.1). A short bounded retry
// absorbs transient connection refusal right after the real chat host
// rotates behind a load balancer.
func dialUpstream(host string) (*tls.Conn, error) {
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", RemotePort))

	var conn *tls.Conn
	operation := func() error {
		raw, err := net.DialTimeout("tcp", addr, 5*time.Second)
		if err != nil {
			return err
		}
		tlsConn := tls.Client(raw, &tls.Config{ServerName: host})
		if err := tlsConn.Handshake(); err != nil {
			raw.Close()
			return err
		}
		conn = tlsConn
		return nil
	}

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, trace.Wrap(err)
	}
	return conn, nil
}

// pumpServerToClient is the Server->Client pump: a straight byte copy,
// no parsing or rewriting.
func pumpServerToClient(server, client net.Conn) error {
	buf := make([]byte, readBufferSize)
	for {
		n, err := server.Read(buf)
		if n > 0 {
			if _, werr := client.Write(buf[:n]); werr != nil {
				return trace.Wrap(werr, "writing to client")
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return trace.Wrap(err, "reading from server")
		}
	}
}

// pumpClientToServer is the Client->Server pump: it frames incoming
// bytes into stanzas, caches the last online presence, applies
// the presence filter, and concurrently reacts to stealth mode changes
// by injecting self-contained presence stanzas that bypass the framer.
func (s *session) pumpClientToServer(server net.Conn) error {
	buf := make([]byte, readBufferSize)
	var stanzaBuf []byte
	var lastOnlinePresence string

	// readLoop's sends also select on stop, which closes when this
	// pump returns, so readLoop never blocks forever on a channel
	// nobody reads any more.
	reads := make(chan readResult, 1)
	stop := make(chan struct{})
	defer close(stop)
	go readLoop(s.client, buf, reads, stop)

	// Taken once up front and renewed only after it fires, so a mode
	// change made while a read is being framed is still seen on the
	// next pass through the select.
	modeChanged := s.modeCh.Chan()

	for {
		select {
		case res, open := <-reads:
			if !open {
				return s.flush(server, stanzaBuf)
			}
			if res.err != nil {
				_ = s.flush(server, stanzaBuf)
				if res.err == io.EOF {
					return nil
				}
				return trace.Wrap(res.err, "reading from client")
			}

			stanzaBuf = append(stanzaBuf, res.data...)

			for {
				n, ok := stanza.Find(stanzaBuf)
				if !ok {
					break
				}
				complete := string(stanzaBuf[:n])
				stanzaBuf = stanzaBuf[n:]

				if presence.IsUnfilteredPresence(complete) {
					lastOnlinePresence = complete
				}

				mode := s.modeCh.Get()
				filtered := presence.Filter(complete, mode)

				if _, err := server.Write([]byte(filtered)); err != nil {
					return trace.Wrap(err, "writing to server")
				}
			}

		case <-modeChanged:
			modeChanged = s.modeCh.Chan()
			mode := s.modeCh.Get()
			inject := injectionFor(mode, lastOnlinePresence)
			s.log.WithField("mode", mode).Debug("mode change, injecting presence")
			if _, err := server.Write([]byte(inject)); err != nil {
				return trace.Wrap(err, "writing mode injection to server")
			}
		}
	}
}

// injectionFor builds the self-contained presence stanza to send on a
// mode transition.
func injectionFor(mode stealth.Mode, lastOnlinePresence string) string {
	if mode == stealth.Offline {
		return `<presence type="unavailable"/>`
	}
	if lastOnlinePresence != "" {
		return lastOnlinePresence
	}
	return "<presence/>"
}

// flush writes any partial trailing bytes to the upstream writer on
// disconnect, best-effort.
func (s *session) flush(server net.Conn, remainder []byte) error {
	if len(remainder) == 0 {
		return nil
	}
	_, err := server.Write(remainder)
	return trace.Wrap(err)
}

type readResult struct {
	data []byte
	err  error
}

func readLoop(conn net.Conn, buf []byte, out chan<- readResult, stop <-chan struct{}) {
	defer close(out)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case out <- readResult{data: chunk}:
			case <-stop:
				return
			}
		}
		if err != nil {
			select {
			case out <- readResult{err: err}:
			case <-stop:
			}
			return
		}
	}
}
