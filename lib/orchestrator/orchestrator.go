// Package orchestrator drives one launch attempt end to end: it wires
// the config proxy's discovered-host channel into the XMPP proxy's
// target, and exposes the top-level control surface (launch, stop,
// set_mode, set_region, get_status).
package orchestrator

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/gravitational/trace"
	"github.com/hashicorp/go-multierror"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/quietqueue/teemoproxy/lib/certs"
	"github.com/quietqueue/teemoproxy/lib/configproxy"
	"github.com/quietqueue/teemoproxy/lib/launcher"
	"github.com/quietqueue/teemoproxy/lib/region"
	"github.com/quietqueue/teemoproxy/lib/stealth"
	"github.com/quietqueue/teemoproxy/lib/xmppproxy"
)

var log = logrus.WithField("component", "orchestrator")

// Orchestrator owns one active launch attempt's state: the running
// proxies' handles, the persisted mode, and the current status. It is
// safe for concurrent use; set_mode in particular may be called from a
// UI goroutine while a session is mid-flight.
type Orchestrator struct {
	dataDir string
	clock   clockwork.Clock

	mu             sync.Mutex
	mode           stealth.Mode
	regionCode     string
	status         stealth.Status
	connectedGame  string
	launchedAt     time.Time
	configHandle   *configproxy.Handle
	xmppHandle     *xmppproxy.Handle
	watchCancel    context.CancelFunc
	hostDiscovered bool
}

// New creates an idle Orchestrator. dataDir is the app-data directory
// certs are persisted under.
func New(dataDir string) *Orchestrator {
	return NewWithClock(dataDir, clockwork.NewRealClock())
}

// NewWithClock is New with an injectable clock, for tests that assert on
// LaunchedAt without depending on wall-clock time.
func NewWithClock(dataDir string, clock clockwork.Clock) *Orchestrator {
	return &Orchestrator{
		dataDir:    dataDir,
		clock:      clock,
		mode:       stealth.Offline,
		regionCode: "na",
		status:     stealth.Status{Phase: stealth.Idle},
	}
}

// Launch drives one launch attempt end to end:
//  1. terminate any existing instance of the target game,
//  2. ensure the CA and mint a fresh server leaf,
//  3. start the config proxy,
//  4. snapshot the stealth mode and look up a fallback chat host,
//  5. start the XMPP proxy with that fallback,
//  6. invoke the external launcher,
//  7. on launcher failure, unwind both proxies and return the error,
//  8. spawn a task forwarding the config proxy's discovered host into
//     the XMPP proxy once.
func (o *Orchestrator) Launch(ctx context.Context, game launcher.Game, regionCode string) error {
	if err := launcher.KillExisting(ctx, game); err != nil {
		log.WithError(err).Warn("failed to kill existing client instance, continuing")
	}

	ca, err := certs.EnsureCA(o.dataDir)
	if err != nil {
		return o.fail(trace.Wrap(err, "ensuring CA"))
	}
	leaf, err := certs.IssueServerLeaf(ca, o.dataDir)
	if err != nil {
		return o.fail(trace.Wrap(err, "issuing server leaf"))
	}

	configHandle, err := configproxy.Start(xmppproxy.RemotePort)
	if err != nil {
		return o.fail(trace.Wrap(err, "starting config proxy"))
	}

	o.mu.Lock()
	mode := o.mode
	o.regionCode = regionCode
	o.hostDiscovered = false
	o.mu.Unlock()

	fallbackHost, ok := region.ChatHost(regionCode)
	if !ok {
		fallbackHost, _ = region.ChatHost("na")
	}

	xmppHandle, err := xmppproxy.Start(leaf, fallbackHost, mode)
	if err != nil {
		_ = configHandle.Shutdown(ctx)
		return o.fail(trace.Wrap(err, "starting XMPP proxy"))
	}

	if err := launcher.Launch(game, configHandle.Port); err != nil {
		_ = configHandle.Shutdown(ctx)
		_ = xmppHandle.Shutdown(ctx)
		return o.fail(trace.Wrap(err, "launching client"))
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	go o.forwardDiscoveredHost(watchCtx, configHandle, xmppHandle)

	o.mu.Lock()
	o.configHandle = configHandle
	o.xmppHandle = xmppHandle
	o.watchCancel = cancel
	o.connectedGame = game.Name
	o.launchedAt = o.clock.Now()
	o.status = stealth.Status{Phase: stealth.Running}
	o.mu.Unlock()

	return nil
}

// forwardDiscoveredHost watches the config proxy's host channel and, on
// the first non-empty value it observes, forwards it into the XMPP
// proxy's host channel and exits. Subsequent connections to the XMPP
// proxy use the discovered host; in-flight sessions are not reset. Once
// the real host is discovered, SetRegion stops overriding the fallback.
func (o *Orchestrator) forwardDiscoveredHost(ctx context.Context, cfg *configproxy.Handle, xp *xmppproxy.Handle) {
	var gen uint64
	for {
		host, newGen := cfg.HostCh.Watch(gen, ctx.Done())
		if ctx.Err() != nil {
			return
		}
		gen = newGen
		if host != "" {
			log.WithField("host", host).Info("forwarding discovered chat host to XMPP proxy")
			xp.HostCh.Set(host)
			o.mu.Lock()
			o.hostDiscovered = true
			o.mu.Unlock()
			return
		}
	}
}

// fail records a terminal Error status and returns the error unchanged,
// so callers can both propagate it and have GetStatus reflect it.
func (o *Orchestrator) fail(err error) error {
	o.mu.Lock()
	o.status = stealth.ErrorStatus(err)
	o.mu.Unlock()
	return err
}

// Stop signals both proxies to shut down and clears persisted state.
// Idle (no active launch) is a no-op.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	configHandle, xmppHandle, cancel := o.configHandle, o.xmppHandle, o.watchCancel
	o.configHandle, o.xmppHandle, o.watchCancel = nil, nil, nil
	o.connectedGame = ""
	o.launchedAt = time.Time{}
	o.status = stealth.Status{Phase: stealth.Idle}
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	var result *multierror.Error
	if configHandle != nil {
		if err := configHandle.Shutdown(ctx); err != nil {
			result = multierror.Append(result, trace.Wrap(err, "stopping config proxy"))
		}
	}
	if xmppHandle != nil {
		if err := xmppHandle.Shutdown(ctx); err != nil {
			result = multierror.Append(result, trace.Wrap(err, "stopping XMPP proxy"))
		}
	}

	log.Info("orchestrator stopped")
	return result.ErrorOrNil()
}

// SetMode updates the stealth preference and, if a session is running,
// pushes it to the XMPP proxy's mode channel immediately.
func (o *Orchestrator) SetMode(mode stealth.Mode) {
	o.mu.Lock()
	o.mode = mode
	xmppHandle := o.xmppHandle
	o.mu.Unlock()

	if xmppHandle != nil {
		xmppHandle.ModeCh.Set(mode)
	}
}

// SetRegion records the region code. If a session is running and the
// config proxy has not yet discovered the real chat host, the new
// region's host is also pushed to the running XMPP proxy immediately;
// otherwise SetRegion only records the code. Launch does not read the
// recorded code: it seeds the fallback host from its own regionCode
// argument.
func (o *Orchestrator) SetRegion(code string) {
	o.mu.Lock()
	o.regionCode = code
	xmppHandle := o.xmppHandle
	discovered := o.hostDiscovered
	o.mu.Unlock()

	if xmppHandle == nil || discovered {
		return
	}

	if host, ok := region.ChatHost(code); ok {
		log.WithField("region", code).Info("pushing new fallback chat host to running XMPP proxy")
		xmppHandle.HostCh.Set(host)
	}
}

// GetStatus returns a snapshot of the current mode, proxy status, and
// connected game.
func (o *Orchestrator) GetStatus() stealth.Info {
	o.mu.Lock()
	defer o.mu.Unlock()

	info := stealth.Info{
		Mode:          o.mode,
		ProxyStatus:   o.status,
		ConnectedGame: o.connectedGame,
		LaunchedAt:    o.launchedAt,
	}
	if o.configHandle != nil {
		info.ConfigProxyURL = "http://127.0.0.1:" + strconv.Itoa(o.configHandle.Port)
	}
	return info
}
