// Package configproxy implements the local config proxy: a local HTTP
// listener that fetches the upstream client-config JSON, patches its
// chat endpoint fields to point at the local XMPP proxy, and publishes
// the real chat host it discovered along the way.
package configproxy

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gravitational/trace"
	"github.com/sirupsen/logrus"

	"github.com/quietqueue/teemoproxy/lib/broadcast"
)

var log = logrus.WithField("component", "configproxy")

const (
	upstreamBase = "https://clientconfig.rpg.riotgames.com"
	fetchTimeout = 15 * time.Second
)

// forwardedHeaders is the header allowlist forwarded upstream: just
// enough for it to authenticate and identify the client.
var forwardedHeaders = []string{"user-agent", "x-riot-entitlements-jwt", "authorization"}

// Handle is the running config proxy's control surface.
type Handle struct {
	Port     int
	HostCh   *broadcast.Latest[string] // empty string until discovered
	server   *http.Server
	listener net.Listener
}

// Start binds an ephemeral localhost port, begins serving immediately in
// a background goroutine, and returns once the listener is bound (the
// config proxy must be bound before the client is launched). proxyPort
// is the XMPP proxy's fixed listen port, spliced into every patched
// chat.port field.
func Start(proxyPort uint16) (*Handle, error) {
	return startWithBase(upstreamBase, proxyPort)
}

// startWithBase is Start with the upstream base URL overridable, so
// tests can point it at an httptest server instead of the real vendor
// config host.
func startWithBase(base string, proxyPort uint16) (*Handle, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, trace.Wrap(err, "binding config proxy")
	}
	port := listener.Addr().(*net.TCPAddr).Port

	h := &Handle{
		Port:     port,
		HostCh:   broadcast.NewLatest(""),
		listener: listener,
	}

	httpClient := &http.Client{
		Timeout: fetchTimeout,
		Transport: &http.Transport{
			TLSClientConfig: insecureSkipVerifyConfig(),
			// Disable content-encoding negotiation so response bodies
			// arrive as decoded text, ready for JSON patching.
			DisableCompression: true,
		},
	}

	router := mux.NewRouter()
	router.PathPrefix("/").HandlerFunc(h.handle(httpClient, base, proxyPort))

	h.server = &http.Server{Handler: router}

	go func() {
		log.WithField("port", port).Info("config proxy listening")
		if err := h.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("config proxy listener exited")
		}
	}()

	return h, nil
}

// Shutdown stops accepting new connections and waits briefly for
// in-flight requests to finish.
func (h *Handle) Shutdown(ctx context.Context) error {
	log.Info("config proxy shutting down")
	return trace.Wrap(h.server.Shutdown(ctx))
}

func (h *Handle) handle(client *http.Client, base string, proxyPort uint16) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		upstreamURL := base + r.URL.RequestURI()
		log.WithFields(logrus.Fields{"method": r.Method, "path": r.URL.RequestURI()}).Info("proxying config request")

		upstreamReq, err := http.NewRequestWithContext(r.Context(), http.MethodGet, upstreamURL, nil)
		if err != nil {
			writeUpstreamError(w, trace.Wrap(err, "building upstream request"))
			return
		}
		for _, name := range forwardedHeaders {
			if v := r.Header.Get(name); v != "" {
				upstreamReq.Header.Set(name, v)
			}
		}

		resp, err := client.Do(upstreamReq)
		if err != nil {
			writeUpstreamError(w, trace.Wrap(err, "upstream fetch failed"))
			return
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			writeUpstreamError(w, trace.Wrap(err, "reading upstream body"))
			return
		}

		contentType := resp.Header.Get("Content-Type")
		finalBody := string(body)

		if isJSON(contentType) {
			result := patchConfig(finalBody, proxyPort)
			finalBody = result.body
			if result.discoveredHost != "" {
				// "first non-empty value wins": Set is idempotent from the
				// reader's point of view since subsequent Set calls are
				// harmless, but we only ever want the first transition
				// observed, so skip once already set.
				if h.HostCh.Get() == "" {
					log.WithField("host", result.discoveredHost).Info("discovered real chat host")
					h.HostCh.Set(result.discoveredHost)
				}
			}
		}

		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(resp.StatusCode)
		_, _ = w.Write([]byte(finalBody))
	}
}

func writeUpstreamError(w http.ResponseWriter, err error) {
	log.WithError(err).Error("config proxy upstream failure")
	w.WriteHeader(http.StatusBadGateway)
	_, _ = w.Write([]byte(err.Error()))
}

func isJSON(contentType string) bool {
	return strings.Contains(contentType, "json")
}
