package configproxy

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tidwall/gjson"
)

func TestProxyPatchesJSONResponse(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"chat.host":"na2.chat.x","chat.port":5223,"chat.affinities":{"na":"na2.chat.x"}}`))
	}))
	defer upstream.Close()

	h, err := startWithBase(upstream.URL, 5223)
	if err != nil {
		t.Fatalf("startWithBase: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = h.Shutdown(ctx)
	}()

	resp, err := http.Get("http://127.0.0.1:" + itoa(h.Port) + "/clientconfig/v1/config")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if got := gjson.GetBytes(body, keyChatHost).String(); got != "127.0.0.1" {
		t.Fatalf("chat.host = %q, want 127.0.0.1", got)
	}

	select {
	case <-h.HostCh.Chan():
	case <-time.After(2 * time.Second):
		if h.HostCh.Get() == "" {
			t.Fatal("expected HostCh to publish the discovered host")
		}
	}
	if got := h.HostCh.Get(); got != "na2.chat.x" {
		t.Fatalf("HostCh.Get() = %q, want na2.chat.x", got)
	}
}

func TestProxyPassesThroughNonJSON(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("hello"))
	}))
	defer upstream.Close()

	h, err := startWithBase(upstream.URL, 5223)
	if err != nil {
		t.Fatalf("startWithBase: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = h.Shutdown(ctx)
	}()

	resp, err := http.Get("http://127.0.0.1:" + itoa(h.Port) + "/anything")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if string(body) != "hello" {
		t.Fatalf("body = %q, want %q", body, "hello")
	}
	if h.HostCh.Get() != "" {
		t.Fatal("expected no host discovered from non-JSON response")
	}
}

func TestProxyUpstreamFailureReturns502(t *testing.T) {
	h, err := startWithBase("http://127.0.0.1:1", 5223) // nothing listening there
	if err != nil {
		t.Fatalf("startWithBase: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = h.Shutdown(ctx)
	}()

	resp, err := http.Get("http://127.0.0.1:" + itoa(h.Port) + "/x")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", resp.StatusCode)
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [8]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
