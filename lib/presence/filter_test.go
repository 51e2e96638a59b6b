package presence

import (
	"strings"
	"testing"

	"github.com/quietqueue/teemoproxy/lib/stealth"
)

func TestFilterOnlinePassthrough(t *testing.T) {
	stanza := `<presence><show>chat</show></presence>`
	if got := Filter(stanza, stealth.Online); got != stanza {
		t.Fatalf("got %q, want verbatim passthrough", got)
	}
}

func TestFilterNonPresencePassthrough(t *testing.T) {
	stanza := `<message to="friend@server"><body>hello</body></message>`
	if got := Filter(stanza, stealth.Offline); got != stanza {
		t.Fatalf("got %q, want verbatim passthrough", got)
	}
}

func TestFilterOfflineFullPresence(t *testing.T) {
	stanza := `<presence from="user@server" id="7"><show>chat</show><status>Playing</status></presence>`
	got := Filter(stanza, stealth.Offline)

	if !strings.Contains(got, `type="unavailable"`) {
		t.Fatalf("missing type=unavailable: %q", got)
	}
	if !strings.Contains(got, `from="user@server"`) {
		t.Fatalf("missing from attribute: %q", got)
	}
	if !strings.Contains(got, `id="7"`) {
		t.Fatalf("missing id attribute: %q", got)
	}
	if strings.Contains(got, "<show>") {
		t.Fatalf("child content leaked: %q", got)
	}
}

func TestFilterOfflineSelfClosing(t *testing.T) {
	stanza := `<presence type="available" from="user@server"/>`
	got := Filter(stanza, stealth.Offline)

	if !strings.Contains(got, `type="unavailable"`) {
		t.Fatalf("missing type=unavailable: %q", got)
	}
	if strings.Contains(got, `type="available"`) {
		t.Fatalf("old type leaked: %q", got)
	}
	if !strings.Contains(got, `from="user@server"`) {
		t.Fatalf("missing from attribute: %q", got)
	}
}

func TestFilterIdempotent(t *testing.T) {
	stanza := `<presence from="u@s" id="7"><show>chat</show></presence>`
	once := Filter(stanza, stealth.Offline)
	twice := Filter(once, stealth.Offline)
	if once != twice {
		t.Fatalf("filter not idempotent: %q vs %q", once, twice)
	}
}

func TestFilterExactlyOneType(t *testing.T) {
	stanza := `<presence type="available" from="u@s"/>`
	got := Filter(stanza, stealth.Offline)
	if strings.Count(got, "type=") != 1 {
		t.Fatalf("expected exactly one type= occurrence, got %q", got)
	}
}

func TestIsUnfilteredPresence(t *testing.T) {
	if !IsUnfilteredPresence(`<presence id="1"><show>chat</show></presence>`) {
		t.Fatal("expected true for an available presence")
	}
	if IsUnfilteredPresence(`<presence type="unavailable"/>`) {
		t.Fatal("expected false for an already-unavailable presence")
	}
	if IsUnfilteredPresence(`<message/>`) {
		t.Fatal("expected false for a non-presence stanza")
	}
}
