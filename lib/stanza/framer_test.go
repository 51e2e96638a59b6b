package stanza

import "testing"

func TestFindComplete(t *testing.T) {
	tests := []struct {
		name string
		buf  string
	}{
		{"full presence", `<presence><show>chat</show></presence>`},
		{"self closing presence", `<presence from="user@server"/>`},
		{"stream open", `<stream:stream xmlns="jabber:client" to="server">`},
		{"auth stanza", `<auth xmlns="urn:ietf:params:xml:ns:xmpp-sasl" mechanism="X-Riot-RSO">dG9rZW4=</auth>`},
		{"xml declaration", `<?xml version='1.0'?>`},
		{"close stream", `</stream:stream>`},
		{"nested features", `<stream:features><mechanisms xmlns="urn:ietf:params:xml:ns:xmpp-sasl"><mechanism>X-Riot-RSO</mechanism></mechanisms></stream:features>`},
		{"response", `<response xmlns="urn:ietf:params:xml:ns:xmpp-sasl">dG9rZW4=</response>`},
		{
			"self closing child not confused with outer",
			`<presence id='5'><show>chat</show><games><keystone><pty/></keystone></games></presence>`,
		},
		{"single quoted self closing attr", `<presence from='u@s' type='available'/>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, ok := Find([]byte(tt.buf))
			if !ok {
				t.Fatalf("expected complete stanza, got incomplete")
			}
			if n != len(tt.buf) {
				t.Fatalf("expected length %d, got %d", len(tt.buf), n)
			}
		})
	}
}

func TestFindIncomplete(t *testing.T) {
	tests := []string{
		"",
		`<presence><show>chat</show>`,
		`<presence id="1"`,
		`   `,
		`<stream:features><mechanisms>`,
	}

	for _, buf := range tests {
		if n, ok := Find([]byte(buf)); ok {
			t.Fatalf("Find(%q) = (%d, true), want incomplete", buf, n)
		}
	}
}

func TestFindLeadingWhitespaceAndPreamble(t *testing.T) {
	buf := "   <message/>"
	n, ok := Find([]byte(buf))
	if !ok || n != len(buf) {
		t.Fatalf("Find(%q) = (%d, %v), want (%d, true)", buf, n, ok, len(buf))
	}
}

func TestFindLeadingNonTagBytes(t *testing.T) {
	buf := "some text<presence/>"
	n, ok := Find([]byte(buf))
	if !ok {
		t.Fatalf("expected to consume leading text up to '<'")
	}
	if n != len("some text") {
		t.Fatalf("expected to stop at '<', got n=%d", n)
	}
}

func TestFindByteSplitStanza(t *testing.T) {
	full := `<presence id='5'><show>chat</show><games><keystone><pty/></keystone></games></presence>`
	for split := 1; split < len(full); split++ {
		a := []byte(full[:split])
		if n, ok := Find(a); ok {
			// A split prefix may legitimately look complete only if it
			// really is a complete construct on its own; here it never
			// is, since full has exactly one top-level element.
			t.Fatalf("split at %d: Find(%q) = (%d, true) unexpectedly", split, a, n)
		}
	}
	n, ok := Find([]byte(full))
	if !ok || n != len(full) {
		t.Fatalf("Find(full) = (%d, %v), want (%d, true)", n, ok, len(full))
	}
}

func TestFindMismatchedClosingTagWaits(t *testing.T) {
	buf := `<presence id="1"></message>`
	if _, ok := Find([]byte(buf)); ok {
		t.Fatalf("expected mismatched closing tag to be treated as incomplete")
	}
}
