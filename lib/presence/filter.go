// Package presence implements the outbound presence rewrite: in Offline
// mode, <presence> stanzas are collapsed to a bare type="unavailable"
// announcement; everything else passes through.
package presence

import (
	"strings"

	"github.com/quietqueue/teemoproxy/lib/stealth"
)

// Filter rewrites a single complete stanza according to mode. Online
// mode and non-presence stanzas are returned verbatim.
func Filter(stanza string, mode stealth.Mode) string {
	if mode == stealth.Online {
		return stanza
	}

	trimmed := strings.TrimSpace(stanza)
	if !strings.HasPrefix(trimmed, "<presence") {
		return stanza
	}

	if strings.HasSuffix(trimmed, "/>") {
		return makeUnavailableSelfClosing(trimmed)
	}

	if strings.Contains(trimmed, "</presence>") {
		return makeUnavailable(trimmed)
	}

	return stanza
}

// IsUnfilteredPresence reports whether s is a presence stanza that does
// not already carry type="unavailable", i.e. one worth caching as the
// last-seen online presence.
func IsUnfilteredPresence(s string) bool {
	trimmed := strings.TrimSpace(s)
	return strings.HasPrefix(trimmed, "<presence") && !strings.Contains(trimmed, `type="unavailable"`)
}

func makeUnavailableSelfClosing(stanza string) string {
	withoutType := removeAttribute(stanza, "type")
	return strings.Replace(withoutType, "<presence", `<presence type="unavailable"`, 1)
}

func makeUnavailable(stanza string) string {
	tagEnd := strings.IndexByte(stanza, '>')
	if tagEnd < 0 {
		tagEnd = len(stanza)
	}
	opening := stanza[:tagEnd]

	withoutType := removeAttribute(opening, "type")
	withoutType = strings.TrimRight(withoutType, "/")
	return strings.Replace(withoutType, "<presence", `<presence type="unavailable"`, 1) + "/>"
}

// removeAttribute strips a single `name="value"` or `name='value'`
// attribute from tag, leaving everything else (to, from, id, xmlns...)
// untouched.
func removeAttribute(tag string, name string) string {
	for _, quote := range []byte{'"', '\''} {
		prefix := " " + name + "=" + string(quote)
		start := strings.Index(tag, prefix)
		if start < 0 {
			continue
		}
		valueStart := start + len(prefix)
		end := strings.IndexByte(tag[valueStart:], quote)
		if end < 0 {
			continue
		}
		return tag[:start] + tag[valueStart+end+1:]
	}
	return tag
}
