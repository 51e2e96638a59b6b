package configproxy

import (
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Literal top-level keys in the upstream config JSON contain dots (e.g.
// "chat.host"), not nested objects. gjson/sjson treat "." as a path
// separator, so every reference to one of these keys must escape its
// dot with a backslash to mean "literal dot in this key name" rather
// than "descend into a nested object".
const (
	keyChatHost             = `chat\.host`
	keyChatPort             = `chat\.port`
	keyChatAffinities       = `chat\.affinities`
	keyChatAllowBadCert     = `chat\.allow_bad_cert`
	chatAllowBadCertEnabled = keyChatAllowBadCert + `.enabled`
)

// patchResult is what patchConfig reports back about a patch attempt.
type patchResult struct {
	body           string
	discoveredHost string
	patched        bool
}

// patchConfig rewrites the chat.* keys in body to redirect the client at
// 127.0.0.1:proxyPort. It reports the real chat.host value it
// discovered (if any) so the caller can publish it exactly once. Bodies
// that are not valid JSON, or JSON with none of the three chat.* keys,
// are reported unpatched and must be passed through byte-for-byte.
func patchConfig(body string, proxyPort uint16) patchResult {
	if !gjson.Valid(body) {
		return patchResult{body: body}
	}

	hasChatConfig := gjson.Get(body, keyChatHost).Exists() ||
		gjson.Get(body, keyChatPort).Exists() ||
		gjson.Get(body, keyChatAffinities).Exists()
	if !hasChatConfig {
		return patchResult{body: body}
	}

	out := body
	var discovered string

	if host := gjson.Get(body, keyChatHost); host.Exists() {
		if s := host.String(); s != "" {
			discovered = s
		}
		out = mustSet(out, keyChatHost, "127.0.0.1")
	}

	if gjson.Get(body, keyChatPort).Exists() {
		out = mustSet(out, keyChatPort, int(proxyPort))
	}

	if affinities := gjson.Get(body, keyChatAffinities); affinities.Exists() && affinities.IsObject() {
		affinities.ForEach(func(region, _ gjson.Result) bool {
			path := keyChatAffinities + "." + escapeSjsonKey(region.String())
			out = mustSet(out, path, "127.0.0.1")
			return true
		})
	}

	out = mustSet(out, chatAllowBadCertEnabled, true)

	return patchResult{body: out, discoveredHost: discovered, patched: true}
}

// escapeSjsonKey escapes path-significant characters ('.', '*', '?') in
// a region code before splicing it into an sjson path segment. Region
// codes observed in practice never contain these, but the escape keeps
// the patch correct if the upstream ever adds one that does.
func escapeSjsonKey(key string) string {
	r := strings.NewReplacer(".", `\.`, "*", `\*`, "?", `\?`)
	return r.Replace(key)
}

// mustSet applies an sjson.Set and falls back to the prior body on
// error. sjson.Set only fails on a structurally invalid JSON document,
// which gjson.Valid already ruled out above.
func mustSet(json, path string, value any) string {
	next, err := sjson.Set(json, path, value)
	if err != nil {
		return json
	}
	return next
}
