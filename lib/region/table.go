// Package region holds the static region-code -> chat-host lookup table
// used only to seed the XMPP proxy's fallback upstream before the
// config proxy discovers the real host.
package region

import "strings"

// entry pairs a region's chat host with its human-readable display name.
type entry struct {
	host        string
	displayName string
}

var table = map[string]entry{
	"br":   {"br1.chat.si.riotgames.com", "Brazil"},
	"br1":  {"br1.chat.si.riotgames.com", "Brazil"},
	"eun":  {"eun1.chat.si.riotgames.com", "EU Nordic & East"},
	"eun1": {"eun1.chat.si.riotgames.com", "EU Nordic & East"},
	"euw":  {"euw1.chat.si.riotgames.com", "EU West"},
	"euw1": {"euw1.chat.si.riotgames.com", "EU West"},
	"jp":   {"jp1.chat.si.riotgames.com", "Japan"},
	"jp1":  {"jp1.chat.si.riotgames.com", "Japan"},
	"kr":   {"kr1.chat.si.riotgames.com", "Korea"},
	"kr1":  {"kr1.chat.si.riotgames.com", "Korea"},
	"la1":  {"la1.chat.si.riotgames.com", "Latin America North"},
	"lan":  {"la1.chat.si.riotgames.com", "Latin America North"},
	"la2":  {"la2.chat.si.riotgames.com", "Latin America South"},
	"las":  {"la2.chat.si.riotgames.com", "Latin America South"},
	"na":   {"na2.chat.si.riotgames.com", "North America"},
	"na1":  {"na2.chat.si.riotgames.com", "North America"},
	"na2":  {"na2.chat.si.riotgames.com", "North America"},
	"oc":   {"oc1.chat.si.riotgames.com", "Oceania"},
	"oc1":  {"oc1.chat.si.riotgames.com", "Oceania"},
	"oce":  {"oc1.chat.si.riotgames.com", "Oceania"},
	"ph":   {"ph2.chat.si.riotgames.com", "Philippines"},
	"ph2":  {"ph2.chat.si.riotgames.com", "Philippines"},
	"ru":   {"ru1.chat.si.riotgames.com", "Russia"},
	"ru1":  {"ru1.chat.si.riotgames.com", "Russia"},
	"sg":   {"sg2.chat.si.riotgames.com", "Singapore"},
	"sg2":  {"sg2.chat.si.riotgames.com", "Singapore"},
	"th":   {"th2.chat.si.riotgames.com", "Thailand"},
	"th2":  {"th2.chat.si.riotgames.com", "Thailand"},
	"tr":   {"tr1.chat.si.riotgames.com", "Turkey"},
	"tr1":  {"tr1.chat.si.riotgames.com", "Turkey"},
	"tw":   {"tw2.chat.si.riotgames.com", "Taiwan"},
	"tw2":  {"tw2.chat.si.riotgames.com", "Taiwan"},
	"vn":   {"vn2.chat.si.riotgames.com", "Vietnam"},
	"vn2":  {"vn2.chat.si.riotgames.com", "Vietnam"},
}

// displayOrder lists one canonical code per region for List, in the
// order a region dropdown would present them.
var displayOrder = []string{
	"br", "eun", "euw", "jp", "kr", "la1", "la2", "na",
	"oc", "ph", "ru", "sg", "th", "tr", "tw", "vn",
}

// ChatHost returns the known chat host for a region code, or ok=false
// for an unrecognized code. Lookup is case-insensitive.
func ChatHost(code string) (host string, ok bool) {
	e, ok := table[strings.ToLower(code)]
	if !ok {
		return "", false
	}
	return e.host, true
}

// Region is one entry in the region list surfaced to the operator.
type Region struct {
	Code        string
	DisplayName string
}

// List returns all known regions in display order, one canonical code
// per region.
func List() []Region {
	out := make([]Region, 0, len(displayOrder))
	for _, code := range displayOrder {
		out = append(out, Region{Code: code, DisplayName: table[code].displayName})
	}
	return out
}
