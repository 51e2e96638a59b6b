// Package stealth holds the process-wide data model shared by the config
// proxy, the XMPP proxy, and the orchestrator: the user's stealth
// preference and the lifecycle state of a launch attempt.
package stealth

import (
	"fmt"
	"time"
)

// Mode selects whether outbound presence is forwarded truthfully or
// forced to unavailable by the XMPP proxy's presence filter.
type Mode int

const (
	// Online forwards presence stanzas unmodified.
	Online Mode = iota
	// Offline rewrites outbound presence to type="unavailable".
	Offline
)

func (m Mode) String() string {
	switch m {
	case Online:
		return "online"
	case Offline:
		return "offline"
	default:
		return "unknown"
	}
}

// ParseMode parses the CLI/IPC string form of a Mode. Anything other
// than "online" is treated as Offline, so unrecognized values default
// to stealth rather than leaking presence.
func ParseMode(s string) Mode {
	if s == "online" {
		return Online
	}
	return Offline
}

// Status is the lifecycle state of one launch attempt. It is monotonic
// within an attempt: Idle -> Running on successful start of both proxies,
// back to Idle on shutdown, or Error (terminal for the attempt).
type Status struct {
	Phase   Phase
	Message string
}

// Phase enumerates the monotonic states of Status.
type Phase int

const (
	Idle Phase = iota
	Running
	Error
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// ErrorStatus builds a terminal Error status carrying a human-readable
// message, matching ProxyStatus::Error(message) in the data model.
func ErrorStatus(err error) Status {
	return Status{Phase: Error, Message: err.Error()}
}

func (s Status) String() string {
	if s.Message == "" {
		return s.Phase.String()
	}
	return fmt.Sprintf("%s: %s", s.Phase, s.Message)
}

// Info is the read-only snapshot returned by Orchestrator.GetStatus,
// mirroring state.rs::StatusInfo.
type Info struct {
	Mode           Mode
	ProxyStatus    Status
	ConnectedGame  string
	ConfigProxyURL string
	// LaunchedAt is the zero time while no launched session is held:
	// before the first successful Launch and after Stop.
	LaunchedAt time.Time
}
