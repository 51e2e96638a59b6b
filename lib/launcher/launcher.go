// Package launcher implements the launcher boundary: killing any
// running instance of the target game client, then exec'ing it with its
// config-URL flag pointed at the config proxy's ephemeral port. Process
// discovery uses gopsutil for cross-platform process enumeration.
package launcher

import (
	"context"
	"os/exec"
	"strconv"
	"strings"

	"github.com/gravitational/trace"
	"github.com/shirou/gopsutil/v3/process"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "launcher")

// Game names the target client binary and the product-selector flag
// value naming the target game in the client's own config-URL scheme.
type Game struct {
	Name       string // product-selector flag value, e.g. "league_of_legends"
	BinaryName string // process name to look for/kill, e.g. "LeagueClient"
	Executable string // path to the client binary to exec
}

// KillExisting terminates any running instance of game's client process,
// so the new launch is the only one routing through the proxy. It is
// not an error for no matching process to be running.
func KillExisting(ctx context.Context, game Game) error {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return trace.Wrap(err, "listing processes")
	}

	var killed int
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		if !strings.EqualFold(name, game.BinaryName) {
			continue
		}
		if err := p.KillWithContext(ctx); err != nil {
			log.WithError(err).WithField("pid", p.Pid).Warn("failed to kill existing client process")
			continue
		}
		killed++
	}

	if killed > 0 {
		log.WithField("count", killed).Info("killed existing client process(es)")
	}
	return nil
}

// Launch execs game's client with its config-URL flag pointed at the
// config proxy on 127.0.0.1:configProxyPort. Exit code and stdout of the
// launched process are ignored; Launch only reports a failure to spawn
// the process at all.
func Launch(game Game, configProxyPort int) error {
	configURL := "http://127.0.0.1:" + strconv.Itoa(configProxyPort)

	cmd := exec.Command(game.Executable,
		"--client-config-url="+configURL,
		"--launch-product="+game.Name,
	)

	if err := cmd.Start(); err != nil {
		return trace.Wrap(err, "spawning %s", game.Executable)
	}

	log.WithFields(logrus.Fields{"game": game.Name, "pid": cmd.Process.Pid}).Info("launched client")

	// Detach: the orchestrator does not wait on the client process,
	// exit code and stdout are ignored.
	go func() {
		_ = cmd.Wait()
	}()

	return nil
}
