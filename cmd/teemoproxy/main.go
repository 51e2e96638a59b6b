// Command teemoproxy drives the interception pipeline from the command
// line: launch a game behind the stealth proxy, toggle stealth mode,
// change region, or query status. It is the same control surface a
// desktop shell would call over IPC. Each invocation runs its own
// Orchestrator: set-mode, set-region, status and stop act on that
// process's state only and do not reach a session started by another
// invocation of launch.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/sirupsen/logrus"

	"github.com/quietqueue/teemoproxy/lib/config"
	"github.com/quietqueue/teemoproxy/lib/launcher"
	"github.com/quietqueue/teemoproxy/lib/orchestrator"
	"github.com/quietqueue/teemoproxy/lib/region"
	"github.com/quietqueue/teemoproxy/lib/stealth"
)

var log = logrus.WithField("component", "cmd")

func main() {
	app := kingpin.New("teemoproxy", "Appear offline to friends while you play.")
	configPath := app.Flag("config", "path to a YAML config file").Default("").String()
	verbose := app.Flag("verbose", "enable debug logging").Bool()

	launchCmd := app.Command("launch", "kill any running client, then launch it behind the stealth proxy")
	launchGame := launchCmd.Flag("game", "product-selector flag value for the client").Default("league_of_legends").String()
	launchBinary := launchCmd.Flag("process-name", "process name to kill before relaunching").Default("LeagueClient").String()
	launchExecutable := launchCmd.Arg("executable", "path to the client binary").Required().String()
	launchRegion := launchCmd.Flag("region", "region code seeding the fallback chat host (default: the config file's default_region)").Default("").String()
	launchMode := launchCmd.Flag("mode", "initial stealth mode: online or offline").Default("offline").String()

	setModeCmd := app.Command("set-mode", "set the stealth mode of this process's orchestrator (a session started by another invocation is not reached)")
	setModeValue := setModeCmd.Arg("mode", "online or offline").Required().String()

	setRegionCmd := app.Command("set-region", "change the fallback chat region")
	setRegionValue := setRegionCmd.Arg("region", "region code, e.g. na, euw, kr").Required().String()

	app.Command("status", "print the current status")
	app.Command("stop", "stop this process's orchestrator (a session started by another invocation is not reached)")

	cmd := kingpin.MustParse(app.Parse(os.Args[1:]))

	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		kingpin.Fatalf("loading config: %v", err)
	}

	orch := orchestrator.New(cfg.DataDir)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	switch cmd {
	case launchCmd.FullCommand():
		orch.SetMode(stealth.ParseMode(*launchMode))
		game := launcher.Game{
			Name:       *launchGame,
			BinaryName: *launchBinary,
			Executable: *launchExecutable,
		}
		regionCode := *launchRegion
		if regionCode == "" {
			regionCode = cfg.DefaultRegion
		}
		if err := orch.Launch(ctx, game, regionCode); err != nil {
			kingpin.Fatalf("launch failed: %v", err)
		}
		fmt.Println(formatStatus(orch.GetStatus()))
		waitForSignal()
		_ = orch.Stop(ctx)

	case setModeCmd.FullCommand():
		orch.SetMode(stealth.ParseMode(*setModeValue))
		fmt.Println(formatStatus(orch.GetStatus()))

	case setRegionCmd.FullCommand():
		if _, ok := region.ChatHost(*setRegionValue); !ok {
			var codes []string
			for _, r := range region.List() {
				codes = append(codes, r.Code)
			}
			kingpin.Fatalf("unknown region %q, known codes: %v", *setRegionValue, codes)
		}
		orch.SetRegion(*setRegionValue)
		fmt.Println(formatStatus(orch.GetStatus()))

	case "status":
		fmt.Println(formatStatus(orch.GetStatus()))

	case "stop":
		if err := orch.Stop(ctx); err != nil {
			kingpin.Fatalf("stop failed: %v", err)
		}
	}
}

func formatStatus(info stealth.Info) string {
	return fmt.Sprintf("mode=%s status=%s game=%q config_proxy=%s",
		info.Mode, info.ProxyStatus, info.ConnectedGame, info.ConfigProxyURL)
}

func waitForSignal() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	log.Info("received shutdown signal")
}
