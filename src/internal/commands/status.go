package commands

import (
	"context"
	"flag"

	"github.com/wpsim/hairpin/src/internal/config"
	"github.com/wpsim/hairpin/src/internal/log"
)

func CreateStatusCommand() *StatusCommand {
	gc := &StatusCommand{
		fs: flag.NewFlagSet("status", flag.ExitOnError),
	}

	gc.fs.BoolVar(&gc.JSON, "json", false, "Print the status report as JSON to stdout")

	return gc
}

// StatusCommand checks every component against the live kernel without
// changing anything. It needs no run lock.
type StatusCommand struct {
	fs  *flag.FlagSet
	cfg *config.Config

	JSON bool
}

func (g *StatusCommand) Name() string {
	return g.fs.Name()
}

func (g *StatusCommand) Init(args []string, ctx *AppContext) error {
	if err := g.fs.Parse(args); err != nil {
		return err
	}

	if g.JSON {
		log.SetForceStdErr(true)
	}

	cfg, err := loadAndValidateConfigOrFail(ctx.ConfigPath)
	if err != nil {
		return err
	}
	g.cfg = cfg

	return nil
}

func (g *StatusCommand) Run() error {
	svc, err := newRoutingService(g.cfg)
	if err != nil {
		return err
	}

	log.Infof("Running self-check...")
	report := svc.Status(context.Background())
	report.LogChecks()
	report.Log()

	if g.JSON {
		if err := printJSON(report); err != nil {
			return err
		}
	}

	return reportError(report)
}
