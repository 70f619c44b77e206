package commands

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/wpsim/hairpin/src/internal/config"
	"github.com/wpsim/hairpin/src/internal/log"
	"github.com/wpsim/hairpin/src/internal/service"
)

type runFunc func(s *service.RoutingService, ctx context.Context) *service.Report

// CreateProvisionCommand creates the identities, demotes the local rule and
// writes the proxy bindings.
func CreateProvisionCommand() *RunCommand {
	return newRunCommand("provision", (*service.RoutingService).Provision)
}

// CreateRouteCommand installs hairpin routing for the discovered pool.
func CreateRouteCommand() *RunCommand {
	return newRunCommand("route", (*service.RoutingService).Route)
}

// CreateApplyCommand runs provision and route in order.
func CreateApplyCommand() *RunCommand {
	return newRunCommand("apply", (*service.RoutingService).Apply)
}

func newRunCommand(name string, run runFunc) *RunCommand {
	gc := &RunCommand{
		fs:  flag.NewFlagSet(name, flag.ExitOnError),
		run: run,
	}

	gc.fs.BoolVar(&gc.JSON, "json", false, "Print the run report as JSON to stdout")

	return gc
}

// RunCommand executes one mutating entry point under the host run lock.
type RunCommand struct {
	fs  *flag.FlagSet
	cfg *config.Config
	run runFunc

	JSON bool
}

func (g *RunCommand) Name() string {
	return g.fs.Name()
}

func (g *RunCommand) Init(args []string, ctx *AppContext) error {
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

func (g *RunCommand) Run() error {
	svc, err := newRoutingService(g.cfg)
	if err != nil {
		return err
	}

	return withRunLock(g.cfg, func() error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		report := g.run(svc, ctx)
		report.Log()

		if g.JSON {
			if err := printJSON(report); err != nil {
				return err
			}
		}

		return reportError(report)
	})
}
