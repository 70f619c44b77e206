package commands

import (
	"flag"

	"github.com/wpsim/hairpin/src/internal/config"
	"github.com/wpsim/hairpin/src/internal/log"
)

func CreateTeardownCommand() *TeardownCommand {
	return &TeardownCommand{
		fs: flag.NewFlagSet("teardown", flag.ExitOnError),
	}
}

// TeardownCommand removes selectors, flushes identity tables, restores the
// local rule at priority 0 and deletes the identity links.
type TeardownCommand struct {
	fs  *flag.FlagSet
	cfg *config.Config
}

func (g *TeardownCommand) Name() string {
	return g.fs.Name()
}

func (g *TeardownCommand) Init(args []string, ctx *AppContext) error {
	if err := g.fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadAndValidateConfigOrFail(ctx.ConfigPath)
	if err != nil {
		return err
	}
	g.cfg = cfg

	return nil
}

func (g *TeardownCommand) Run() error {
	svc, err := newRoutingService(g.cfg)
	if err != nil {
		return err
	}

	return withRunLock(g.cfg, func() error {
		log.Infof("Removing hairpin routing, local rule adjustment and identity interfaces...")
		if err := svc.Teardown(); err != nil {
			log.Errorf("Teardown failed: %v", err)
			return err
		}
		log.Infof("Teardown completed successfully")
		return nil
	})
}
