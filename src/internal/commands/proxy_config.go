package commands

import (
	"flag"
	"fmt"

	"github.com/wpsim/hairpin/src/internal/config"
	"github.com/wpsim/hairpin/src/internal/log"
)

func CreateProxyConfigCommand() *ProxyConfigCommand {
	return &ProxyConfigCommand{
		fs: flag.NewFlagSet("proxy-config", flag.ExitOnError),
	}
}

// ProxyConfigCommand prints the proxy configuration for the current pool.
// Nothing is written; stdout carries only the configuration.
type ProxyConfigCommand struct {
	fs  *flag.FlagSet
	cfg *config.Config
}

func (g *ProxyConfigCommand) Name() string {
	return g.fs.Name()
}

func (g *ProxyConfigCommand) Init(args []string, ctx *AppContext) error {
	log.SetForceStdErr(true)

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

func (g *ProxyConfigCommand) Run() error {
	svc, err := newRoutingService(g.cfg)
	if err != nil {
		return err
	}

	content, err := svc.ProxyConfig()
	if err != nil {
		return fmt.Errorf("failed to render proxy config: %w", err)
	}

	fmt.Print(content)
	return nil
}
