package commands

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wpsim/hairpin/src/internal/api"
	"github.com/wpsim/hairpin/src/internal/config"
	"github.com/wpsim/hairpin/src/internal/log"
	"github.com/wpsim/hairpin/src/internal/service"
)

// ServeCommand runs the HTTP status API and, optionally, a periodic reconcile.
type ServeCommand struct {
	fs  *flag.FlagSet
	ctx *AppContext
	cfg *config.Config

	bindAddr string
	interval time.Duration
}

func CreateServeCommand() *ServeCommand {
	gc := &ServeCommand{
		fs: flag.NewFlagSet("serve", flag.ExitOnError),
	}

	gc.fs.StringVar(&gc.bindAddr, "bind", "", "Address to bind the HTTP server (default: api.listen_addr from config)")
	gc.fs.DurationVar(&gc.interval, "reconcile-interval", 0, "Re-apply the pool on this interval (0 disables)")

	return gc
}

func (c *ServeCommand) Name() string {
	return c.fs.Name()
}

func (c *ServeCommand) Init(args []string, ctx *AppContext) error {
	c.ctx = ctx

	if err := c.fs.Parse(args); err != nil {
		return err
	}
	if c.interval < 0 {
		return fmt.Errorf("-reconcile-interval must not be negative")
	}

	cfg, err := loadAndValidateConfigOrFail(ctx.ConfigPath)
	if err != nil {
		return err
	}
	c.cfg = cfg

	if c.bindAddr == "" {
		c.bindAddr = cfg.API.ListenAddr
	}

	return nil
}

func (c *ServeCommand) Run() error {
	svc, err := newRoutingService(c.cfg)
	if err != nil {
		return err
	}

	log.Infof("Configuration loaded from: %s", c.ctx.ConfigPath)
	log.Infof("Access restricted to loopback and private networks")

	server := api.NewServer(c.bindAddr, svc, c.cfg.General.LockFile)

	var loop *PeriodicRunner
	if c.interval > 0 {
		loop = NewPeriodicRunner("reconcile", c.interval, func(ctx context.Context) error {
			report, ok := server.Reconcile(ctx)
			if !ok {
				log.Infof("reconcile: another run is in progress, skipping")
				return nil
			}
			if report.Outcome == service.OutcomeFatal {
				return fmt.Errorf("run failed: %s", report.Error)
			}
			return nil
		})
		if err := loop.Start(context.Background()); err != nil {
			return err
		}
		log.Infof("Reconciling every %v", c.interval)
	}

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case runErr = <-serverErrors:
	case sig := <-shutdown:
		log.Infof("Received signal %v, shutting down server...", sig)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Stop(ctx); err != nil {
			log.Errorf("Server shutdown error: %v", err)
		}
	}

	if loop != nil {
		if err := loop.Stop(); err != nil {
			log.Errorf("Failed to stop reconcile loop: %v", err)
		}
	}

	return runErr
}
