package domain

import (
	"github.com/wpsim/hairpin/src/internal/config"
	"github.com/wpsim/hairpin/src/internal/identity"
	"github.com/wpsim/hairpin/src/internal/lease"
	"github.com/wpsim/hairpin/src/internal/log"
	"github.com/wpsim/hairpin/src/internal/networking"
	"github.com/wpsim/hairpin/src/internal/proxy"
	"github.com/wpsim/hairpin/src/internal/shell"
)

// AppDependencies is a dependency injection container that holds all application dependencies.
//
// Every kernel access goes through one counting handle, so a run can report
// how many mutations it performed.
//
// Usage:
//
//	deps, err := domain.NewAppDependencies(cfg)
//	if err != nil {
//	    return err
//	}
//	networkMgr := deps.NetworkManager()
type AppDependencies struct {
	cfg    *config.Config
	handle *networking.CountingHandle

	networkManager NetworkManager
	provisioner    IdentityProvisioner
	proxyGenerator ProxyGenerator
}

// NewAppDependencies creates a new dependency container with production implementations:
// a netlink handle, the os/exec runner, the configured lease command and iptables.
func NewAppDependencies(cfg *config.Config) (*AppDependencies, error) {
	nl, err := networking.NewNetlinkHandle()
	if err != nil {
		return nil, err
	}

	// A nil *iptables.IPTables must not end up inside the interface.
	var ipt networking.IPTables
	if client, err := networking.NewIPTables(); err != nil {
		log.Warnf("iptables is not available: %v", err)
	} else {
		ipt = client
	}

	return newDependencies(cfg, nl, nil, shell.NewExecRunner(), ipt)
}

// NewTestDependencies creates a dependency container on top of the given
// kernel handle, lease client, command runner and iptables.
//
// A nil leaser selects the command-based lease client driven by runner.
func NewTestDependencies(
	cfg *config.Config,
	h networking.Handle,
	leaser lease.Client,
	runner shell.Runner,
	ipt networking.IPTables,
) (*AppDependencies, error) {
	return newDependencies(cfg, h, leaser, runner, ipt)
}

func newDependencies(
	cfg *config.Config,
	h networking.Handle,
	leaser lease.Client,
	runner shell.Runner,
	ipt networking.IPTables,
) (*AppDependencies, error) {
	handle := networking.NewCountingHandle(h)

	if leaser == nil {
		client, err := lease.NewDHCPClient(runner, handle, cfg)
		if err != nil {
			return nil, err
		}
		leaser = client
	}

	networkManager, err := networking.NewManager(handle, cfg, ipt)
	if err != nil {
		return nil, err
	}

	provisioner, err := identity.NewProvisioner(handle, leaser, cfg)
	if err != nil {
		return nil, err
	}

	return &AppDependencies{
		cfg:            cfg,
		handle:         handle,
		networkManager: networkManager,
		provisioner:    provisioner,
		proxyGenerator: proxy.NewGenerator(cfg, runner),
	}, nil
}

// Config returns the configuration the dependencies were built for.
func (d *AppDependencies) Config() *config.Config {
	return d.cfg
}

// NetworkManager returns the network configuration manager.
func (d *AppDependencies) NetworkManager() NetworkManager {
	return d.networkManager
}

// Provisioner returns the identity provisioner.
func (d *AppDependencies) Provisioner() IdentityProvisioner {
	return d.provisioner
}

// ProxyGenerator returns the proxy binding generator.
func (d *AppDependencies) ProxyGenerator() ProxyGenerator {
	return d.proxyGenerator
}

// Mutations returns the number of kernel mutations performed so far.
func (d *AppDependencies) Mutations() int {
	return d.handle.Mutations()
}
