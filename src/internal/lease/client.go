package lease

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/vishvananda/netlink"

	"github.com/wpsim/hairpin/src/internal/config"
	"github.com/wpsim/hairpin/src/internal/log"
	"github.com/wpsim/hairpin/src/internal/shell"
	"github.com/wpsim/hairpin/src/internal/utils"
)

// ErrLeaseTimeout is returned when no address appeared before the deadline.
var ErrLeaseTimeout = errors.New("lease timed out")

// Client requests an address for one identity interface.
type Client interface {
	Acquire(ctx context.Context, iface string, index int) (net.IP, error)
}

// AddrSource reads interface addresses. Implemented by networking.Handle.
type AddrSource interface {
	LinkByName(name string) (netlink.Link, error)
	AddrList(link netlink.Link, family int) ([]netlink.Addr, error)
}

// DHCPClient starts the configured lease command and waits for the address.
type DHCPClient struct {
	runner       shell.Runner
	addrs        AddrSource
	command      []string
	subnet       *net.IPNet
	pollInterval time.Duration
}

func NewDHCPClient(runner shell.Runner, addrs AddrSource, cfg *config.Config) (*DHCPClient, error) {
	subnet, err := cfg.SubnetNet()
	if err != nil {
		return nil, err
	}

	return &DHCPClient{
		runner:       runner,
		addrs:        addrs,
		command:      cfg.Lease.Command,
		subnet:       subnet,
		pollInterval: cfg.LeasePollInterval(),
	}, nil
}

// Acquire runs the lease command for iface and polls the interface until it
// holds an IPv4 address inside the LAN subnet. The wait is bounded by ctx.
func (c *DHCPClient) Acquire(ctx context.Context, iface string, index int) (net.IP, error) {
	argv := shell.Render(c.command, map[string]interface{}{
		config.TMPL_IFACE: iface,
		config.TMPL_INDEX: fmt.Sprintf("%d", index),
	})

	log.ForIdentity(index).Debugf("Requesting lease on %s", iface)
	if _, err := c.runner.Run(ctx, argv); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w on %s: %w", ErrLeaseTimeout, iface, ctx.Err())
		}
		return nil, fmt.Errorf("lease command failed on %s: %w", iface, err)
	}

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		ip, err := c.leased(iface)
		if err != nil {
			return nil, err
		}
		if ip != nil {
			log.ForIdentity(index).Infof("Leased %s on %s", ip, iface)
			return ip, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w on %s: %w", ErrLeaseTimeout, iface, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *DHCPClient) leased(iface string) (net.IP, error) {
	link, err := c.addrs.LinkByName(iface)
	if err != nil {
		return nil, fmt.Errorf("failed to read interface %s: %w", iface, err)
	}

	addrs, err := c.addrs.AddrList(link, netlink.FAMILY_V4)
	if err != nil {
		return nil, fmt.Errorf("failed to list addresses of %s: %w", iface, err)
	}

	ips := make([]net.IP, 0, len(addrs))
	for _, a := range addrs {
		if a.IPNet != nil {
			ips = append(ips, a.IP)
		}
	}
	return utils.FirstIPv4In(ips, c.subnet), nil
}
