package identity

import (
	"context"
	"fmt"
	"net"

	"github.com/vishvananda/netlink"
	"golang.org/x/sync/errgroup"

	"github.com/wpsim/hairpin/src/internal/config"
	"github.com/wpsim/hairpin/src/internal/errors"
	"github.com/wpsim/hairpin/src/internal/lease"
	"github.com/wpsim/hairpin/src/internal/log"
	"github.com/wpsim/hairpin/src/internal/networking"
	"github.com/wpsim/hairpin/src/internal/utils"
)

var macvlanModes = map[string]netlink.MacvlanMode{
	"bridge":   netlink.MACVLAN_MODE_BRIDGE,
	"vepa":     netlink.MACVLAN_MODE_VEPA,
	"private":  netlink.MACVLAN_MODE_PRIVATE,
	"passthru": netlink.MACVLAN_MODE_PASSTHRU,
}

// Provisioner converges the identity pool on the uplink.
type Provisioner struct {
	h      networking.Handle
	leaser lease.Client
	cfg    *config.Config
	subnet *net.IPNet
	mac    []byte
}

// NewProvisioner creates a provisioner. leaser may be nil for read-only use
// (Discover, Teardown).
func NewProvisioner(h networking.Handle, leaser lease.Client, cfg *config.Config) (*Provisioner, error) {
	subnet, err := cfg.SubnetNet()
	if err != nil {
		return nil, err
	}

	var mac []byte
	if cfg.Pool.MACPrefix != "" {
		if mac, err = config.ParseMACPrefix(cfg.Pool.MACPrefix); err != nil {
			return nil, err
		}
	}

	return &Provisioner{h: h, leaser: leaser, cfg: cfg, subnet: subnet, mac: mac}, nil
}

// Provision ensures identities 1..N exist, are up and hold an address.
//
// Identities are provisioned concurrently; the result is ordered by index.
// A degraded identity never stops the others. The returned error is always
// a fatal one: missing uplink or insufficient privilege.
func (p *Provisioner) Provision(ctx context.Context) ([]Identity, error) {
	uplink, err := networking.FindUplink(p.h, p.cfg.Pool.Uplink)
	if err != nil {
		return nil, err
	}

	log.Infof("Provisioning %d identities on %s...", p.cfg.Pool.Size, uplink.Name())

	identities := make([]Identity, p.cfg.Pool.Size)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Pool.Parallelism)

	for _, index := range p.cfg.Indexes() {
		g.Go(func() error {
			// A fatal error elsewhere stops the identities not started yet.
			if gctx.Err() != nil {
				return nil
			}
			id, err := p.provisionOne(gctx, uplink, index)
			identities[index-1] = id
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return started(identities), err
	}
	return identities, nil
}

// started drops the entries of identities that were never provisioned.
func started(identities []Identity) []Identity {
	var out []Identity
	for _, id := range identities {
		if id.Index != 0 {
			out = append(out, id)
		}
	}
	return out
}

func (p *Provisioner) provisionOne(ctx context.Context, uplink *networking.Interface, index int) (Identity, error) {
	logger := log.ForIdentity(index)
	id := Identity{Index: index, InterfaceName: p.cfg.InterfaceName(index)}

	iface, created, err := p.ensureLink(uplink, id.InterfaceName, index)
	if err != nil {
		if errors.IsFatal(err) {
			return id, err
		}
		logger.Errorf("%v", err)
		id.degrade(ReasonInterface, err)
		return id, nil
	}
	id.Interface = iface
	id.Created = created

	if !iface.IsUp() {
		if err := p.h.LinkSetUp(iface.Link); err != nil {
			if err := networking.FatalIfPermission(err, "set "+id.InterfaceName+" up"); errors.IsFatal(err) {
				return id, err
			}
			logger.Errorf("Failed to set %s up: %v", id.InterfaceName, err)
			id.degrade(ReasonInterface, errors.NewDegradedError("failed to set "+id.InterfaceName+" up", err))
			return id, nil
		}
		iface.Attrs().Flags |= net.FlagUp
		id.RaisedUp = true
	}

	addrs, err := iface.IPv4Addrs(p.h)
	if err != nil {
		id.degrade(ReasonInterface, errors.NewDegradedError("failed to read addresses", err))
		return id, nil
	}
	if ip := utils.FirstIPv4In(addrs, p.subnet); ip != nil {
		logger.Debugf("Adopting existing address %s on %s", ip, id.InterfaceName)
		id.Address = ip
		return id, nil
	}

	if p.leaser == nil {
		id.degrade(ReasonNoLease, errors.NewDegradedError("no lease client configured", nil))
		return id, nil
	}

	leaseCtx, cancel := context.WithTimeout(ctx, p.cfg.LeaseTimeout())
	defer cancel()

	ip, err := p.leaser.Acquire(leaseCtx, id.InterfaceName, index)
	if err == nil && !p.subnet.Contains(ip) {
		err = fmt.Errorf("leased address %s is outside %s", ip, p.subnet)
	}
	if err != nil {
		logger.Warnf("No lease on %s: %v", id.InterfaceName, err)
		id.degrade(ReasonNoLease, errors.NewDegradedError("lease failed on "+id.InterfaceName, err))
		return id, nil
	}

	id.Address = ip.To4()
	id.Leased = true
	return id, nil
}

// ensureLink returns the identity interface, creating it when missing. An
// existing link that is not a macvlan child of the uplink is never touched.
func (p *Provisioner) ensureLink(uplink *networking.Interface, name string, index int) (*networking.Interface, bool, error) {
	iface, err := networking.GetInterface(p.h, name)
	if err == nil {
		if !iface.IsMacvlanOf(uplink.Index()) {
			return nil, false, errors.NewDegradedError(fmt.Sprintf("%s exists but is not a macvlan of %s: %v", name, uplink.Name(), iface), nil)
		}
		return iface, false, nil
	}
	if !networking.IsLinkNotFound(err) {
		return nil, false, errors.NewDegradedError("failed to read "+name, err)
	}

	link := &netlink.Macvlan{
		LinkAttrs: netlink.LinkAttrs{
			Name:        name,
			ParentIndex: uplink.Index(),
		},
		Mode: macvlanModes[p.cfg.Pool.MacvlanMode],
	}
	if p.mac != nil {
		link.HardwareAddr = utils.IdentityMAC(p.mac, index)
	}

	log.ForIdentity(index).Infof("Creating macvlan %s on %s", name, uplink.Name())
	created := true
	if err := p.h.LinkAdd(link); err != nil {
		switch {
		case networking.IsPermissionError(err):
			return nil, false, networking.FatalIfPermission(err, "create "+name)
		case networking.IsExistError(err):
			log.ForIdentity(index).Warnf("%s appeared concurrently, re-reading it", name)
			created = false
		default:
			return nil, false, errors.NewDegradedError("failed to create "+name, err)
		}
	}

	iface, err = networking.GetInterface(p.h, name)
	if err != nil {
		return nil, false, errors.NewDegradedError("failed to read "+name+" after creation", err)
	}
	if !iface.IsMacvlanOf(uplink.Index()) {
		return nil, false, errors.NewDegradedError(fmt.Sprintf("%s is not a macvlan of %s: %v", name, uplink.Name(), iface), nil)
	}
	return iface, created, nil
}

// Discover rebuilds the pool from the kernel without mutating anything or
// requesting leases.
func (p *Provisioner) Discover() ([]Identity, error) {
	uplink, err := networking.FindUplink(p.h, p.cfg.Pool.Uplink)
	if err != nil {
		return nil, err
	}

	identities := make([]Identity, 0, p.cfg.Pool.Size)
	for _, index := range p.cfg.Indexes() {
		id := Identity{Index: index, InterfaceName: p.cfg.InterfaceName(index)}

		iface, err := networking.GetInterface(p.h, id.InterfaceName)
		switch {
		case networking.IsLinkNotFound(err):
			id.degrade(ReasonInterface, errors.NewDegradedError(id.InterfaceName+" does not exist", err))
		case err != nil:
			return nil, errors.NewNetworkError("failed to read "+id.InterfaceName, err)
		case !iface.IsMacvlanOf(uplink.Index()):
			id.degrade(ReasonInterface, errors.NewDegradedError(fmt.Sprintf("%s is not a macvlan of %s", id.InterfaceName, uplink.Name()), nil))
		default:
			id.Interface = iface
			addrs, err := iface.IPv4Addrs(p.h)
			if err != nil {
				return nil, errors.NewNetworkError("failed to read addresses of "+id.InterfaceName, err)
			}
			if id.Address = utils.FirstIPv4In(addrs, p.subnet); id.Address == nil {
				id.degrade(ReasonNoLease, errors.NewDegradedError(id.InterfaceName+" holds no address in "+p.subnet.String(), nil))
			}
		}

		identities = append(identities, id)
	}
	return identities, nil
}

// Teardown deletes the identity interfaces that are macvlan children of the
// uplink and returns how many were deleted. Links with a foreign owner stay.
func (p *Provisioner) Teardown() (int, error) {
	uplink, err := networking.GetInterface(p.h, p.cfg.Pool.Uplink)
	if err != nil {
		if networking.IsLinkNotFound(err) {
			log.Warnf("Uplink %s does not exist, its macvlan children are gone with it", p.cfg.Pool.Uplink)
			return 0, nil
		}
		return 0, err
	}

	deleted := 0
	for _, index := range p.cfg.Indexes() {
		name := p.cfg.InterfaceName(index)
		iface, err := networking.GetInterface(p.h, name)
		if err != nil {
			if networking.IsLinkNotFound(err) {
				continue
			}
			return deleted, err
		}
		if !iface.IsMacvlanOf(uplink.Index()) {
			log.ForIdentity(index).Warnf("%s is not a macvlan of %s, leaving it alone", name, uplink.Name())
			continue
		}

		log.ForIdentity(index).Infof("Deleting %s", name)
		if err := p.h.LinkDel(iface.Link); err != nil {
			return deleted, networking.FatalIfPermission(err, "delete "+name)
		}
		deleted++
	}
	return deleted, nil
}
