package identity

import (
	"fmt"
	"net"

	"github.com/wpsim/hairpin/src/internal/networking"
)

// Reason explains why an identity is degraded.
type Reason string

const (
	ReasonNone      Reason = ""
	ReasonNoLease   Reason = "degraded-no-lease"
	ReasonInterface Reason = "degraded-interface"
)

// Identity is one simulated client: a virtual interface on the uplink and the
// address it holds. Address is nil until a lease was obtained.
type Identity struct {
	Index         int
	InterfaceName string
	Interface     *networking.Interface
	Address       net.IP

	// Created, RaisedUp and Leased record the mutations of the current run.
	Created  bool
	RaisedUp bool
	Leased   bool

	Degraded Reason
	Err      error
}

func (i Identity) IsDegraded() bool {
	return i.Degraded != ReasonNone
}

// Changed reports whether provisioning mutated anything for this identity.
func (i Identity) Changed() bool {
	return i.Created || i.RaisedUp || i.Leased
}

// Target returns what the routing engine needs to converge this identity.
func (i Identity) Target() networking.HairpinTarget {
	return networking.HairpinTarget{
		Index:     i.Index,
		Interface: i.Interface,
		Address:   i.Address,
	}
}

func (i Identity) String() string {
	if i.IsDegraded() {
		return fmt.Sprintf("identity %d (%s): %s", i.Index, i.InterfaceName, i.Degraded)
	}
	return fmt.Sprintf("identity %d (%s): %s", i.Index, i.InterfaceName, i.Address)
}

func (i *Identity) degrade(reason Reason, err error) {
	i.Degraded = reason
	i.Err = err
}

// Usable returns the identities that hold an address, in index order.
func Usable(identities []Identity) []Identity {
	var usable []Identity
	for _, id := range identities {
		if !id.IsDegraded() && id.Address != nil {
			usable = append(usable, id)
		}
	}
	return usable
}

// Targets returns the routing targets of every identity, degraded ones included.
// The engine skips targets without an address.
func Targets(identities []Identity) []networking.HairpinTarget {
	targets := make([]networking.HairpinTarget, 0, len(identities))
	for _, id := range identities {
		if id.Degraded == ReasonInterface {
			continue
		}
		targets = append(targets, id.Target())
	}
	return targets
}
