// Package domain defines core interfaces for dependency injection and abstraction.
//
// This package contains the fundamental interfaces that enable loose coupling between
// components and facilitate testing through dependency injection.
package domain

import (
	"context"

	"github.com/wpsim/hairpin/src/internal/identity"
	"github.com/wpsim/hairpin/src/internal/networking"
	"github.com/wpsim/hairpin/src/internal/proxy"
)

// NetworkManager defines the interface for managing kernel routing state.
//
// This interface handles the local rule placement, the per-identity hairpin
// routing and the proxy port guard.
type NetworkManager interface {
	// AdjustLocalRule demotes the "lookup local" rule below the identity selectors.
	AdjustLocalRule() (bool, error)

	// InstallRouting converges the routing of every target. One result per target.
	InstallRouting(targets []networking.HairpinTarget) []networking.HairpinResult

	// CheckRouting reports the routing state of every target without mutating anything.
	CheckRouting(targets []networking.HairpinTarget) []networking.HairpinResult

	// ApplyGuard installs the proxy port guard rules when enabled.
	ApplyGuard() (bool, error)

	// HostComponents returns the host-wide components for self-checks.
	HostComponents() []networking.NetworkingComponent

	// IdentityComponents returns the routing components of one identity.
	IdentityComponents(t networking.HairpinTarget) []networking.NetworkingComponent

	// UndoConfig removes selectors, tables and guard rules, and restores the local rule.
	UndoConfig(indexes []int) error
}

// IdentityProvisioner manages the identity interfaces on the uplink.
type IdentityProvisioner interface {
	// Provision creates the missing identities and acquires their addresses.
	Provision(ctx context.Context) ([]identity.Identity, error)

	// Discover rebuilds the pool from live kernel state.
	Discover() ([]identity.Identity, error)

	// Teardown deletes the identity interfaces.
	Teardown() (int, error)
}

// ProxyGenerator writes the proxy binding table and reloads the proxy.
type ProxyGenerator interface {
	Apply(ctx context.Context, bindings []proxy.Binding) proxy.Result
}
