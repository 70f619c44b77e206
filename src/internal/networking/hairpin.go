package networking

import (
	"fmt"
	"net"
	"strings"

	"github.com/wpsim/hairpin/src/internal/config"
	"github.com/wpsim/hairpin/src/internal/errors"
	"github.com/wpsim/hairpin/src/internal/log"
)

// IdentityState is the routing progress of one identity. It only moves forward.
type IdentityState int

const (
	StateUnconfigured IdentityState = iota
	StateSelectorInstalled
	StateRouteInstalled
	StateConverged
)

func (s IdentityState) String() string {
	switch s {
	case StateSelectorInstalled:
		return "selector-installed"
	case StateRouteInstalled:
		return "route-installed"
	case StateConverged:
		return "converged"
	default:
		return "unconfigured"
	}
}

// HairpinTarget is what the engine needs to know about one identity.
type HairpinTarget struct {
	Index     int
	Interface *Interface
	Address   net.IP
}

// HairpinResult is the outcome of installing or checking one identity.
type HairpinResult struct {
	Index     int
	State     IdentityState
	Changed   bool
	Conflicts []string
	Err       error
}

// HairpinEngine installs, per identity, a routing table holding the LAN
// subnet route (and optionally a default route) through the identity
// interface, plus a source selector sending the identity address to it.
type HairpinEngine struct {
	h      Handle
	cfg    *config.Config
	subnet *net.IPNet
}

func NewHairpinEngine(h Handle, cfg *config.Config) (*HairpinEngine, error) {
	subnet, err := cfg.SubnetNet()
	if err != nil {
		return nil, err
	}
	return &HairpinEngine{h: h, cfg: cfg, subnet: subnet}, nil
}

// Components returns the selector, subnet route and default route of t, in install order.
func (e *HairpinEngine) Components(t HairpinTarget) []NetworkingComponent {
	table := e.cfg.TableID(t.Index)
	return []NetworkingComponent{
		NewSelectorComponent(e.h, t.Index, t.Address, table, e.cfg.SelectorPriority(t.Index), e.cfg.Routing.LocalPriority),
		NewSubnetRouteComponent(e.h, t.Index, e.subnet, t.Interface, t.Address, table),
		NewDefaultRouteComponent(e.h, t.Index, e.cfg.GatewayIP(), t.Interface, table, e.cfg.DefaultRouteEnabled()),
	}
}

// Install converges one identity. All conflicts are detected before the
// first mutation; an identity with a conflict is left untouched.
func (e *HairpinEngine) Install(t HairpinTarget) HairpinResult {
	logger := log.ForIdentity(t.Index)
	result := HairpinResult{Index: t.Index}

	if t.Address == nil || t.Interface == nil {
		logger.Warnf("Address is unknown, skipping routing installation")
		return result
	}

	components := e.Components(t)
	if result.Conflicts, result.Err = e.conflicts(components); result.Err != nil {
		return result
	}
	if len(result.Conflicts) > 0 {
		for _, c := range result.Conflicts {
			logger.Errorf("Conflict: %s", c)
		}
		result.State, _ = e.observedState(components)
		result.Err = errors.NewConflictError(
			fmt.Sprintf("identity %d needs manual reconciliation: %s", t.Index, strings.Join(result.Conflicts, "; ")), nil)
		return result
	}

	for _, component := range components {
		if component.ShouldExist() {
			exists, err := component.IsExists()
			if err != nil {
				result.Err = err
				return result
			}
			if !exists {
				logger.Infof("Installing %s: %s", component.GetType(), component.GetCommand())
				if err := component.CreateIfNotExists(); err != nil {
					result.Err = fmt.Errorf("failed to install %s of identity %d: %w", component.GetType(), t.Index, err)
					return result
				}
				result.Changed = true
			}
		}
		result.State++
	}

	if result.Changed {
		logger.Infof("Routing converged (table %d, selector priority %d)", e.cfg.TableID(t.Index), e.cfg.SelectorPriority(t.Index))
	} else {
		logger.Debugf("Routing already converged")
	}
	return result
}

// Check reports the state and conflicts of one identity without mutating anything.
func (e *HairpinEngine) Check(t HairpinTarget) HairpinResult {
	result := HairpinResult{Index: t.Index}
	if t.Address == nil || t.Interface == nil {
		return result
	}

	components := e.Components(t)
	if result.Conflicts, result.Err = e.conflicts(components); result.Err != nil {
		return result
	}
	result.State, result.Err = e.observedState(components)
	return result
}

// Remove deletes every rule pointing at the identity table and flushes the table.
// It does not need the identity address, so it also cleans up after lost links.
func (e *HairpinEngine) Remove(index int) (int, error) {
	table := e.cfg.TableID(index)
	removed := 0

	rules, err := ListRules(e.h)
	if err != nil {
		return 0, err
	}
	for _, r := range rules {
		if r.Table == table {
			if err := r.Del(); err != nil {
				return removed, err
			}
			removed++
		}
	}

	flushed, err := DelIpRouteTable(e.h, table)
	return removed + flushed, err
}

func (e *HairpinEngine) conflicts(components []NetworkingComponent) ([]string, error) {
	var conflicts []string
	for _, component := range components {
		if !component.ShouldExist() {
			continue
		}
		conflict, err := component.Conflict()
		if err != nil {
			return nil, err
		}
		if conflict != "" {
			conflicts = append(conflicts, conflict)
		}
	}
	return conflicts, nil
}

// observedState counts the leading components that are in place.
func (e *HairpinEngine) observedState(components []NetworkingComponent) (IdentityState, error) {
	state := StateUnconfigured
	for _, component := range components {
		if component.ShouldExist() {
			exists, err := component.IsExists()
			if err != nil {
				return state, err
			}
			if !exists {
				return state, nil
			}
		}
		state++
	}
	return state, nil
}
