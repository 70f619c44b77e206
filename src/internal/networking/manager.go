package networking

import (
	"fmt"

	"github.com/wpsim/hairpin/src/internal/config"
	"github.com/wpsim/hairpin/src/internal/log"
)

// Manager is the main facade for hairpin kernel configuration.
//
// It orchestrates the host-wide pieces (local rule placement, proxy port
// guard) and the per-identity routing installed by the HairpinEngine.
type Manager struct {
	cfg      *config.Config
	adjuster *LocalRuleAdjuster
	engine   *HairpinEngine
	ipt      IPTables
}

// NewManager creates a new network configuration manager.
//
// The ipt parameter can be nil when iptables is not available; the proxy
// port guard is then skipped with a warning.
func NewManager(h Handle, cfg *config.Config, ipt IPTables) (*Manager, error) {
	engine, err := NewHairpinEngine(h, cfg)
	if err != nil {
		return nil, err
	}

	return &Manager{
		cfg:      cfg,
		adjuster: NewLocalRuleAdjuster(h, cfg.Routing.LocalPriority),
		engine:   engine,
		ipt:      ipt,
	}, nil
}

// AdjustLocalRule demotes the local delivery rule. Must complete before any
// selector is installed.
func (m *Manager) AdjustLocalRule() (bool, error) {
	return m.adjuster.Adjust()
}

// InstallRouting converges every target and returns one result per target,
// in the order given. A failing identity never stops the others.
func (m *Manager) InstallRouting(targets []HairpinTarget) []HairpinResult {
	log.Infof("Installing hairpin routing for %d identities...", len(targets))

	results := make([]HairpinResult, len(targets))
	for i, t := range targets {
		results[i] = m.engine.Install(t)
	}
	return results
}

// CheckRouting reports the routing state of every target without mutating anything.
func (m *Manager) CheckRouting(targets []HairpinTarget) []HairpinResult {
	results := make([]HairpinResult, len(targets))
	for i, t := range targets {
		results[i] = m.engine.Check(t)
	}
	return results
}

// ApplyGuard installs the proxy port guard rules when the guard is enabled.
func (m *Manager) ApplyGuard() (bool, error) {
	if !m.cfg.Proxy.Guard.Enabled {
		return false, nil
	}
	if m.ipt == nil {
		log.Warnf("iptables is not available, proxy port guard is not installed")
		return false, nil
	}

	changed := false
	for _, component := range NewGuardComponents(m.ipt, m.cfg) {
		exists, err := component.IsExists()
		if err != nil {
			return changed, err
		}
		if exists {
			continue
		}
		if err := component.CreateIfNotExists(); err != nil {
			return changed, err
		}
		changed = true
	}
	return changed, nil
}

// HostComponents returns the host-wide components: the local rule and the guard rules.
func (m *Manager) HostComponents() []NetworkingComponent {
	components := []NetworkingComponent{NewLocalRuleComponent(m.adjuster)}
	if m.ipt != nil {
		for _, c := range NewGuardComponents(m.ipt, m.cfg) {
			components = append(components, c)
		}
	}
	return components
}

// IdentityComponents returns the routing components of one identity.
func (m *Manager) IdentityComponents(t HairpinTarget) []NetworkingComponent {
	return m.engine.Components(t)
}

// UndoConfig removes everything hairpin installed in the kernel for the given
// identity indexes: selectors, routing tables, guard rules, and puts the local
// rule back at priority 0. Links are left to the identity provisioner.
func (m *Manager) UndoConfig(indexes []int) error {
	log.Infof("Removing hairpin rules, routes and guard...")

	for _, index := range indexes {
		removed, err := m.engine.Remove(index)
		if err != nil {
			return fmt.Errorf("failed to remove routing of identity %d: %w", index, err)
		}
		if removed > 0 {
			log.ForIdentity(index).Infof("Removed %d rules and routes", removed)
		}
	}

	if m.ipt != nil {
		for _, component := range NewGuardComponents(m.ipt, m.cfg) {
			if err := component.DeleteIfExists(); err != nil {
				return err
			}
		}
	}

	if _, err := m.adjuster.Restore(); err != nil {
		return err
	}

	log.Infof("Undo routing completed successfully")
	return nil
}
