package networking

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/wpsim/hairpin/src/internal/log"
)

// LocalRuleState is the observed placement of the "lookup local" rules.
type LocalRuleState struct {
	// Demoted is true when a local rule exists at the demoted priority.
	Demoted bool
	// Intercepting are local rules consulted before the demoted priority.
	Intercepting []*IpRule
}

// Converged reports whether local delivery is consulted only at the demoted priority.
func (s LocalRuleState) Converged() bool {
	return s.Demoted && len(s.Intercepting) == 0
}

// LocalRuleAdjuster moves the kernel "lookup local" rule from priority 0 to a
// priority below every identity selector, so the selectors are consulted
// before local delivery can short-circuit same-host traffic.
type LocalRuleAdjuster struct {
	h        Handle
	priority int
}

func NewLocalRuleAdjuster(h Handle, priority int) *LocalRuleAdjuster {
	return &LocalRuleAdjuster{h: h, priority: priority}
}

func (a *LocalRuleAdjuster) Priority() int {
	return a.priority
}

func (a *LocalRuleAdjuster) Observe() (LocalRuleState, error) {
	rules, err := ListRules(a.h)
	if err != nil {
		return LocalRuleState{}, err
	}

	var state LocalRuleState
	for _, r := range rules {
		if r.Table != unix.RT_TABLE_LOCAL || r.Src != nil {
			continue
		}
		switch {
		case r.Priority == a.priority:
			state.Demoted = true
		case r.Priority < a.priority:
			state.Intercepting = append(state.Intercepting, r)
		}
	}
	return state, nil
}

// Adjust demotes the local rule. The demoted rule is added before the old ones
// are deleted, so the host always has a local rule. Returns false when
// nothing had to change.
func (a *LocalRuleAdjuster) Adjust() (bool, error) {
	state, err := a.Observe()
	if err != nil {
		return false, err
	}
	if state.Converged() {
		log.Debugf("Local rule is already at priority %d", a.priority)
		return false, nil
	}

	if !state.Demoted {
		if err := BuildLocalRule(a.h, a.priority).Add(); err != nil && !IsExistError(err) {
			return false, fmt.Errorf("failed to add local rule at priority %d: %w", a.priority, err)
		}
	}

	for _, r := range state.Intercepting {
		if err := r.Del(); err != nil {
			return true, fmt.Errorf("failed to delete [%v]: %w", r, err)
		}
	}

	log.Infof("Local rule demoted to priority %d", a.priority)
	return true, nil
}

// Restore puts the local rule back at priority 0 and removes the demoted one.
func (a *LocalRuleAdjuster) Restore() (bool, error) {
	original := BuildLocalRule(a.h, 0)
	added, err := original.AddIfNotExists()
	if err != nil {
		return false, fmt.Errorf("failed to restore local rule at priority 0: %w", err)
	}

	if a.priority == 0 {
		return added, nil
	}

	deleted, err := BuildLocalRule(a.h, a.priority).DelIfExists()
	if err != nil {
		return added, fmt.Errorf("failed to delete local rule at priority %d: %w", a.priority, err)
	}
	return added || deleted, nil
}

// LocalRuleComponent exposes the adjuster as a host-wide networking component.
type LocalRuleComponent struct {
	ComponentBase
	adjuster *LocalRuleAdjuster
}

func NewLocalRuleComponent(adjuster *LocalRuleAdjuster) *LocalRuleComponent {
	return &LocalRuleComponent{
		ComponentBase: ComponentBase{
			componentType: ComponentTypeLocalRule,
			description:   fmt.Sprintf("Local delivery rule must be consulted after the identity selectors (priority %d)", adjuster.priority),
		},
		adjuster: adjuster,
	}
}

func (c *LocalRuleComponent) IsExists() (bool, error) {
	state, err := c.adjuster.Observe()
	if err != nil {
		return false, err
	}
	return state.Converged(), nil
}

func (c *LocalRuleComponent) ShouldExist() bool {
	return true
}

func (c *LocalRuleComponent) Conflict() (string, error) {
	return "", nil
}

func (c *LocalRuleComponent) CreateIfNotExists() error {
	_, err := c.adjuster.Adjust()
	return err
}

func (c *LocalRuleComponent) DeleteIfExists() error {
	_, err := c.adjuster.Restore()
	return err
}

func (c *LocalRuleComponent) GetCommand() string {
	return fmt.Sprintf("ip rule add from all lookup local priority %d && ip rule del from all lookup local priority 0", c.adjuster.priority)
}
