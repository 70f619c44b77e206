package networking

import (
	"fmt"
	"net"

	"github.com/wpsim/hairpin/src/internal/utils"
)

// SelectorComponent is the "from A/32 lookup T" rule of one identity.
type SelectorComponent struct {
	ComponentBase
	rule          *IpRule
	address       net.IP
	localPriority int
}

func NewSelectorComponent(h Handle, identity int, address net.IP, table, priority, localPriority int) *SelectorComponent {
	rule := BuildSelectorRule(h, address, table, priority)
	return &SelectorComponent{
		ComponentBase: ComponentBase{
			identity:      identity,
			componentType: ComponentTypeSelector,
			description:   "Source selector sends traffic from the identity address to its routing table",
		},
		rule:          rule,
		address:       address,
		localPriority: localPriority,
	}
}

// IsExists accepts "from A lookup T" at any priority below the local rule.
func (c *SelectorComponent) IsExists() (bool, error) {
	rules, err := ListRules(c.rule.h)
	if err != nil {
		return false, err
	}
	for _, r := range rules {
		if c.owns(r) && r.Table == c.rule.Table && r.Priority < c.localPriority {
			return true, nil
		}
	}
	return false, nil
}

func (c *SelectorComponent) ShouldExist() bool {
	return c.address != nil
}

func (c *SelectorComponent) Conflict() (string, error) {
	rules, err := ListRules(c.rule.h)
	if err != nil {
		return "", err
	}

	for _, r := range rules {
		owned := c.owns(r)
		switch {
		case r.Priority == c.rule.Priority && !(owned && r.Table == c.rule.Table):
			return fmt.Sprintf("priority %d is taken by [%v]", c.rule.Priority, r), nil
		case owned && r.Table != c.rule.Table:
			return fmt.Sprintf("[%v] sends %s to table %d instead of %d", r, c.address, r.Table, c.rule.Table), nil
		case owned && r.Priority >= c.localPriority:
			return fmt.Sprintf("[%v] is not below the local rule at priority %d", r, c.localPriority), nil
		}
	}
	return "", nil
}

func (c *SelectorComponent) owns(r *IpRule) bool {
	return utils.IsHostNetOf(r.Src, c.address)
}

func (c *SelectorComponent) CreateIfNotExists() error {
	exists, err := c.IsExists()
	if err != nil || exists {
		return err
	}
	return c.rule.Add()
}

// DeleteIfExists removes every "from A lookup T" rule regardless of priority.
func (c *SelectorComponent) DeleteIfExists() error {
	rules, err := ListRules(c.rule.h)
	if err != nil {
		return err
	}
	for _, r := range rules {
		if c.owns(r) && r.Table == c.rule.Table {
			if err := r.Del(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *SelectorComponent) GetCommand() string {
	return fmt.Sprintf("ip rule add from %s lookup %d priority %d", c.rule.Src, c.rule.Table, c.rule.Priority)
}
