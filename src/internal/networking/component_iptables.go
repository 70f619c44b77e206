package networking

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/coreos/go-iptables/iptables"
	"github.com/valyala/fasttemplate"

	"github.com/wpsim/hairpin/src/internal/config"
	"github.com/wpsim/hairpin/src/internal/log"
)

// IPTables is the subset of *iptables.IPTables used by the proxy port guard.
type IPTables interface {
	Exists(table, chain string, rulespec ...string) (bool, error)
	Append(table, chain string, rulespec ...string) error
	Delete(table, chain string, rulespec ...string) error
}

// NewIPTables returns an IPv4 iptables client.
func NewIPTables() (*iptables.IPTables, error) {
	return iptables.NewWithProtocol(iptables.ProtocolIPv4)
}

// IPTablesRuleComponent is one rendered guard rule restricting who may reach
// the per-identity proxy ports.
type IPTablesRuleComponent struct {
	ComponentBase
	ipt     IPTables
	rule    *config.IPTablesRule
	enabled bool
}

// NewGuardComponents renders the configured guard rules for the port range of the pool.
func NewGuardComponents(ipt IPTables, cfg *config.Config) []*IPTablesRuleComponent {
	guard := cfg.Proxy.Guard
	vars := map[string]interface{}{
		config.TMPL_PORT_FIRST:      strconv.Itoa(cfg.ProxyPort(1)),
		config.TMPL_PORT_LAST:       strconv.Itoa(cfg.ProxyPort(cfg.Pool.Size)),
		config.TMPL_ALLOWED_SOURCES: guard.AllowedSources,
		config.TMPL_LISTEN_HOST:     cfg.Proxy.ListenHost,
	}

	var components []*IPTablesRuleComponent
	for _, rule := range guard.IPTablesRules {
		rendered := &config.IPTablesRule{
			Table: processRulePart(rule.Table, vars),
			Chain: processRulePart(rule.Chain, vars),
		}
		for _, part := range rule.Rule {
			rendered.Rule = append(rendered.Rule, processRulePart(part, vars))
		}

		components = append(components, &IPTablesRuleComponent{
			ComponentBase: ComponentBase{
				componentType: ComponentTypeIPTables,
				description:   "IPTables rule keeps the identity proxy ports reachable only from allowed sources",
			},
			ipt:     ipt,
			rule:    rendered,
			enabled: guard.Enabled,
		})
	}
	return components
}

func processRulePart(template string, vars map[string]interface{}) string {
	if !strings.Contains(template, "{{") {
		return template
	}

	t := fasttemplate.New(template, "{{", "}}")
	return t.ExecuteString(vars)
}

func (c *IPTablesRuleComponent) IsExists() (bool, error) {
	exists, err := c.ipt.Exists(c.rule.Table, c.rule.Chain, c.rule.Rule...)
	if err != nil {
		return false, fmt.Errorf("failed to check iptables rule [%v]: %w", c, err)
	}
	return exists, nil
}

func (c *IPTablesRuleComponent) ShouldExist() bool {
	return c.enabled
}

func (c *IPTablesRuleComponent) Conflict() (string, error) {
	return "", nil
}

func (c *IPTablesRuleComponent) CreateIfNotExists() error {
	exists, err := c.IsExists()
	if err != nil || exists {
		return err
	}

	log.Infof("Adding iptables rule [%v]", c)
	if err := c.ipt.Append(c.rule.Table, c.rule.Chain, c.rule.Rule...); err != nil {
		return fmt.Errorf("failed to add iptables rule [%v]: %w", c, err)
	}
	return nil
}

func (c *IPTablesRuleComponent) DeleteIfExists() error {
	exists, err := c.IsExists()
	if err != nil || !exists {
		return err
	}

	log.Infof("Deleting iptables rule [%v]", c)
	if err := c.ipt.Delete(c.rule.Table, c.rule.Chain, c.rule.Rule...); err != nil {
		return fmt.Errorf("failed to delete iptables rule [%v]: %w", c, err)
	}
	return nil
}

func (c *IPTablesRuleComponent) GetCommand() string {
	return fmt.Sprintf("iptables -t %s -A %s %s", c.rule.Table, c.rule.Chain, strings.Join(c.rule.Rule, " "))
}

func (c *IPTablesRuleComponent) String() string {
	return fmt.Sprintf("%s/%s %s", c.rule.Table, c.rule.Chain, strings.Join(c.rule.Rule, " "))
}

func (c *IPTablesRuleComponent) GetRule() *config.IPTablesRule {
	return c.rule
}
