package networking

import (
	"fmt"
	"net"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"

	"github.com/wpsim/hairpin/src/internal/log"
	"github.com/wpsim/hairpin/src/internal/utils"
)

type IpRule struct {
	*netlink.Rule
	h Handle
}

func (r *IpRule) String() string {
	return describeRule(r.Rule)
}

func describeRule(r *netlink.Rule) string {
	from := "all"
	if r.Src != nil {
		from = r.Src.String()
	}

	table := fmt.Sprintf("%d", r.Table)
	if r.Table == unix.RT_TABLE_LOCAL {
		table = "local"
	}

	return fmt.Sprintf("rule %d: from %s lookup %s", r.Priority, from, table)
}

// BuildSelectorRule builds "from <addr>/32 lookup <table>" at priority.
func BuildSelectorRule(h Handle, addr net.IP, table int, priority int) *IpRule {
	ipr := netlink.NewRule()

	ipr.Family = netlink.FAMILY_V4
	ipr.Src = utils.HostNet(addr)
	ipr.Table = table
	ipr.Priority = priority
	return &IpRule{ipr, h}
}

// BuildLocalRule builds "from all lookup local" at priority.
func BuildLocalRule(h Handle, priority int) *IpRule {
	ipr := netlink.NewRule()

	ipr.Family = netlink.FAMILY_V4
	ipr.Table = unix.RT_TABLE_LOCAL
	ipr.Priority = priority
	return &IpRule{ipr, h}
}

// ListRules returns every IPv4 policy rule.
func ListRules(h Handle) ([]*IpRule, error) {
	rules, err := h.RuleList(netlink.FAMILY_V4)
	if err != nil {
		log.Warnf("Failed to list IP rules: %v", err)
		return nil, err
	}

	ipRules := make([]*IpRule, 0, len(rules))
	for _, rule := range rules {
		copiedRule := rule
		ipRules = append(ipRules, &IpRule{&copiedRule, h})
	}
	return ipRules, nil
}

// Matches reports whether other has the same priority, table and source.
func (ipr *IpRule) Matches(other *netlink.Rule) bool {
	return ipr.Priority == other.Priority && ipr.Table == other.Table && sameSource(ipr.Src, other.Src)
}

func sameSource(a, b *net.IPNet) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return utils.SameNet(a, b)
}

func (ipr *IpRule) Add() error {
	log.Debugf("Adding IP rule [%v]", ipr)
	if err := ipr.h.RuleAdd(ipr.Rule); err != nil {
		log.Warnf("Failed to add IP rule [%v]: %v", ipr, err)
		return err
	}

	return nil
}

func (ipr *IpRule) AddIfNotExists() (bool, error) {
	if exists, err := ipr.IsExists(); err != nil {
		return false, err
	} else if exists {
		return false, nil
	}

	if err := ipr.Add(); err != nil {
		return false, err
	}
	return true, nil
}

func (ipr *IpRule) IsExists() (bool, error) {
	rules, err := ipr.h.RuleList(netlink.FAMILY_V4)
	if err != nil {
		log.Warnf("Checking if IP rule exists [%v] is failed: %v", ipr, err)
		return false, err
	}

	for i := range rules {
		if ipr.Matches(&rules[i]) {
			log.Debugf("Checking if IP rule exists [%v]: YES", ipr)
			return true, nil
		}
	}

	log.Debugf("Checking if IP rule exists [%v]: NO", ipr)
	return false, nil
}

func (ipr *IpRule) Del() error {
	log.Debugf("Deleting IP rule [%v]", ipr)
	if err := ipr.h.RuleDel(ipr.Rule); err != nil {
		log.Warnf("Failed to delete IP rule [%v]: %v", ipr, err)
		return err
	}

	return nil
}

func (ipr *IpRule) DelIfExists() (bool, error) {
	if exists, err := ipr.IsExists(); err != nil {
		return false, err
	} else if !exists {
		return false, nil
	}

	if err := ipr.Del(); err != nil {
		return false, err
	}
	return true, nil
}
