package networking

import (
	"fmt"
	"net"
	"testing"

	"github.com/vishvananda/netlink"

	"github.com/wpsim/hairpin/src/internal/config"
	"github.com/wpsim/hairpin/src/internal/mocks"
)

const scenarioTOML = `
[pool]
uplink = "up0"
size = 3

[routing]
subnet = "10.0.0.0/24"
gateway = "10.0.0.1"

[proxy]
config_path = "/tmp/hairpin-test.conf"
`

func scenarioConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.ParseConfig([]byte(scenarioTOML))
	if err != nil {
		t.Fatalf("ParseConfig failed: %v", err)
	}
	return cfg
}

// scenarioKernel builds up0 with macvlan children hp1..hp3 holding 10.0.0.11..13.
func scenarioKernel(t *testing.T) (*mocks.Kernel, []HairpinTarget) {
	t.Helper()

	kernel := mocks.NewKernel()
	uplink := kernel.AddUplink("up0")

	var targets []HairpinTarget
	for i := 1; i <= 3; i++ {
		name := fmt.Sprintf("hp%d", i)
		kernel.AddLink(&netlink.Macvlan{
			LinkAttrs: netlink.LinkAttrs{Name: name, ParentIndex: uplink, Flags: net.FlagUp},
			Mode:      netlink.MACVLAN_MODE_BRIDGE,
		})
		if err := kernel.AssignAddr(name, fmt.Sprintf("10.0.0.1%d/24", i)); err != nil {
			t.Fatalf("AssignAddr failed: %v", err)
		}

		iface, err := GetInterface(kernel, name)
		if err != nil {
			t.Fatalf("GetInterface failed: %v", err)
		}
		targets = append(targets, HairpinTarget{
			Index:     i,
			Interface: iface,
			Address:   net.ParseIP(fmt.Sprintf("10.0.0.1%d", i)).To4(),
		})
	}

	return kernel, targets
}

func mustCIDR(t *testing.T, s string) *net.IPNet {
	t.Helper()
	ip, n, err := net.ParseCIDR(s)
	if err != nil {
		t.Fatalf("ParseCIDR(%s): %v", s, err)
	}
	if ones, bits := n.Mask.Size(); ones == bits {
		n.IP = ip
	}
	return n
}

func findRule(rules []netlink.Rule, priority int) *netlink.Rule {
	for i := range rules {
		if rules[i].Priority == priority {
			return &rules[i]
		}
	}
	return nil
}
