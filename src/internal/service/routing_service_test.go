package service

import (
	"context"
	"net"
	"os"
	"strings"
	"testing"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"

	"github.com/wpsim/hairpin/src/internal/errors"
	"github.com/wpsim/hairpin/src/internal/proxy"
)

func rulePriority(rules []netlink.Rule, table int) int {
	for _, r := range rules {
		if r.Table == table {
			return r.Priority
		}
	}
	return -1
}

func TestRoutingService_Apply_Scenario(t *testing.T) {
	f := newFixture(t)

	report := f.svc.Apply(context.Background())
	if report.Outcome != OutcomeSuccess || report.ExitCode() != ExitSuccess {
		t.Fatalf("Expected success, got %s: %s", report.Outcome, report.Error)
	}

	expected := []struct {
		address  string
		endpoint string
		table    int
		priority int
	}{
		{"10.0.0.11", "127.0.0.1:40001", 1001, 100},
		{"10.0.0.12", "127.0.0.1:40002", 1002, 101},
		{"10.0.0.13", "127.0.0.1:40003", 1003, 102},
	}

	rules := f.kernel.Rules()
	for i, e := range expected {
		ir := report.Identities[i]
		if ir.Status != StatusProvisioned || ir.Address != e.address || ir.Endpoint != e.endpoint {
			t.Errorf("Identity %d: %+v", i+1, ir)
		}
		if ir.Routing != "converged" {
			t.Errorf("Identity %d routing is %s", i+1, ir.Routing)
		}
		if got := rulePriority(rules, e.table); got != e.priority {
			t.Errorf("Selector for table %d at priority %d, want %d", e.table, got, e.priority)
		}
		if routes := f.kernel.Routes(e.table); len(routes) != 2 {
			t.Errorf("Expected subnet and default route in table %d, got %d", e.table, len(routes))
		}
	}

	if got := rulePriority(rules, unix.RT_TABLE_LOCAL); got != 1000 {
		t.Errorf("Expected local rule at 1000, got %d", got)
	}
	if !report.LocalRuleChanged {
		t.Error("Expected the local rule change to be reported")
	}
	if report.Proxy == nil || report.Proxy.Status != proxy.StatusReloaded {
		t.Errorf("Expected the proxy to be reloaded, got %+v", report.Proxy)
	}
	if report.Mutations == 0 {
		t.Error("Expected mutations to be reported")
	}
}

func TestRoutingService_Apply_Idempotent(t *testing.T) {
	f := newFixture(t)

	if report := f.svc.Apply(context.Background()); report.Outcome != OutcomeSuccess {
		t.Fatalf("First run failed: %s", report.Error)
	}
	f.kernel.ResetMutations()
	reloads := f.runner.CallCount()
	leases := f.leaser.RequestCount()

	f.rebuild(t)
	report := f.svc.Apply(context.Background())

	if report.Outcome != OutcomeSuccess {
		t.Fatalf("Second run failed: %s", report.Error)
	}
	if report.Mutations != 0 || f.kernel.Mutations() != 0 {
		t.Errorf("Expected zero mutations, got %d (kernel %d)", report.Mutations, f.kernel.Mutations())
	}
	for _, ir := range report.Identities {
		if ir.Status != StatusAlreadyConverged {
			t.Errorf("Identity %d: expected already-converged, got %s", ir.Index, ir.Status)
		}
	}
	if report.Proxy.Status != proxy.StatusUnchanged || f.runner.CallCount() != reloads {
		t.Errorf("Expected no proxy reload, got %s", report.Proxy.Status)
	}
	if f.leaser.RequestCount() != leases {
		t.Error("Expected no lease requests on the second run")
	}
}

func TestRoutingService_Apply_LeaseTimeout(t *testing.T) {
	f := newFixture(t)
	delete(f.leaser.Offers, 2)

	report := f.svc.Apply(context.Background())
	if report.Outcome != OutcomePartial || report.ExitCode() != ExitPartial {
		t.Fatalf("Expected partial, got %s", report.Outcome)
	}

	statuses := []IdentityStatus{StatusProvisioned, StatusDegradedNoLease, StatusProvisioned}
	for i, s := range statuses {
		if report.Identities[i].Status != s {
			t.Errorf("Identity %d: expected %s, got %s", i+1, s, report.Identities[i].Status)
		}
	}

	if rulePriority(f.kernel.Rules(), 1002) != -1 || len(f.kernel.Routes(1002)) != 0 {
		t.Error("No selector or route may exist for the identity without an address")
	}
	if report.Identities[2].Endpoint != "127.0.0.1:40003" {
		t.Errorf("Identity 3 must keep its port, got %s", report.Identities[2].Endpoint)
	}

	data, err := os.ReadFile(f.cfg.Proxy.ConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "identity2") || !strings.Contains(string(data), "http_port 127.0.0.1:40003 name=identity3") {
		t.Errorf("Unexpected proxy config:\n%s", data)
	}
}

func TestRoutingService_Apply_Conflict(t *testing.T) {
	f := newFixture(t)
	_, foreign, _ := net.ParseCIDR("192.168.9.9/32")
	f.kernel.AddRule(netlink.Rule{Priority: 101, Table: 77, Src: foreign, Family: netlink.FAMILY_V4})

	report := f.svc.Apply(context.Background())
	if report.Outcome != OutcomePartial {
		t.Fatalf("Expected partial, got %s", report.Outcome)
	}
	if report.Identities[1].Status != StatusDegradedConflict || len(report.Identities[1].Conflicts) == 0 {
		t.Errorf("Expected identity 2 to be in conflict: %+v", report.Identities[1])
	}
	if report.Identities[2].Status != StatusProvisioned {
		t.Errorf("Identity 3 must not be affected: %+v", report.Identities[2])
	}
	if rulePriority(f.kernel.Rules(), 77) != 101 {
		t.Error("The foreign rule must not be overwritten")
	}
	if report.Identities[1].Endpoint != "" {
		t.Errorf("Identity 2 must not be exposed, got endpoint %s", report.Identities[1].Endpoint)
	}
	expectProxyIdentities(t, f, []string{"identity1", "identity3"}, []string{"identity2"})
}

func TestRoutingService_Provision_Conflict(t *testing.T) {
	f := newFixture(t)
	_, foreign, _ := net.ParseCIDR("192.168.9.9/32")
	f.kernel.AddRule(netlink.Rule{Priority: 101, Table: 77, Src: foreign, Family: netlink.FAMILY_V4})

	report := f.svc.Provision(context.Background())
	if report.Outcome != OutcomePartial {
		t.Fatalf("Expected partial, got %s", report.Outcome)
	}
	if report.Identities[1].Status != StatusDegradedConflict {
		t.Errorf("Expected identity 2 to be in conflict: %+v", report.Identities[1])
	}
	expectProxyIdentities(t, f, []string{"identity1", "identity3"}, []string{"identity2"})

	bindings, err := f.svc.Bindings()
	if err != nil {
		t.Fatalf("Bindings failed: %v", err)
	}
	for _, b := range bindings {
		if b.Index == 2 {
			t.Errorf("Bindings must skip the conflicting identity: %+v", b)
		}
	}
}

// expectProxyIdentities checks which proxy names the written configuration holds.
func expectProxyIdentities(t *testing.T, f *fixture, present, absent []string) {
	t.Helper()

	data, err := os.ReadFile(f.cfg.Proxy.ConfigPath)
	if err != nil {
		t.Fatalf("Failed to read proxy config: %v", err)
	}
	content := string(data)
	for _, name := range present {
		if !strings.Contains(content, "name="+name+"\n") {
			t.Errorf("Expected %s in the proxy config:\n%s", name, content)
		}
	}
	for _, name := range absent {
		if strings.Contains(content, "name="+name+"\n") {
			t.Errorf("Expected %s to be absent from the proxy config:\n%s", name, content)
		}
	}
}

func TestRoutingService_Fatal(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *fixture)
	}{
		{
			name: "missing uplink",
			setup: func(f *fixture) {
				f.cfg.Pool.Uplink = "up9"
			},
		},
		{
			name: "invalid configuration",
			setup: func(f *fixture) {
				f.cfg.Routing.LocalPriority = 50
			},
		},
		{
			name: "permission denied on rules",
			setup: func(f *fixture) {
				f.kernel.RuleAddFunc = func(rule *netlink.Rule) error { return unix.EPERM }
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setup(f)

			report := f.svc.Apply(context.Background())
			if report.Outcome != OutcomeFatal || report.ExitCode() != ExitFatal {
				t.Errorf("Expected fatal, got %s", report.Outcome)
			}
			if report.Err() == nil || report.Error == "" {
				t.Error("Expected the fatal error to be reported")
			}
		})
	}
}

func TestRoutingService_MissingUplinkMutatesNothing(t *testing.T) {
	f := newFixture(t)
	f.cfg.Pool.Uplink = "up9"

	report := f.svc.Apply(context.Background())
	if !errors.IsFatal(report.Err()) {
		t.Errorf("Expected a fatal configuration error, got %v", report.Err())
	}
	if f.kernel.Mutations() != 0 || len(f.kernel.Rules()) != 3 {
		t.Error("A fatal run must not mutate anything")
	}
}

func TestRoutingService_ProvisionThenRoute(t *testing.T) {
	f := newFixture(t)

	report := f.svc.Provision(context.Background())
	if report.Outcome != OutcomeSuccess {
		t.Fatalf("Provision failed: %s", report.Error)
	}
	for _, ir := range report.Identities {
		if ir.Routing != "unconfigured" {
			t.Errorf("Provision must not install routing, identity %d is %s", ir.Index, ir.Routing)
		}
	}

	f.rebuild(t)
	report = f.svc.Route(context.Background())
	if report.Outcome != OutcomeSuccess {
		t.Fatalf("Route failed: %s", report.Error)
	}
	for _, ir := range report.Identities {
		if ir.Routing != "converged" || ir.Status != StatusProvisioned {
			t.Errorf("Identity %d: %+v", ir.Index, ir)
		}
	}
}

func TestRoutingService_RouteWithoutPool(t *testing.T) {
	f := newFixture(t)

	report := f.svc.Route(context.Background())
	if report.Outcome != OutcomePartial {
		t.Fatalf("Expected partial, got %s", report.Outcome)
	}
	for _, ir := range report.Identities {
		if ir.Status != StatusDegradedInterface {
			t.Errorf("Identity %d: expected degraded-interface, got %s", ir.Index, ir.Status)
		}
	}
	if len(f.kernel.LinkNames()) != 2 {
		t.Error("Route must never create interfaces")
	}
}

func TestRoutingService_Teardown(t *testing.T) {
	f := newFixture(t)
	f.cfg.Proxy.Guard.Enabled = true

	if report := f.svc.Apply(context.Background()); report.Outcome != OutcomeSuccess {
		t.Fatalf("Apply failed: %s", report.Error)
	}
	if err := f.svc.Teardown(); err != nil {
		t.Fatalf("Teardown failed: %v", err)
	}

	rules := f.kernel.Rules()
	if len(rules) != 3 || rules[0].Priority != 0 || rules[0].Table != unix.RT_TABLE_LOCAL {
		t.Errorf("Expected the default rules back, got %v", rules)
	}
	if names := f.kernel.LinkNames(); len(names) != 2 {
		t.Errorf("Expected only lo and up0, got %v", names)
	}
	if len(f.ipt.Rules("filter", "INPUT")) != 0 {
		t.Error("Expected the guard rules to be removed")
	}
}

func TestRoutingService_ProxyConfig(t *testing.T) {
	f := newFixture(t)
	f.svc.Provision(context.Background())

	content, err := f.svc.ProxyConfig()
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(f.cfg.Proxy.ConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	if content != string(data) {
		t.Error("Rendered proxy config differs from the written one")
	}
}
