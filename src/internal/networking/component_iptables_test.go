package networking

import (
	"strings"
	"testing"

	"github.com/wpsim/hairpin/src/internal/mocks"
)

func TestProcessRulePart_TemplateSubstitution(t *testing.T) {
	vars := map[string]interface{}{
		"port_first":      "40001",
		"port_last":       "40003",
		"allowed_sources": "127.0.0.0/8",
	}

	tests := []struct {
		name     string
		template string
		expected string
	}{
		{"No template variables", "-j DROP", "-j DROP"},
		{"Port range", "{{port_first}}:{{port_last}}", "40001:40003"},
		{"Unknown variable gets replaced with empty string", "x{{unknown}}y", "xy"},
		{"Empty template", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := processRulePart(tt.template, vars); got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestNewGuardComponents_Render(t *testing.T) {
	cfg := scenarioConfig(t)
	components := NewGuardComponents(mocks.NewMockIPTables(), cfg)

	if len(components) != 1 {
		t.Fatalf("Expected 1 default guard rule, got %d", len(components))
	}

	rule := strings.Join(components[0].GetRule().Rule, " ")
	expected := "-p tcp -m tcp --dport 40001:40003 ! -s 127.0.0.0/8 -j DROP"
	if rule != expected {
		t.Errorf("Expected %q, got %q", expected, rule)
	}
	if components[0].ShouldExist() {
		t.Error("Guard is disabled by default")
	}
}

func TestManager_ApplyGuard(t *testing.T) {
	kernel, _ := scenarioKernel(t)
	cfg := scenarioConfig(t)
	cfg.Proxy.Guard.Enabled = true
	ipt := mocks.NewMockIPTables()

	mgr, err := NewManager(kernel, cfg, ipt)
	if err != nil {
		t.Fatal(err)
	}

	changed, err := mgr.ApplyGuard()
	if err != nil || !changed {
		t.Fatalf("Expected guard to be installed, got changed=%v err=%v", changed, err)
	}
	changed, err = mgr.ApplyGuard()
	if err != nil || changed {
		t.Errorf("Expected second ApplyGuard to be a no-op, got changed=%v err=%v", changed, err)
	}
	if ipt.AppendCalls != 1 {
		t.Errorf("Expected 1 append, got %d", ipt.AppendCalls)
	}
	if rules := ipt.Rules("filter", "INPUT"); len(rules) != 1 {
		t.Errorf("Expected 1 INPUT rule, got %v", rules)
	}
}

func TestManager_ApplyGuard_Disabled(t *testing.T) {
	kernel, _ := scenarioKernel(t)
	ipt := mocks.NewMockIPTables()

	mgr, _ := NewManager(kernel, scenarioConfig(t), ipt)
	if changed, err := mgr.ApplyGuard(); err != nil || changed {
		t.Errorf("Disabled guard must not install anything, got changed=%v err=%v", changed, err)
	}
	if ipt.AppendCalls != 0 {
		t.Errorf("Expected no appends, got %d", ipt.AppendCalls)
	}
}
