package shell

import (
	"context"
	"reflect"
	"testing"
)

func TestRender(t *testing.T) {
	vars := map[string]interface{}{
		"iface": "hp2",
		"index": "2",
	}

	tests := []struct {
		name     string
		argv     []string
		expected []string
	}{
		{
			name:     "No template variables",
			argv:     []string{"squid", "-k", "reconfigure"},
			expected: []string{"squid", "-k", "reconfigure"},
		},
		{
			name:     "Variable with surrounding text",
			argv:     []string{"dhclient", "-pf", "/run/dhclient-{{iface}}.pid", "{{iface}}"},
			expected: []string{"dhclient", "-pf", "/run/dhclient-hp2.pid", "hp2"},
		},
		{
			name:     "Unknown variable gets replaced with empty string",
			argv:     []string{"udhcpc", "-i", "{{iface}}", "{{unknown}}"},
			expected: []string{"udhcpc", "-i", "hp2", ""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Render(tt.argv, vars); !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestExecRunner_EmptyCommand(t *testing.T) {
	if _, err := NewExecRunner().Run(context.Background(), nil); err == nil {
		t.Error("Expected error for empty command")
	}
}

func TestExecRunner_MissingBinary(t *testing.T) {
	_, err := NewExecRunner().Run(context.Background(), []string{"/nonexistent/hairpin-test-binary"})
	if err == nil {
		t.Error("Expected error for missing binary")
	}
}
