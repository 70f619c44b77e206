package config

import (
	"errors"
	"strings"
	"testing"
)

func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg, err := ParseConfig([]byte(scenarioTOML))
	if err != nil {
		t.Fatalf("ParseConfig failed: %v", err)
	}
	return cfg
}

// expectFieldError asserts that err is a ValidationErrors containing fieldPath.
func expectFieldError(t *testing.T, err error, fieldPath string) {
	t.Helper()

	if err == nil {
		t.Fatalf("Expected validation error for %s, got nil", fieldPath)
	}

	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("Expected ValidationErrors, got %T: %v", err, err)
	}

	for _, e := range verrs {
		if e.FieldPath == fieldPath {
			return
		}
	}
	t.Errorf("Expected error for field %s, got: %v", fieldPath, err)
}

func TestValidateConfig_Success(t *testing.T) {
	if err := validConfig(t).ValidateConfig(); err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
}

func TestValidateConfig_MissingSection(t *testing.T) {
	cfg := validConfig(t)
	cfg.Routing = nil

	expectFieldError(t, cfg.ValidateConfig(), "routing")
}

func TestValidateConfig_FieldFormats(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		fieldPath string
	}{
		{"missing uplink", func(c *Config) { c.Pool.Uplink = "" }, "pool.uplink"},
		{"uplink with slash", func(c *Config) { c.Pool.Uplink = "eth0/1" }, "pool.uplink"},
		{"zero pool size", func(c *Config) { c.Pool.Size = 0 }, "pool.size"},
		{"unknown macvlan mode", func(c *Config) { c.Pool.MacvlanMode = "bogus" }, "pool.macvlan_mode"},
		{"multicast mac prefix", func(c *Config) { c.Pool.MACPrefix = "01:00:5e:00" }, "pool.mac_prefix"},
		{"globally administered mac prefix", func(c *Config) { c.Pool.MACPrefix = "00:11:22:33" }, "pool.mac_prefix"},
		{"short mac prefix", func(c *Config) { c.Pool.MACPrefix = "02:42" }, "pool.mac_prefix"},
		{"ipv6 subnet", func(c *Config) { c.Routing.Subnet = "fd00::/64" }, "routing.subnet"},
		{"garbage gateway", func(c *Config) { c.Routing.Gateway = "gateway" }, "routing.gateway"},
		{"local priority above main", func(c *Config) { c.Routing.LocalPriority = 32766 }, "routing.local_priority"},
		{"bad listen host", func(c *Config) { c.Proxy.ListenHost = "localhost" }, "proxy.listen_host"},
		{"empty lease command", func(c *Config) { c.Lease.Command = nil }, "lease.command"},
		{"bad api addr", func(c *Config) { c.API.ListenAddr = "nope" }, "api.listen_addr"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			expectFieldError(t, cfg.ValidateConfig(), tt.fieldPath)
		})
	}
}

func TestValidateConfig_CrossField(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		fieldPath string
	}{
		{
			name: "selector band reaches local priority",
			mutate: func(c *Config) {
				c.Routing.SelectorPriorityBase = 998
			},
			fieldPath: "routing.selector_priority_base",
		},
		{
			name: "table range covers main table",
			mutate: func(c *Config) {
				c.Routing.TableBase = 252
			},
			fieldPath: "routing.table_base",
		},
		{
			name: "ports overflow",
			mutate: func(c *Config) {
				c.Proxy.BasePort = 65534
			},
			fieldPath: "proxy.base_port",
		},
		{
			name: "gateway outside subnet",
			mutate: func(c *Config) {
				c.Routing.Gateway = "10.0.1.1"
			},
			fieldPath: "routing.gateway",
		},
		{
			name: "subnet too small",
			mutate: func(c *Config) {
				c.Routing.Subnet = "10.0.0.0/30"
				c.Routing.Gateway = "10.0.0.1"
			},
			fieldPath: "routing.subnet",
		},
		{
			name: "interface name too long",
			mutate: func(c *Config) {
				c.Pool.InterfacePrefix = "identity-iface"
				c.Pool.Size = 10
			},
			fieldPath: "pool.interface_prefix",
		},
		{
			name: "uplink collides with identity name",
			mutate: func(c *Config) {
				c.Pool.Uplink = "hp2"
			},
			fieldPath: "pool.uplink",
		},
		{
			name: "guard with ipv6 listener",
			mutate: func(c *Config) {
				c.Proxy.Guard.Enabled = true
				c.Proxy.ListenHost = "::1"
			},
			fieldPath: "proxy.guard.enabled",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			expectFieldError(t, cfg.ValidateConfig(), tt.fieldPath)
		})
	}
}

func TestValidationErrors_Error(t *testing.T) {
	errs := ValidationErrors{
		{FieldPath: "pool.size", Message: "must be >= 1"},
		{FieldPath: "routing.subnet", Message: "field is required"},
	}

	msg := errs.Error()
	if !strings.Contains(msg, "2 error(s)") {
		t.Errorf("Expected error count in message, got: %s", msg)
	}
	if !strings.Contains(msg, "1. pool.size: must be >= 1") {
		t.Errorf("Expected first error in message, got: %s", msg)
	}
}

func TestParseMACPrefix(t *testing.T) {
	prefix, err := ParseMACPrefix("02:42:0a:00")
	if err != nil {
		t.Fatalf("Expected valid prefix, got: %v", err)
	}
	if len(prefix) != 4 || prefix[0] != 0x02 || prefix[2] != 0x0a {
		t.Errorf("Unexpected prefix bytes: %x", prefix)
	}
}
