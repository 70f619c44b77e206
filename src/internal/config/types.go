package config

import (
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"time"
)

type Config struct {
	// General holds general configuration.
	General *GeneralConfig `toml:"general" json:"general"`
	// Pool describes the identities created on the uplink.
	Pool *PoolConfig `toml:"pool" json:"pool"`
	// Lease configures the external address-lease mechanism.
	Lease *LeaseConfig `toml:"lease" json:"lease"`
	// Routing configures the per-identity routing tables and selectors.
	Routing *RoutingConfig `toml:"routing" json:"routing"`
	// Proxy configures the generated forward-proxy bindings.
	Proxy *ProxyConfig `toml:"proxy" json:"proxy"`
	// API configures the status server started by "serve".
	API *APIConfig `toml:"api" json:"api"`

	_absConfigFilePath string
}

type GeneralConfig struct {
	// LockFile serializes runs on the host. Concurrent runs are not supported.
	LockFile string `toml:"lock_file" json:"lock_file" validate:"required"`
}

type PoolConfig struct {
	// Uplink is the physical interface shared by all identities.
	Uplink string `toml:"uplink" json:"uplink" validate:"required,ifname"`
	// Size is the fixed number of identities (N).
	Size int `toml:"size" json:"size" validate:"required,min=1,max=4096"`
	// InterfacePrefix is prepended to the identity index to name the virtual interface (hp1, hp2, ...).
	InterfacePrefix string `toml:"interface_prefix" json:"interface_prefix" validate:"required,ifname"`
	// MacvlanMode is the macvlan mode of the identity interfaces (default: bridge).
	MacvlanMode string `toml:"macvlan_mode" json:"macvlan_mode" validate:"oneof=bridge vepa private passthru"`
	// MACPrefix, when set, gives identity N the address <prefix>:<N hi>:<N lo> so DHCP reservations survive re-creation.
	MACPrefix string `toml:"mac_prefix" json:"mac_prefix,omitempty" validate:"mac_prefix_or_empty"`
	// LeaseTimeoutSeconds bounds the wait for a lease per identity (default: 30).
	LeaseTimeoutSeconds int `toml:"lease_timeout_seconds" json:"lease_timeout_seconds" validate:"min=1"`
	// Parallelism is the number of identities provisioned concurrently (default: 4).
	Parallelism int `toml:"parallelism" json:"parallelism" validate:"min=1"`
}

type LeaseConfig struct {
	// Command starts the lease client for one interface. Available variables: {{iface}}, {{index}}.
	Command []string `toml:"command" json:"command" validate:"required,min=1"`
	// PollIntervalMs is how often the interface is checked for a leased address (default: 250).
	PollIntervalMs int `toml:"poll_interval_ms" json:"poll_interval_ms" validate:"min=10"`
}

type RoutingConfig struct {
	// Subnet is the LAN subnet forced through the physical link.
	Subnet string `toml:"subnet" json:"subnet" validate:"required,cidr4"`
	// Gateway is the shared LAN gateway. Defaults to the first host of the subnet.
	Gateway string `toml:"gateway" json:"gateway,omitempty" validate:"ip4_or_empty"`
	// DefaultRoute adds "default via gateway" to every identity table (default: true).
	DefaultRoute *bool `toml:"default_route" json:"default_route,omitempty"`
	// TableBase is added to the identity index to get its routing table.
	// Unset or 0 selects the default 1000.
	TableBase int `toml:"table_base" json:"table_base" validate:"min=1"`
	// SelectorPriorityBase is the ip rule priority of identity 1 (default: 100).
	SelectorPriorityBase int `toml:"selector_priority_base" json:"selector_priority_base" validate:"min=1"`
	// LocalPriority is the priority the "lookup local" rule is moved to (default: 1000).
	LocalPriority int `toml:"local_priority" json:"local_priority" validate:"min=1,max=32765"`
}

type ProxyConfig struct {
	// ConfigPath is the proxy configuration file owned by hairpin.
	ConfigPath string `toml:"config_path" json:"config_path" validate:"required"`
	// ListenHost is the address the per-identity listeners bind to (default: 127.0.0.1).
	ListenHost string `toml:"listen_host" json:"listen_host" validate:"required,ip"`
	// BasePort is the listening port of identity 1 (default: 40001).
	BasePort int `toml:"base_port" json:"base_port" validate:"min=1,max=65535"`
	// Header is written once before all bindings.
	Header string `toml:"header" json:"header,omitempty"`
	// BindingTemplate is rendered once per identity. Available variables: {{name}}, {{index}}, {{port}}, {{address}}, {{listen_host}}.
	BindingTemplate string `toml:"binding_template" json:"binding_template,omitempty"`
	// ReloadCommand signals the proxy to re-read its configuration.
	// Unset selects squid -k reconfigure; an empty list only writes the file.
	ReloadCommand []string `toml:"reload_command" json:"reload_command"`
	// RestartCommand is the degraded fallback when reloading fails twice (optional).
	RestartCommand []string `toml:"restart_command" json:"restart_command,omitempty"`
	// ReloadTimeoutSeconds bounds each reload/restart command (default: 10).
	ReloadTimeoutSeconds int `toml:"reload_timeout_seconds" json:"reload_timeout_seconds" validate:"min=1"`
	// Guard restricts access to the listening ports with iptables.
	Guard *GuardConfig `toml:"guard" json:"guard,omitempty"`
}

type GuardConfig struct {
	// Enabled installs the guard rules on "provision".
	Enabled bool `toml:"enabled" json:"enabled"`
	// AllowedSources may reach the proxy ports (default: 127.0.0.0/8).
	AllowedSources string `toml:"allowed_sources" json:"allowed_sources" validate:"required,cidr4"`
	// IPTablesRules are the guard rules. Available variables: {{port_first}}, {{port_last}}, {{allowed_sources}}, {{listen_host}}.
	IPTablesRules []*IPTablesRule `toml:"iptables_rule,omitempty" json:"iptables_rule,omitempty" validate:"dive"`
}

type IPTablesRule struct {
	Chain string   `toml:"chain" json:"chain" validate:"required"`
	Table string   `toml:"table" json:"table" validate:"required"`
	Rule  []string `toml:"rule" json:"rule" validate:"required,min=1"`
}

type APIConfig struct {
	// ListenAddr is the address of the status server (default: 127.0.0.1:9840).
	ListenAddr string `toml:"listen_addr" json:"listen_addr" validate:"required,hostname_port"`
}

func (c *Config) GetConfigDir() string {
	return filepath.Dir(c._absConfigFilePath)
}

// InterfaceName returns the virtual interface name of identity index.
func (c *Config) InterfaceName(index int) string {
	return c.Pool.InterfacePrefix + strconv.Itoa(index)
}

// TableID returns the routing table of identity index.
func (c *Config) TableID(index int) int {
	return c.Routing.TableBase + index
}

// SelectorPriority returns the ip rule priority of identity index.
func (c *Config) SelectorPriority(index int) int {
	return c.Routing.SelectorPriorityBase + index - 1
}

// ProxyPort returns the proxy listening port of identity index.
func (c *Config) ProxyPort(index int) int {
	return c.Proxy.BasePort + index - 1
}

// ProxyName returns the proxy listener name of identity index.
func (c *Config) ProxyName(index int) string {
	return "identity" + strconv.Itoa(index)
}

// SubnetNet returns the parsed LAN subnet.
func (c *Config) SubnetNet() (*net.IPNet, error) {
	_, subnet, err := net.ParseCIDR(c.Routing.Subnet)
	if err != nil {
		return nil, fmt.Errorf("invalid subnet %q: %w", c.Routing.Subnet, err)
	}
	return subnet, nil
}

// GatewayIP returns the configured gateway, or nil when unset.
func (c *Config) GatewayIP() net.IP {
	if c.Routing.Gateway == "" {
		return nil
	}
	return net.ParseIP(c.Routing.Gateway).To4()
}

// DefaultRouteEnabled reports whether identity tables get a default route.
func (c *Config) DefaultRouteEnabled() bool {
	return c.Routing.DefaultRoute == nil || *c.Routing.DefaultRoute
}

func (c *Config) LeaseTimeout() time.Duration {
	return time.Duration(c.Pool.LeaseTimeoutSeconds) * time.Second
}

func (c *Config) LeasePollInterval() time.Duration {
	return time.Duration(c.Lease.PollIntervalMs) * time.Millisecond
}

func (c *Config) ReloadTimeout() time.Duration {
	return time.Duration(c.Proxy.ReloadTimeoutSeconds) * time.Second
}

// Indexes returns identity indexes 1..N.
func (c *Config) Indexes() []int {
	indexes := make([]int, c.Pool.Size)
	for i := range indexes {
		indexes[i] = i + 1
	}
	return indexes
}
