package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/apparentlymart/go-cidr/cidr"
	"github.com/pelletier/go-toml/v2"

	"github.com/wpsim/hairpin/src/internal/log"
	"github.com/wpsim/hairpin/src/internal/utils"
)

const (
	DefaultConfigPath = "/etc/hairpin/hairpin.toml"

	DefaultLockFile             = "/run/hairpin.lock"
	DefaultInterfacePrefix      = "hp"
	DefaultMacvlanMode          = "bridge"
	DefaultLeaseTimeoutSeconds  = 30
	DefaultParallelism          = 4
	DefaultLeasePollIntervalMs  = 250
	DefaultTableBase            = 1000
	DefaultSelectorPriorityBase = 100
	DefaultLocalPriority        = 1000
	DefaultListenHost           = "127.0.0.1"
	DefaultBasePort             = 40001
	DefaultReloadTimeoutSeconds = 10
	DefaultGuardAllowedSources  = "127.0.0.0/8"
	DefaultAPIListenAddr        = "127.0.0.1:9840"

	DefaultProxyHeader = "# Generated by hairpin. Do not edit, changes are overwritten.\n"
	// DefaultBindingTemplate binds one squid listener to one outgoing address.
	DefaultBindingTemplate = "http_port {{listen_host}}:{{port}} name={{name}}\n" +
		"acl {{name}}_port myportname {{name}}\n" +
		"tcp_outgoing_address {{address}} {{name}}_port\n"
)

// Template variables.
const (
	TMPL_IFACE = "iface"
	TMPL_INDEX = "index"

	TMPL_NAME        = "name"
	TMPL_PORT        = "port"
	TMPL_ADDRESS     = "address"
	TMPL_LISTEN_HOST = "listen_host"
	TMPL_CONFIG_PATH = "config_path"

	TMPL_PORT_FIRST      = "port_first"
	TMPL_PORT_LAST       = "port_last"
	TMPL_ALLOWED_SOURCES = "allowed_sources"
)

var (
	DefaultLeaseCommand  = []string{"dhclient", "-nw", "-pf", "/run/dhclient-{{iface}}.pid", "{{iface}}"}
	DefaultReloadCommand = []string{"squid", "-k", "reconfigure"}
	DefaultGuardRules    = []*IPTablesRule{
		{
			Table: "filter",
			Chain: "INPUT",
			Rule:  []string{"-p", "tcp", "-m", "tcp", "--dport", "{{port_first}}:{{port_last}}", "!", "-s", "{{allowed_sources}}", "-j", "DROP"},
		},
	}
)

func LoadConfig(configPath string) (*Config, error) {
	configFile := filepath.Clean(configPath)

	if !filepath.IsAbs(configFile) {
		if path, err := filepath.Abs(configFile); err != nil {
			return nil, fmt.Errorf("failed to get absolute path: %v", err)
		} else {
			configFile = path
		}
	}

	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		log.Errorf("Configuration file not found: %s", configFile)
		return nil, fmt.Errorf("configuration file not found: %s", configFile)
	}

	content, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %v", err)
	}

	config, err := ParseConfig(content)
	if err != nil {
		return nil, err
	}
	config._absConfigFilePath = configFile
	config.Proxy.ConfigPath = utils.GetAbsolutePath(config.Proxy.ConfigPath, config.GetConfigDir())

	log.Debugf("Configuration file path: %s", configFile)
	return config, nil
}

// ParseConfig decodes TOML content and fills in defaults.
func ParseConfig(content []byte) (*Config, error) {
	var config Config
	if err := toml.Unmarshal(content, &config); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			log.Errorf("%s", derr.String())
			row, col := derr.Position()
			log.Errorf("Error at line %d, column %d", row, col)
			return nil, fmt.Errorf("failed to parse config file")
		}
		return nil, fmt.Errorf("failed to parse config file: %v", err)
	}

	config.ApplyDefaults()
	return &config, nil
}

// ApplyDefaults fills every unset field with its default value.
func (c *Config) ApplyDefaults() {
	if c.General == nil {
		c.General = &GeneralConfig{}
	}
	if c.General.LockFile == "" {
		c.General.LockFile = DefaultLockFile
	}

	if c.Pool == nil {
		c.Pool = &PoolConfig{}
	}
	if c.Pool.InterfacePrefix == "" {
		c.Pool.InterfacePrefix = DefaultInterfacePrefix
	}
	if c.Pool.MacvlanMode == "" {
		c.Pool.MacvlanMode = DefaultMacvlanMode
	}
	if c.Pool.LeaseTimeoutSeconds == 0 {
		c.Pool.LeaseTimeoutSeconds = DefaultLeaseTimeoutSeconds
	}
	if c.Pool.Parallelism == 0 {
		c.Pool.Parallelism = DefaultParallelism
	}

	if c.Lease == nil {
		c.Lease = &LeaseConfig{}
	}
	if len(c.Lease.Command) == 0 {
		c.Lease.Command = append([]string(nil), DefaultLeaseCommand...)
	}
	if c.Lease.PollIntervalMs == 0 {
		c.Lease.PollIntervalMs = DefaultLeasePollIntervalMs
	}

	if c.Routing == nil {
		c.Routing = &RoutingConfig{}
	}
	if c.Routing.TableBase == 0 {
		c.Routing.TableBase = DefaultTableBase
	}
	if c.Routing.SelectorPriorityBase == 0 {
		c.Routing.SelectorPriorityBase = DefaultSelectorPriorityBase
	}
	if c.Routing.LocalPriority == 0 {
		c.Routing.LocalPriority = DefaultLocalPriority
	}
	if c.Routing.Gateway == "" && c.Routing.Subnet != "" {
		if subnet, err := c.SubnetNet(); err == nil && subnet.IP.To4() != nil {
			if gw, err := cidr.Host(subnet, 1); err == nil {
				c.Routing.Gateway = gw.String()
			}
		}
	}

	if c.Proxy == nil {
		c.Proxy = &ProxyConfig{}
	}
	if c.Proxy.ListenHost == "" {
		c.Proxy.ListenHost = DefaultListenHost
	}
	if c.Proxy.BasePort == 0 {
		c.Proxy.BasePort = DefaultBasePort
	}
	if c.Proxy.Header == "" {
		c.Proxy.Header = DefaultProxyHeader
	}
	if c.Proxy.BindingTemplate == "" {
		c.Proxy.BindingTemplate = DefaultBindingTemplate
	}
	if c.Proxy.ReloadCommand == nil {
		c.Proxy.ReloadCommand = append([]string(nil), DefaultReloadCommand...)
	}
	if c.Proxy.ReloadTimeoutSeconds == 0 {
		c.Proxy.ReloadTimeoutSeconds = DefaultReloadTimeoutSeconds
	}
	if c.Proxy.Guard == nil {
		c.Proxy.Guard = &GuardConfig{}
	}
	if c.Proxy.Guard.AllowedSources == "" {
		c.Proxy.Guard.AllowedSources = DefaultGuardAllowedSources
	}
	if len(c.Proxy.Guard.IPTablesRules) == 0 {
		for _, rule := range DefaultGuardRules {
			c.Proxy.Guard.IPTablesRules = append(c.Proxy.Guard.IPTablesRules, &IPTablesRule{
				Table: rule.Table,
				Chain: rule.Chain,
				Rule:  append([]string(nil), rule.Rule...),
			})
		}
	}

	if c.API == nil {
		c.API = &APIConfig{}
	}
	if c.API.ListenAddr == "" {
		c.API.ListenAddr = DefaultAPIListenAddr
	}
}

func (c *Config) SerializeConfig() (*bytes.Buffer, error) {
	buf := bytes.Buffer{}
	enc := toml.NewEncoder(&buf)
	enc.SetIndentTables(true)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	return &buf, nil
}
