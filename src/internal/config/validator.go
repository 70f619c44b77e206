package config

import (
	"fmt"
	"net"
	"strconv"

	"github.com/apparentlymart/go-cidr/cidr"
	"golang.org/x/sys/unix"
)

// ValidateConfig validates the entire configuration and returns all validation errors
func (c *Config) ValidateConfig() error {
	var validationErrors ValidationErrors

	sections := []struct {
		name    string
		present bool
		value   interface{}
	}{
		{"general", c.General != nil, c.General},
		{"pool", c.Pool != nil, c.Pool},
		{"lease", c.Lease != nil, c.Lease},
		{"routing", c.Routing != nil, c.Routing},
		{"proxy", c.Proxy != nil, c.Proxy},
		{"api", c.API != nil, c.API},
	}

	for _, section := range sections {
		if !section.present {
			validationErrors = append(validationErrors, ValidationError{
				FieldPath: section.name,
				Message:   fmt.Sprintf("configuration must contain '%s' section", section.name),
			})
			continue
		}
		if err := validate.Struct(section.value); err != nil {
			validationErrors = append(validationErrors, convertValidatorErrors(err, section.name)...)
		}
	}

	if len(validationErrors) > 0 {
		return validationErrors
	}

	validationErrors = append(validationErrors, c.validatePool()...)
	validationErrors = append(validationErrors, c.validateRouting()...)
	validationErrors = append(validationErrors, c.validateProxy()...)

	if len(validationErrors) > 0 {
		return validationErrors
	}

	return nil
}

func (c *Config) validatePool() ValidationErrors {
	var validationErrors ValidationErrors

	lastName := c.InterfaceName(c.Pool.Size)
	if len(lastName) > maxInterfaceNameLen {
		validationErrors = append(validationErrors, ValidationError{
			FieldPath: "pool.interface_prefix",
			Message:   fmt.Sprintf("interface name %q of identity %d exceeds %d characters", lastName, c.Pool.Size, maxInterfaceNameLen),
		})
	}

	if isIdentityName(c.Pool.Uplink, c.Pool.InterfacePrefix, c.Pool.Size) {
		validationErrors = append(validationErrors, ValidationError{
			FieldPath: "pool.uplink",
			Message:   fmt.Sprintf("uplink %q collides with identity interface names", c.Pool.Uplink),
		})
	}

	return validationErrors
}

// isIdentityName reports whether name is <prefix><1..size>.
func isIdentityName(name, prefix string, size int) bool {
	if len(name) <= len(prefix) || name[:len(prefix)] != prefix {
		return false
	}
	index, err := strconv.Atoi(name[len(prefix):])
	return err == nil && index >= 1 && index <= size
}

func (c *Config) validateRouting() ValidationErrors {
	var validationErrors ValidationErrors
	size := c.Pool.Size

	subnet, err := c.SubnetNet()
	if err != nil {
		return ValidationErrors{{FieldPath: "routing.subnet", Message: err.Error()}}
	}

	// Network and broadcast addresses can not be leased.
	if hosts := cidr.AddressCount(subnet); hosts < uint64(size)+2 {
		validationErrors = append(validationErrors, ValidationError{
			FieldPath: "routing.subnet",
			Message:   fmt.Sprintf("subnet %s has %d addresses, too small for %d identities", subnet, hosts, size),
		})
	}

	if gw := c.GatewayIP(); gw != nil && !subnet.Contains(gw) {
		validationErrors = append(validationErrors, ValidationError{
			FieldPath: "routing.gateway",
			Message:   fmt.Sprintf("gateway %s is outside subnet %s", gw, subnet),
		})
	}

	// Selectors must be consulted before the demoted local rule.
	lastSelector := c.SelectorPriority(size)
	if lastSelector >= c.Routing.LocalPriority {
		validationErrors = append(validationErrors, ValidationError{
			FieldPath: "routing.selector_priority_base",
			Message: fmt.Sprintf("selector priorities %d..%d must stay below local_priority %d",
				c.SelectorPriority(1), lastSelector, c.Routing.LocalPriority),
		})
	}

	firstTable, lastTable := c.TableID(1), c.TableID(size)
	for _, reserved := range []int{unix.RT_TABLE_UNSPEC, unix.RT_TABLE_DEFAULT, unix.RT_TABLE_MAIN, unix.RT_TABLE_LOCAL} {
		if reserved >= firstTable && reserved <= lastTable {
			validationErrors = append(validationErrors, ValidationError{
				FieldPath: "routing.table_base",
				Message:   fmt.Sprintf("table range %d..%d contains reserved table %d", firstTable, lastTable, reserved),
			})
		}
	}
	if int64(lastTable) > int64(^uint32(0)) {
		validationErrors = append(validationErrors, ValidationError{
			FieldPath: "routing.table_base",
			Message:   fmt.Sprintf("table %d exceeds the kernel table id range", lastTable),
		})
	}

	return validationErrors
}

func (c *Config) validateProxy() ValidationErrors {
	var validationErrors ValidationErrors

	if lastPort := c.ProxyPort(c.Pool.Size); lastPort > 65535 {
		validationErrors = append(validationErrors, ValidationError{
			FieldPath: "proxy.base_port",
			Message:   fmt.Sprintf("port of identity %d would be %d, above 65535", c.Pool.Size, lastPort),
		})
	}

	if c.Proxy.Guard != nil && c.Proxy.Guard.Enabled {
		if ip := net.ParseIP(c.Proxy.ListenHost); ip != nil && ip.To4() == nil {
			validationErrors = append(validationErrors, ValidationError{
				FieldPath: "proxy.guard.enabled",
				Message:   "guard rules are IPv4 only, listen_host must be an IPv4 address",
			})
		}
	}

	return validationErrors
}
