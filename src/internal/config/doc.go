// Package config handles configuration file parsing and validation for hairpin.
//
// The configuration is a TOML file describing the identity pool (uplink, size,
// interface naming), the lease command, the routing numbers (table base,
// selector priority base, demoted local priority) and the generated proxy
// bindings. Every numeric space shared across identities is partitioned by the
// identity index:
//
//	table    = routing.table_base + index
//	priority = routing.selector_priority_base + index - 1
//	port     = proxy.base_port + index - 1
//
// ValidateConfig checks field formats with go-playground/validator and then the
// cross-field invariants: selector priorities stay below the demoted local rule,
// the table range avoids the kernel's reserved tables, the ports fit in 16 bits
// and the subnet is large enough for the pool.
//
//	cfg, err := config.LoadConfig("/etc/hairpin/hairpin.toml")
//	if err != nil {
//	    log.Fatalf("%v", err)
//	}
//	if err := cfg.ValidateConfig(); err != nil {
//	    log.Fatalf("%v", err)
//	}
package config
