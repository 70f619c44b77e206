package networking

// ComponentType identifies the type of networking component
type ComponentType string

const (
	ComponentTypeLocalRule    ComponentType = "local_rule"
	ComponentTypeSelector     ComponentType = "selector"
	ComponentTypeSubnetRoute  ComponentType = "subnet_route"
	ComponentTypeDefaultRoute ComponentType = "default_route"
	ComponentTypeIPTables     ComponentType = "iptables"
)

// NetworkingComponent represents one piece of desired kernel state.
// The same components drive apply, status and teardown.
type NetworkingComponent interface {
	// IsExists checks if the component currently exists in the system
	IsExists() (bool, error)

	// ShouldExist determines if this component should be present
	ShouldExist() bool

	// Conflict describes existing state that contradicts this component,
	// or returns "" when there is none. Conflicting state is never overwritten.
	Conflict() (string, error)

	// CreateIfNotExists creates the component if it doesn't exist
	CreateIfNotExists() error

	// DeleteIfExists removes the component if it exists
	DeleteIfExists() error

	// GetType returns the component type for categorization
	GetType() ComponentType

	// GetIdentity returns the owning identity index, 0 for host-wide components
	GetIdentity() int

	// GetDescription returns human-readable description
	GetDescription() string

	// GetCommand returns the equivalent CLI command for manual execution (debugging)
	GetCommand() string
}
