package networking

// ComponentBase provides the metadata shared by all networking components.
type ComponentBase struct {
	identity      int
	componentType ComponentType
	description   string
}

func (c *ComponentBase) GetIdentity() int {
	return c.identity
}

func (c *ComponentBase) GetType() ComponentType {
	return c.componentType
}

func (c *ComponentBase) GetDescription() string {
	return c.description
}
