package proxy

import (
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"

	"github.com/valyala/fasttemplate"

	"github.com/wpsim/hairpin/src/internal/config"
)

// Binding maps one proxy listening port to the outgoing address of one identity.
type Binding struct {
	Index      int    `json:"index"`
	Name       string `json:"name"`
	ListenHost string `json:"listen_host"`
	ListenPort int    `json:"listen_port"`
	Address    net.IP `json:"address"`
}

// Endpoint returns the host:port clients connect to for this identity.
func (b Binding) Endpoint() string {
	return net.JoinHostPort(b.ListenHost, strconv.Itoa(b.ListenPort))
}

// BuildBindings returns the bindings of the given identity addresses, sorted
// by index. Entries without an address are skipped.
func BuildBindings(cfg *config.Config, addresses map[int]net.IP) []Binding {
	bindings := make([]Binding, 0, len(addresses))
	for index, address := range addresses {
		if address == nil {
			continue
		}
		bindings = append(bindings, Binding{
			Index:      index,
			Name:       cfg.ProxyName(index),
			ListenHost: cfg.Proxy.ListenHost,
			ListenPort: cfg.ProxyPort(index),
			Address:    address,
		})
	}

	sort.Slice(bindings, func(i, j int) bool {
		return bindings[i].Index < bindings[j].Index
	})
	return bindings
}

// Render produces the proxy configuration: the header, then one rendered
// binding template per binding in the given order.
func Render(cfg *config.Config, bindings []Binding) (string, error) {
	tmpl, err := fasttemplate.NewTemplate(cfg.Proxy.BindingTemplate, "{{", "}}")
	if err != nil {
		return "", fmt.Errorf("invalid binding template: %w", err)
	}

	var sb strings.Builder
	sb.WriteString(cfg.Proxy.Header)

	for _, b := range bindings {
		sb.WriteString("\n")
		_, err := tmpl.Execute(&sb, map[string]interface{}{
			config.TMPL_NAME:        b.Name,
			config.TMPL_INDEX:       strconv.Itoa(b.Index),
			config.TMPL_PORT:        strconv.Itoa(b.ListenPort),
			config.TMPL_ADDRESS:     b.Address.String(),
			config.TMPL_LISTEN_HOST: b.ListenHost,
		})
		if err != nil {
			return "", fmt.Errorf("failed to render binding %s: %w", b.Name, err)
		}
	}

	return sb.String(), nil
}
