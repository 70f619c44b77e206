package mocks

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
)

// MockRunner is a mock command runner.
//
// Every invocation is recorded in Calls. If RunFunc is nil the call succeeds
// with empty output.
type MockRunner struct {
	mu sync.Mutex

	// RunFunc is called by Run if not nil
	RunFunc func(ctx context.Context, argv []string) (string, error)

	// Calls holds the argv of every invocation
	Calls [][]string
}

// Run records the call and delegates to RunFunc.
func (m *MockRunner) Run(ctx context.Context, argv []string) (string, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, append([]string(nil), argv...))
	m.mu.Unlock()

	if m.RunFunc != nil {
		return m.RunFunc(ctx, argv)
	}
	return "", nil
}

// CallCount returns how many times Run was invoked.
func (m *MockRunner) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// CommandLines returns every recorded invocation joined with spaces.
func (m *MockRunner) CommandLines() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	lines := make([]string, 0, len(m.Calls))
	for _, argv := range m.Calls {
		lines = append(lines, strings.Join(argv, " "))
	}
	return lines
}

// MockIPTables is an in-memory iptables with the Exists/Append/Delete subset
// of *iptables.IPTables.
type MockIPTables struct {
	mu    sync.Mutex
	rules map[string][]string

	// AppendFunc is called by Append if not nil
	AppendFunc func(table, chain string, rulespec ...string) error

	AppendCalls int
	DeleteCalls int
}

// NewMockIPTables creates an empty mock iptables.
func NewMockIPTables() *MockIPTables {
	return &MockIPTables{rules: map[string][]string{}}
}

// Exists reports whether the rule is present in table/chain.
func (m *MockIPTables) Exists(table, chain string, rulespec ...string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := table + "/" + chain
	spec := strings.Join(rulespec, " ")
	for _, r := range m.rules[key] {
		if r == spec {
			return true, nil
		}
	}
	return false, nil
}

// Append appends the rule to table/chain.
func (m *MockIPTables) Append(table, chain string, rulespec ...string) error {
	if m.AppendFunc != nil {
		if err := m.AppendFunc(table, chain, rulespec...); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.AppendCalls++
	key := table + "/" + chain
	m.rules[key] = append(m.rules[key], strings.Join(rulespec, " "))
	return nil
}

// Delete removes the rule from table/chain.
func (m *MockIPTables) Delete(table, chain string, rulespec ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := table + "/" + chain
	spec := strings.Join(rulespec, " ")
	for i, r := range m.rules[key] {
		if r == spec {
			m.rules[key] = append(m.rules[key][:i], m.rules[key][i+1:]...)
			m.DeleteCalls++
			return nil
		}
	}
	return fmt.Errorf("rule %q not found in %s", spec, key)
}

// Rules returns the rules of table/chain.
func (m *MockIPTables) Rules(table, chain string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.rules[table+"/"+chain]...)
}

// MockLeaseClient simulates an external lease mechanism on top of a Kernel.
//
// Acquire assigns Offers[index] (CIDR notation) to the interface and returns
// the address. An index without an offer fails immediately with a deadline
// error, the way a real client fails once its bounded wait expires.
type MockLeaseClient struct {
	mu sync.Mutex

	Kernel *Kernel
	Offers map[int]string

	// AcquireFunc is called by Acquire if not nil
	AcquireFunc func(ctx context.Context, iface string, index int) (net.IP, error)

	// Requested holds the interface names leases were requested for
	Requested []string
}

// Acquire leases an address for iface.
func (m *MockLeaseClient) Acquire(ctx context.Context, iface string, index int) (net.IP, error) {
	m.mu.Lock()
	m.Requested = append(m.Requested, iface)
	m.mu.Unlock()

	if m.AcquireFunc != nil {
		return m.AcquireFunc(ctx, iface, index)
	}

	offer, ok := m.Offers[index]
	if !ok {
		return nil, fmt.Errorf("no lease offered for %s: %w", iface, context.DeadlineExceeded)
	}
	ip, _, err := net.ParseCIDR(offer)
	if err != nil {
		return nil, err
	}
	if m.Kernel != nil {
		if err := m.Kernel.AssignAddr(iface, offer); err != nil {
			return nil, err
		}
	}
	return ip.To4(), nil
}

// RequestCount returns how many leases were requested.
func (m *MockLeaseClient) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requested)
}
