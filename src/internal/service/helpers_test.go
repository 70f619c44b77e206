package service

import (
	"path/filepath"
	"testing"

	"github.com/wpsim/hairpin/src/internal/config"
	"github.com/wpsim/hairpin/src/internal/domain"
	"github.com/wpsim/hairpin/src/internal/mocks"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hairpin.conf")
	cfg, err := config.ParseConfig([]byte(`
[pool]
uplink = "up0"
size = 3

[routing]
subnet = "10.0.0.0/24"
gateway = "10.0.0.1"

[proxy]
config_path = "` + path + `"
`))
	if err != nil {
		t.Fatalf("ParseConfig failed: %v", err)
	}
	return cfg
}

type fixture struct {
	kernel *mocks.Kernel
	leaser *mocks.MockLeaseClient
	runner *mocks.MockRunner
	ipt    *mocks.MockIPTables
	cfg    *config.Config
	svc    *RoutingService
}

// newFixture builds a host with uplink up0 and a lease server offering
// 10.0.0.11..13 to identities 1..3.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		kernel: mocks.NewKernel(),
		runner: &mocks.MockRunner{},
		ipt:    mocks.NewMockIPTables(),
		cfg:    testConfig(t),
	}
	f.kernel.AddUplink("up0")
	f.leaser = &mocks.MockLeaseClient{
		Kernel: f.kernel,
		Offers: map[int]string{1: "10.0.0.11/24", 2: "10.0.0.12/24", 3: "10.0.0.13/24"},
	}
	f.rebuild(t)
	return f
}

// rebuild recreates the service, so a run starts from a fresh process state.
func (f *fixture) rebuild(t *testing.T) {
	t.Helper()
	deps, err := domain.NewTestDependencies(f.cfg, f.kernel, f.leaser, f.runner, f.ipt)
	if err != nil {
		t.Fatalf("NewTestDependencies failed: %v", err)
	}
	f.svc = NewRoutingService(deps, NewValidationService())
}
