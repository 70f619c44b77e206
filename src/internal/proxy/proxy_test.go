package proxy

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wpsim/hairpin/src/internal/config"
	hperrors "github.com/wpsim/hairpin/src/internal/errors"
	"github.com/wpsim/hairpin/src/internal/mocks"
)

func proxyConfig(t *testing.T) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hairpin.conf")
	cfg, err := config.ParseConfig([]byte(`
[pool]
uplink = "up0"
size = 3

[routing]
subnet = "10.0.0.0/24"

[proxy]
config_path = "` + path + `"
`))
	if err != nil {
		t.Fatalf("ParseConfig failed: %v", err)
	}
	return cfg
}

func scenarioAddresses() map[int]net.IP {
	return map[int]net.IP{
		3: net.ParseIP("10.0.0.13"),
		1: net.ParseIP("10.0.0.11"),
		2: net.ParseIP("10.0.0.12"),
	}
}

func TestRender_Scenario(t *testing.T) {
	cfg := proxyConfig(t)

	content, err := Render(cfg, BuildBindings(cfg, scenarioAddresses()))
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	expected := config.DefaultProxyHeader + `
http_port 127.0.0.1:40001 name=identity1
acl identity1_port myportname identity1
tcp_outgoing_address 10.0.0.11 identity1_port

http_port 127.0.0.1:40002 name=identity2
acl identity2_port myportname identity2
tcp_outgoing_address 10.0.0.12 identity2_port

http_port 127.0.0.1:40003 name=identity3
acl identity3_port myportname identity3
tcp_outgoing_address 10.0.0.13 identity3_port
`
	if content != expected {
		t.Errorf("Unexpected proxy config:\n%s", content)
	}
}

func TestRender_Deterministic(t *testing.T) {
	cfg := proxyConfig(t)

	first, _ := Render(cfg, BuildBindings(cfg, scenarioAddresses()))
	for i := 0; i < 20; i++ {
		// Map iteration order differs between runs; the output must not.
		again, _ := Render(cfg, BuildBindings(cfg, scenarioAddresses()))
		if again != first {
			t.Fatalf("Render output changed between runs")
		}
	}
}

func TestBuildBindings_SkipsMissingAddresses(t *testing.T) {
	cfg := proxyConfig(t)

	bindings := BuildBindings(cfg, map[int]net.IP{1: net.ParseIP("10.0.0.11"), 2: nil, 3: net.ParseIP("10.0.0.13")})
	if len(bindings) != 2 || bindings[0].Index != 1 || bindings[1].Index != 3 {
		t.Fatalf("Unexpected bindings: %+v", bindings)
	}
	if bindings[1].ListenPort != 40003 || bindings[1].Endpoint() != "127.0.0.1:40003" {
		t.Errorf("Identity 3 must keep port 40003, got %s", bindings[1].Endpoint())
	}
}

func TestRender_CustomTemplate(t *testing.T) {
	cfg := proxyConfig(t)
	cfg.Proxy.Header = ""
	cfg.Proxy.BindingTemplate = "{{index}} {{name}} {{listen_host}} {{port}} {{address}}"

	content, err := Render(cfg, BuildBindings(cfg, map[int]net.IP{2: net.ParseIP("10.0.0.12")}))
	if err != nil {
		t.Fatal(err)
	}
	if content != "\n2 identity2 127.0.0.1 40002 10.0.0.12" {
		t.Errorf("Unexpected content %q", content)
	}
}

func TestApply_WriteThenUnchanged(t *testing.T) {
	cfg := proxyConfig(t)
	runner := &mocks.MockRunner{}
	gen := NewGenerator(cfg, runner)
	bindings := BuildBindings(cfg, scenarioAddresses())

	result := gen.Apply(context.Background(), bindings)
	if result.Status != StatusReloaded || result.Err != nil {
		t.Fatalf("Expected reloaded, got %+v", result)
	}
	if lines := runner.CommandLines(); len(lines) != 1 || lines[0] != "squid -k reconfigure" {
		t.Errorf("Unexpected reload commands: %v", lines)
	}

	data, err := os.ReadFile(cfg.Proxy.ConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "tcp_outgoing_address 10.0.0.13 identity3_port") {
		t.Errorf("Written file is missing identity 3")
	}

	result = gen.Apply(context.Background(), bindings)
	if result.Status != StatusUnchanged || result.Changed() {
		t.Errorf("Expected unchanged, got %+v", result)
	}
	if runner.CallCount() != 1 {
		t.Errorf("An unchanged configuration must not reload, got %d calls", runner.CallCount())
	}
}

func TestApply_ReloadFailures(t *testing.T) {
	tests := []struct {
		name           string
		restart        []string
		failures       int
		expectedStatus Status
		expectedCalls  int
	}{
		{"first reload succeeds", nil, 0, StatusReloaded, 1},
		{"retry succeeds", nil, 1, StatusReloaded, 2},
		{"restart fallback", []string{"systemctl", "restart", "squid"}, 2, StatusRestarted, 3},
		{"no fallback configured", nil, 2, StatusDegraded, 2},
		{"everything fails", []string{"systemctl", "restart", "squid"}, 3, StatusDegraded, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := proxyConfig(t)
			cfg.Proxy.RestartCommand = tt.restart

			calls := 0
			runner := &mocks.MockRunner{
				RunFunc: func(ctx context.Context, argv []string) (string, error) {
					calls++
					if calls <= tt.failures {
						return "", errors.New("squid is not running")
					}
					return "", nil
				},
			}

			result := NewGenerator(cfg, runner).Apply(context.Background(), BuildBindings(cfg, scenarioAddresses()))
			if result.Status != tt.expectedStatus {
				t.Errorf("Expected %s, got %s", tt.expectedStatus, result.Status)
			}
			if runner.CallCount() != tt.expectedCalls {
				t.Errorf("Expected %d commands, got %d", tt.expectedCalls, runner.CallCount())
			}
			if tt.expectedStatus == StatusDegraded && !errors.Is(result.Err, hperrors.ErrProxyReload) {
				t.Errorf("Expected a proxy reload error, got %v", result.Err)
			}
		})
	}
}

func TestApply_ReloadsAfterFailedRun(t *testing.T) {
	cfg := proxyConfig(t)
	bindings := BuildBindings(cfg, scenarioAddresses())

	failing := &mocks.MockRunner{
		RunFunc: func(ctx context.Context, argv []string) (string, error) {
			return "", errors.New("squid is not running")
		},
	}
	if result := NewGenerator(cfg, failing).Apply(context.Background(), bindings); result.Status != StatusDegraded {
		t.Fatalf("Expected degraded-proxy on the first run, got %s", result.Status)
	}
	if result := Check(cfg, bindings); result.Status != StatusStale {
		t.Errorf("Expected stale while the reload is pending, got %s", result.Status)
	}

	runner := &mocks.MockRunner{}
	gen := NewGenerator(cfg, runner)

	result := gen.Apply(context.Background(), bindings)
	if result.Status != StatusReloaded || result.Err != nil {
		t.Fatalf("Expected the pending configuration to be reloaded, got %+v", result)
	}
	if runner.CallCount() != 1 {
		t.Errorf("Expected 1 reload, got %d", runner.CallCount())
	}

	if result := gen.Apply(context.Background(), bindings); result.Status != StatusUnchanged {
		t.Errorf("Expected unchanged once the proxy accepted the file, got %s", result.Status)
	}
	if runner.CallCount() != 1 {
		t.Errorf("Expected no further reloads, got %d calls", runner.CallCount())
	}
	if _, err := os.Stat(cfg.Proxy.ConfigPath + ".pending"); !os.IsNotExist(err) {
		t.Errorf("Expected the pending marker to be removed, got %v", err)
	}
}

func TestApply_ReloadsAfterInterruptedRun(t *testing.T) {
	cfg := proxyConfig(t)
	bindings := BuildBindings(cfg, scenarioAddresses())

	// A run that stopped between the rename and the reload leaves both files.
	content, err := Render(cfg, bindings)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if err := os.WriteFile(cfg.Proxy.ConfigPath+".pending", []byte("x\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(cfg.Proxy.ConfigPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	runner := &mocks.MockRunner{}
	if result := NewGenerator(cfg, runner).Apply(context.Background(), bindings); result.Status != StatusReloaded {
		t.Errorf("Expected reloaded, got %s", result.Status)
	}
	if runner.CallCount() != 1 {
		t.Errorf("Expected 1 reload, got %d", runner.CallCount())
	}
}

func TestApply_NoReloadCommand(t *testing.T) {
	cfg := proxyConfig(t)
	cfg.Proxy.ReloadCommand = []string{}
	runner := &mocks.MockRunner{}

	result := NewGenerator(cfg, runner).Apply(context.Background(), BuildBindings(cfg, scenarioAddresses()))
	if result.Status != StatusWritten || runner.CallCount() != 0 {
		t.Errorf("Expected written without reload, got %+v after %d calls", result, runner.CallCount())
	}
}

func TestApply_UnwritableDirectory(t *testing.T) {
	cfg := proxyConfig(t)
	cfg.Proxy.ConfigPath = filepath.Join(t.TempDir(), "missing", "hairpin.conf")

	result := NewGenerator(cfg, &mocks.MockRunner{}).Apply(context.Background(), nil)
	if result.Status != StatusDegraded || result.Err == nil {
		t.Errorf("Expected degraded-proxy, got %+v", result)
	}
}

func TestCheck(t *testing.T) {
	cfg := proxyConfig(t)
	bindings := BuildBindings(cfg, scenarioAddresses())

	if result := Check(cfg, bindings); result.Status != StatusStale {
		t.Errorf("Expected stale before the first write, got %s", result.Status)
	}

	NewGenerator(cfg, &mocks.MockRunner{}).Apply(context.Background(), bindings)
	if result := Check(cfg, bindings); result.Status != StatusUnchanged {
		t.Errorf("Expected unchanged after the write, got %s", result.Status)
	}

	if result := Check(cfg, bindings[:2]); result.Status != StatusStale {
		t.Errorf("Expected stale when an identity is gone, got %s", result.Status)
	}
}
