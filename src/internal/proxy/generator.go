package proxy

import (
	"context"
	"fmt"
	"os"

	"github.com/wpsim/hairpin/src/internal/config"
	"github.com/wpsim/hairpin/src/internal/errors"
	"github.com/wpsim/hairpin/src/internal/hashing"
	"github.com/wpsim/hairpin/src/internal/log"
	"github.com/wpsim/hairpin/src/internal/shell"
	"github.com/wpsim/hairpin/src/internal/utils"
)

// Status is the outcome of applying the proxy configuration.
type Status string

const (
	StatusUnchanged Status = "unchanged"
	// StatusWritten means the file changed and no reload command is configured.
	StatusWritten   Status = "written"
	StatusReloaded  Status = "reloaded"
	StatusRestarted Status = "restarted"
	StatusDegraded  Status = "degraded-proxy"
	// StatusStale is reported by Check when the live file differs from the bindings.
	StatusStale     Status = "stale"
)

// Result describes one Apply.
type Result struct {
	Status   Status `json:"status"`
	Path     string `json:"path"`
	Checksum string `json:"checksum"`
	Bindings int    `json:"bindings"`
	Err      error  `json:"-"`
}

// Changed reports whether the live configuration file was replaced.
func (r Result) Changed() bool {
	return r.Status != StatusUnchanged
}

// Generator writes the binding table and signals the proxy.
type Generator struct {
	cfg    *config.Config
	runner shell.Runner
}

func NewGenerator(cfg *config.Config, runner shell.Runner) *Generator {
	return &Generator{cfg: cfg, runner: runner}
}

// Apply replaces the proxy configuration file when its content differs from
// the rendered bindings, then reloads the proxy.
//
// A reload is retried once, then the restart command is tried. Failures are
// reported as StatusDegraded with a PROXY_RELOAD error, never as fatal.
//
// A marker file next to the configuration records a write the proxy has not
// accepted yet. While it exists, a matching live file is reloaded again
// instead of being reported as unchanged.
func (g *Generator) Apply(ctx context.Context, bindings []Binding) Result {
	path := g.cfg.Proxy.ConfigPath
	result := Result{Path: path, Bindings: len(bindings), Status: StatusDegraded}

	content, err := Render(g.cfg, bindings)
	if err != nil {
		result.Err = errors.NewProxyReloadError("failed to render proxy configuration", err)
		return result
	}
	result.Checksum = hashing.BytesChecksum([]byte(content))

	live, exists, err := hashing.FileChecksum(path)
	if err != nil {
		log.Warnf("Failed to read %s, it will be rewritten: %v", path, err)
	}
	upToDate := exists && live == result.Checksum
	pending := reloadPending(path)

	if upToDate && !pending {
		log.Debugf("Proxy configuration %s is up to date (%s)", path, result.Checksum)
		result.Status = StatusUnchanged
		return result
	}

	if upToDate {
		log.Infof("Proxy configuration %s was written but never reloaded, reloading", path)
	} else {
		if err := utils.WriteFileAtomic(pendingPath(path), []byte(result.Checksum+"\n"), 0644); err != nil {
			result.Err = errors.NewProxyReloadError("failed to mark "+path+" as pending", err)
			return result
		}

		log.Infof("Writing proxy configuration with %d bindings to %s", len(bindings), path)
		if err := utils.WriteFileAtomic(path, []byte(content), 0644); err != nil {
			result.Err = errors.NewProxyReloadError("failed to write "+path, err)
			return result
		}
	}

	result.Status, result.Err = g.reload(ctx)
	if result.Err == nil {
		if err := os.Remove(pendingPath(path)); err != nil && !os.IsNotExist(err) {
			log.Warnf("Failed to clear pending reload marker: %v", err)
		}
	}
	return result
}

func pendingPath(path string) string {
	return path + ".pending"
}

func reloadPending(path string) bool {
	_, err := os.Stat(pendingPath(path))
	return err == nil
}

// Check compares the live configuration file with the rendered bindings
// without writing anything. A write the proxy never accepted counts as stale.
func Check(cfg *config.Config, bindings []Binding) Result {
	result := Result{Path: cfg.Proxy.ConfigPath, Bindings: len(bindings), Status: StatusStale}

	content, err := Render(cfg, bindings)
	if err != nil {
		result.Err = err
		return result
	}
	result.Checksum = hashing.BytesChecksum([]byte(content))

	live, exists, err := hashing.FileChecksum(cfg.Proxy.ConfigPath)
	if err != nil {
		result.Err = err
		return result
	}
	if exists && live == result.Checksum && !reloadPending(cfg.Proxy.ConfigPath) {
		result.Status = StatusUnchanged
	}
	return result
}

func (g *Generator) reload(ctx context.Context) (Status, error) {
	proxy := g.cfg.Proxy
	if len(proxy.ReloadCommand) == 0 {
		return StatusWritten, nil
	}

	var lastErr error
	for attempt := 1; attempt <= 2; attempt++ {
		if lastErr = g.run(ctx, proxy.ReloadCommand); lastErr == nil {
			log.Infof("Proxy reloaded")
			return StatusReloaded, nil
		}
		log.Warnf("Proxy reload attempt %d failed: %v", attempt, lastErr)
	}

	if len(proxy.RestartCommand) > 0 {
		log.Warnf("Falling back to proxy restart")
		if lastErr = g.run(ctx, proxy.RestartCommand); lastErr == nil {
			return StatusRestarted, nil
		}
	}

	log.Errorf("Proxy did not accept the new configuration: %v", lastErr)
	return StatusDegraded, errors.NewProxyReloadError("proxy reload failed", lastErr)
}

// run bounds one command by the reload timeout.
func (g *Generator) run(ctx context.Context, argv []string) error {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.ReloadTimeout())
	defer cancel()

	argv = shell.Render(argv, map[string]interface{}{
		config.TMPL_CONFIG_PATH: g.cfg.Proxy.ConfigPath,
	})
	if _, err := g.runner.Run(ctx, argv); err != nil {
		return fmt.Errorf("%v: %w", argv, err)
	}
	return nil
}
