package service

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/wpsim/hairpin/src/internal/config"
	"github.com/wpsim/hairpin/src/internal/errors"
	"github.com/wpsim/hairpin/src/internal/log"
)

// ValidationService provides centralized pre-flight validation.
//
// It validates:
//   - the configuration fields and their cross-field rules
//   - the proxy configuration directory
//   - the external commands (warnings only, they may be installed later)
type ValidationService struct {
	lookPath func(file string) (string, error)
}

// NewValidationService creates a new validation service.
func NewValidationService() *ValidationService {
	return &ValidationService{lookPath: exec.LookPath}
}

// ValidateConfig runs all validators and returns the first error encountered.
// Nothing has been mutated when it fails.
func (v *ValidationService) ValidateConfig(cfg *config.Config) error {
	validators := []func(*config.Config) error{
		v.validateFields,
		v.validateProxyDir,
		v.validateCommands,
	}

	for _, validator := range validators {
		if err := validator(cfg); err != nil {
			return err
		}
	}

	return nil
}

func (v *ValidationService) validateFields(cfg *config.Config) error {
	if err := cfg.ValidateConfig(); err != nil {
		return errors.NewValidationError("invalid configuration", err)
	}
	return nil
}

// validateProxyDir checks that the directory of the proxy configuration file
// exists, so the atomic replace can create its temporary file next to it.
func (v *ValidationService) validateProxyDir(cfg *config.Config) error {
	dir := filepath.Dir(cfg.Proxy.ConfigPath)
	info, err := os.Stat(dir)
	if err != nil {
		return errors.NewConfigError(fmt.Sprintf("proxy configuration directory %s is not accessible", dir), err)
	}
	if !info.IsDir() {
		return errors.NewConfigError(fmt.Sprintf("%s is not a directory", dir), nil)
	}
	return nil
}

func (v *ValidationService) validateCommands(cfg *config.Config) error {
	commands := map[string][]string{
		"lease.command":         cfg.Lease.Command,
		"proxy.reload_command":  cfg.Proxy.ReloadCommand,
		"proxy.restart_command": cfg.Proxy.RestartCommand,
	}

	for field, argv := range commands {
		if len(argv) == 0 {
			continue
		}
		if _, err := v.lookPath(argv[0]); err != nil {
			log.Warnf("%s: %s is not installed", field, argv[0])
		}
	}
	return nil
}
