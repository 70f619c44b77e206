package commands

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"

	"github.com/wpsim/hairpin/src/internal/config"
	"github.com/wpsim/hairpin/src/internal/domain"
	"github.com/wpsim/hairpin/src/internal/log"
	"github.com/wpsim/hairpin/src/internal/service"
	"github.com/wpsim/hairpin/src/internal/utils"
)

type Runner interface {
	Init(args []string, globalArgs *AppContext) error
	Run() error
	Name() string
}

type AppContext struct {
	ConfigPath string
	Verbose    bool
}

// ExitError carries the process exit code of a finished run.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExitCode maps a command error to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return service.ExitSuccess
	}
	var exitErr *ExitError
	if stderrors.As(err, &exitErr) {
		return exitErr.Code
	}
	return service.ExitFatal
}

// loadAndValidateConfigOrFail loads configuration from file and validates it.
func loadAndValidateConfigOrFail(configPath string) (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := cfg.ValidateConfig(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// newRoutingService wires the service to the live kernel.
func newRoutingService(cfg *config.Config) (*service.RoutingService, error) {
	deps, err := domain.NewAppDependencies(cfg)
	if err != nil {
		return nil, err
	}
	return service.NewRoutingService(deps, service.NewValidationService()), nil
}

// withRunLock runs fn while holding the host run lock.
func withRunLock(cfg *config.Config, fn func() error) error {
	lock, err := utils.TryLock(cfg.General.LockFile)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			log.Warnf("Failed to release run lock %s: %v", cfg.General.LockFile, err)
		}
	}()

	return fn()
}

// reportError converts a finished report into the command result.
func reportError(report *service.Report) error {
	switch report.ExitCode() {
	case service.ExitSuccess:
		return nil
	case service.ExitFatal:
		err := report.Err()
		if err == nil {
			err = stderrors.New(report.Error)
		}
		return &ExitError{Code: service.ExitFatal, Err: err}
	default:
		degraded := 0
		for _, ir := range report.Identities {
			if ir.Status.IsDegraded() || ir.Status == service.StatusPending {
				degraded++
			}
		}
		return &ExitError{
			Code: report.ExitCode(),
			Err:  fmt.Errorf("%d of %d identities not converged", degraded, len(report.Identities)),
		}
	}
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
