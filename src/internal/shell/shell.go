// Package shell runs the external commands hairpin delegates to: the lease
// client and the proxy reload/restart commands.
package shell

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/valyala/fasttemplate"

	"github.com/wpsim/hairpin/src/internal/log"
)

// Runner executes a command line and returns its standard output.
type Runner interface {
	Run(ctx context.Context, argv []string) (string, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

func (r *ExecRunner) Run(ctx context.Context, argv []string) (string, error) {
	if len(argv) == 0 {
		return "", fmt.Errorf("empty command")
	}

	log.Debugf("Running command [%s]", strings.Join(argv, " "))
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return stdout.String(), fmt.Errorf("command %q failed: %w: %s", argv[0], err, msg)
		}
		return stdout.String(), fmt.Errorf("command %q failed: %w", argv[0], err)
	}

	return stdout.String(), nil
}

// Render substitutes {{var}} placeholders in every argument.
// Unknown variables are replaced with an empty string.
func Render(argv []string, vars map[string]interface{}) []string {
	out := make([]string, len(argv))
	for i, part := range argv {
		out[i] = RenderString(part, vars)
	}
	return out
}

// RenderString substitutes {{var}} placeholders in s.
func RenderString(s string, vars map[string]interface{}) string {
	if !strings.Contains(s, "{{") {
		return s
	}
	return fasttemplate.New(s, "{{", "}}").ExecuteString(vars)
}
