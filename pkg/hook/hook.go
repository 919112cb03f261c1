// Package hook runs local shell commands before and after a stage, for
// example a production build before analyzing or a notification after
// deploying.
package hook

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/paulschiretz/pgl-deploy/pkg/hints"
	"github.com/paulschiretz/pgl-deploy/pkg/plog"
)

var ErrNothingToExecute = hints.New("nothing to execute")
var ErrDisabled = hints.New("hook execution is disabled")

// EnvHookName is set for every hook command to "<pre|post>-<stage>".
const EnvHookName = "PGL_DEPLOY_HOOK"

type HookExecutor struct {
	// commandContext allows mocking os/exec for testing hooks.
	commandContext func(ctx context.Context, name string, arg ...string) *exec.Cmd
}

// NewHookExecutor creates a HookExecutor. Pass exec.CommandContext outside of tests.
func NewHookExecutor(commandContext func(ctx context.Context, name string, arg ...string) *exec.Cmd) *HookExecutor {
	return &HookExecutor{
		commandContext: commandContext,
	}
}

// RunPreHook runs p.PreHookCommands for the named stage.
func (e *HookExecutor) RunPreHook(ctx context.Context, stage string, p *Plan) error {
	return e.run(ctx, "pre", stage, p.PreHookCommands, p)
}

// RunPostHook runs p.PostHookCommands for the named stage.
func (e *HookExecutor) RunPostHook(ctx context.Context, stage string, p *Plan) error {
	return e.run(ctx, "post", stage, p.PostHookCommands, p)
}

func (e *HookExecutor) run(ctx context.Context, when, stage string, commands []string, p *Plan) error {
	if !p.Enabled {
		return ErrDisabled
	}

	if len(commands) == 0 {
		return ErrNothingToExecute
	}

	hookName := when + "-" + strings.ToLower(stage)
	plog.Info("Running hook commands", "hook", hookName)

	for _, hookCommand := range commands {

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if p.DryRun {
			plog.Info("[DRY RUN] Executing command", "command", hookCommand)
			continue
		}
		plog.Info("Executing command", "command", hookCommand)

		cmd := e.createCommand(ctx, hookCommand)
		if cmd.Env == nil {
			cmd.Env = os.Environ()
		}
		cmd.Env = append(cmd.Env, EnvHookName+"="+hookName)

		// Pipe output to our logger for visibility
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			// A cancelled context makes cmd.Run fail too; report the cancellation.
			if errors.Is(ctx.Err(), context.Canceled) {
				return context.Canceled
			}
			if p.FailFast {
				return fmt.Errorf("command '%s' failed: %w", hookCommand, err)
			}
			plog.Warn("Hook command failed", "command", hookCommand, "error", err)
		}
	}
	return nil
}
