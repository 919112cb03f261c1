package cmd

import (
	"context"
	"os/exec"
	"time"

	"github.com/paulschiretz/pgl-deploy/pkg/buildinfo"
	"github.com/paulschiretz/pgl-deploy/pkg/engine"
	"github.com/paulschiretz/pgl-deploy/pkg/flagparse"
	"github.com/paulschiretz/pgl-deploy/pkg/hook"
	"github.com/paulschiretz/pgl-deploy/pkg/planner"
	"github.com/paulschiretz/pgl-deploy/pkg/plog"
	"github.com/paulschiretz/pgl-deploy/pkg/remote"
)

// RunDeploy handles the logic for the 'deploy' command.
func RunDeploy(ctx context.Context, flagMap map[string]any) error {
	runConfig, err := loadRunConfig(flagparse.Deploy, flagMap)
	if err != nil {
		return err
	}

	deployPlan, err := planner.GenerateDeployPlan(runConfig)
	if err != nil {
		return err
	}

	runner := engine.NewRunner(hook.NewHookExecutor(exec.CommandContext), remote.SSHDialer{})

	startTime := time.Now()
	err = runner.ExecuteDeploy(ctx, deployPlan)
	duration := time.Since(startTime).Round(time.Millisecond)
	if err != nil {
		return err
	}
	plog.Info(buildinfo.Name+" deploy finished successfully.", "duration", duration)
	return nil
}
