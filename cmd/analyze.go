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

// RunAnalyze handles the logic for the 'analyze' command.
func RunAnalyze(ctx context.Context, flagMap map[string]any) error {
	runConfig, err := loadRunConfig(flagparse.Analyze, flagMap)
	if err != nil {
		return err
	}

	// Get the Plan
	analyzePlan, err := planner.GenerateAnalyzePlan(runConfig)
	if err != nil {
		return err
	}

	runner := engine.NewRunner(hook.NewHookExecutor(exec.CommandContext), remote.SSHDialer{})

	// Execute the plan
	startTime := time.Now()
	err = runner.ExecuteAnalyze(ctx, analyzePlan)
	duration := time.Since(startTime).Round(time.Millisecond)
	if err != nil {
		return err // The error will be logged with full details by main()
	}
	plog.Info(buildinfo.Name+" analyze finished successfully.", "duration", duration)
	return nil
}
