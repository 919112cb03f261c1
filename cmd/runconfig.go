package cmd

import (
	"fmt"

	"github.com/paulschiretz/pgl-deploy/pkg/config"
	"github.com/paulschiretz/pgl-deploy/pkg/flagparse"
	"github.com/paulschiretz/pgl-deploy/pkg/plog"
)

// loadRunConfig resolves the configuration for command: defaults, the
// project's config file, the environment and finally the flags.
func loadRunConfig(command flagparse.Command, flagMap map[string]any) (config.Config, error) {
	projectDir := "."
	if p, ok := flagMap["project"].(string); ok && p != "" {
		projectDir = p
	}

	loadedConfig, err := config.Load(projectDir)
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to load configuration: %w", err)
	}

	envConfig, err := config.ApplyEnv(loadedConfig)
	if err != nil {
		return config.Config{}, err
	}

	// Merge the flag values over the loaded config to get the final run config.
	runConfig := config.MergeConfigWithFlags(command, envConfig, flagMap)

	// CRITICAL: Validate the config for the run
	if err := runConfig.Validate(command); err != nil {
		return config.Config{}, err
	}

	// Set the global log level based on the final configuration.
	level, err := plog.LevelFromString(runConfig.LogLevel)
	if err != nil {
		return config.Config{}, err
	}
	plog.SetLevel(level)
	plog.SetQuiet(runConfig.Runtime.Quiet)

	runConfig.LogSummary(command)
	return runConfig, nil
}
