package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/paulschiretz/pgl-deploy/pkg/buildinfo"
	"github.com/paulschiretz/pgl-deploy/pkg/config"
	"github.com/paulschiretz/pgl-deploy/pkg/flagparse"
	"github.com/paulschiretz/pgl-deploy/pkg/plog"
)

// RunInit handles the logic for the 'init' command.
func RunInit(ctx context.Context, flagMap map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	projectDir := "."
	if p, ok := flagMap["project"].(string); ok && p != "" {
		projectDir = p
	}

	absProjectDir, err := filepath.Abs(projectDir)
	if err != nil {
		return fmt.Errorf("could not determine absolute project path for %s: %w", projectDir, err)
	}
	if info, err := os.Stat(absProjectDir); err != nil || !info.IsDir() {
		return fmt.Errorf("project directory %s does not exist or is not a directory", absProjectDir)
	}

	asYAML, _ := flagMap["yaml"].(bool)
	initDefault, _ := flagMap["default"].(bool)
	force, _ := flagMap["force"].(bool)

	var baseConfig config.Config
	if initDefault {
		if !force {
			if existing := existingConfigFile(absProjectDir); existing != "" {
				fmt.Printf("WARNING: Configuration file already exists at %s.\n", existing)
				fmt.Printf("Using -default will overwrite it with default values. All custom settings will be lost.\n")
				if !PromptForConfirmation("Are you sure you want to continue?", false) {
					plog.Info(buildinfo.Name + " init operation canceled.")
					return nil
				}
			}
		}
		baseConfig = config.NewDefault()
	} else {
		// Try to load existing config to preserve settings.
		// Note: config.Load returns NewDefault() if the file simply doesn't exist.
		baseConfig, err = config.Load(absProjectDir)
		if err != nil {
			plog.Warn("Could not load existing configuration, starting with defaults.", "reason", err)
			baseConfig = config.NewDefault()
		}
	}

	// Create a config from base merged with user flags.
	runConfig := config.MergeConfigWithFlags(flagparse.Init, baseConfig, flagMap)
	runConfig.Runtime.ProjectDir = absProjectDir

	// Validate a copy; Validate resolves paths and the file keeps them as written.
	check := runConfig
	if err := check.Validate(flagparse.Init); err != nil {
		return err
	}

	startTime := time.Now()

	if runConfig.Runtime.DryRun {
		plog.Info("[DRY RUN] Would write configuration", "project", absProjectDir, "yaml", asYAML)
		return nil
	}

	if _, err := config.Generate(runConfig, asYAML); err != nil {
		return fmt.Errorf("failed to generate config file: %w", err)
	}

	duration := time.Since(startTime).Round(time.Millisecond)
	plog.Info(buildinfo.Name+" project successfully initialized.", "duration", duration)
	return nil
}

// existingConfigFile returns the path of a config file in dir, or "".
func existingConfigFile(dir string) string {
	for _, name := range []string{config.ConfigFileName, config.ConfigFileNameYAML} {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// PromptForConfirmation prompts the user for a yes/no response.
func PromptForConfirmation(prompt string, defaultYes bool) bool {
	suffix := "[y/N]"
	if defaultYes {
		suffix = "[Y/n]"
	}
	fmt.Printf("%s %s: ", prompt, suffix)

	var response string
	_, _ = fmt.Scanln(&response)
	response = strings.ToLower(strings.TrimSpace(response))

	if response == "" {
		return defaultYes
	}
	return response == "y" || response == "yes"
}
