package cmd_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/paulschiretz/pgl-deploy/pkg/config"

	"github.com/paulschiretz/pgl-deploy/cmd"
)

func TestPromptForConfirmation(t *testing.T) {
	// Helper to mock stdin/stdout and run the function
	mockPrompt := func(input string, prompt string, defaultYes bool) (bool, string) {
		// Pipe for stdin
		rIn, wIn, _ := os.Pipe()
		// Pipe for stdout
		rOut, wOut, _ := os.Pipe()

		// Save original stdin/stdout
		origStdin := os.Stdin
		origStdout := os.Stdout
		defer func() {
			os.Stdin = origStdin
			os.Stdout = origStdout
		}()

		// Redirect
		os.Stdin = rIn
		os.Stdout = wOut

		// Write input
		go func() {
			_, _ = wIn.WriteString(input)
			_ = wIn.Close()
		}()

		// Run the function
		result := cmd.PromptForConfirmation(prompt, defaultYes)

		// Close writer to read output
		_ = wOut.Close()
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, rOut)

		return result, buf.String()
	}

	tests := []struct {
		name       string
		input      string
		prompt     string
		defaultYes bool
		want       bool
		wantPrompt string
	}{
		{"Explicit Yes", "y\n", "Continue?", false, true, "Continue? [y/N]: "},
		{"Explicit No", "n\n", "Continue?", true, false, "Continue? [Y/n]: "},
		{"Default Yes (Empty)", "\n", "Sure?", true, true, "Sure? [Y/n]: "},
		{"Default No (Empty)", "\n", "Sure?", false, false, "Sure? [y/N]: "},
		{"Case Insensitive", "YES\n", "Go?", false, true, "Go? [y/N]: "},
		{"Whitespace Handling", "   y   \n", "Clean?", false, true, "Clean? [y/N]: "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, output := mockPrompt(tt.input, tt.prompt, tt.defaultYes)
			if got != tt.want {
				t.Errorf("promptForConfirmation() = %v, want %v", got, tt.want)
			}
			if !strings.Contains(output, tt.wantPrompt) {
				t.Errorf("Output = %q, want substring %q", output, tt.wantPrompt)
			}
		})
	}
}

func TestRunInit(t *testing.T) {
	t.Run("Writes JSON with flag values", func(t *testing.T) {
		dir := t.TempDir()
		flagMap := map[string]any{
			"project":     dir,
			"host":        "example.org",
			"remote-path": "/var/www",
			"max-count":   "30%",
		}
		if err := cmd.RunInit(context.Background(), flagMap); err != nil {
			t.Fatalf("RunInit failed: %v", err)
		}

		data, err := os.ReadFile(filepath.Join(dir, config.ConfigFileName))
		if err != nil {
			t.Fatalf("expected config file: %v", err)
		}
		var got config.Config
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("generated config is not valid JSON: %v", err)
		}
		if got.Deploy.Host != "example.org" || got.Deploy.RemotePath != "/var/www" || got.Analyze.MaxCount != "30%" {
			t.Errorf("flag values not written: %+v", got)
		}
		if got.Analyze.BuildDir != "build" {
			t.Errorf("paths must be written as configured, got %q", got.Analyze.BuildDir)
		}
	})

	t.Run("Writes YAML", func(t *testing.T) {
		dir := t.TempDir()
		if err := cmd.RunInit(context.Background(), map[string]any{"project": dir, "yaml": true}); err != nil {
			t.Fatalf("RunInit failed: %v", err)
		}
		if _, err := os.Stat(filepath.Join(dir, config.ConfigFileNameYAML)); err != nil {
			t.Errorf("expected YAML config file: %v", err)
		}
	})

	t.Run("Keeps existing settings", func(t *testing.T) {
		dir := t.TempDir()
		existing := `{"analyze": {"buildDir": "out"}}`
		if err := os.WriteFile(filepath.Join(dir, config.ConfigFileName), []byte(existing), 0644); err != nil {
			t.Fatal(err)
		}
		if err := cmd.RunInit(context.Background(), map[string]any{"project": dir, "port": 2222}); err != nil {
			t.Fatalf("RunInit failed: %v", err)
		}
		loaded, err := config.Load(dir)
		if err != nil {
			t.Fatal(err)
		}
		if loaded.Analyze.BuildDir != "out" || loaded.Deploy.Port != 2222 {
			t.Errorf("expected existing and flag settings, got %+v", loaded)
		}
	})

	t.Run("Dry run writes nothing", func(t *testing.T) {
		dir := t.TempDir()
		if err := cmd.RunInit(context.Background(), map[string]any{"project": dir, "dry-run": true}); err != nil {
			t.Fatalf("RunInit failed: %v", err)
		}
		if _, err := os.Stat(filepath.Join(dir, config.ConfigFileName)); !os.IsNotExist(err) {
			t.Error("dry run must not write a config file")
		}
	})

	t.Run("Invalid settings are rejected", func(t *testing.T) {
		dir := t.TempDir()
		err := cmd.RunInit(context.Background(), map[string]any{"project": dir, "archive-format": "rar"})
		if err == nil {
			t.Fatal("expected a validation error")
		}
		if _, err := os.Stat(filepath.Join(dir, config.ConfigFileName)); !os.IsNotExist(err) {
			t.Error("no config must be written for invalid settings")
		}
	})

	t.Run("Missing project directory", func(t *testing.T) {
		err := cmd.RunInit(context.Background(), map[string]any{"project": filepath.Join(t.TempDir(), "missing")})
		if err == nil {
			t.Fatal("expected an error for a missing project directory")
		}
	})
}

func TestRunAnalyze(t *testing.T) {
	dir := t.TempDir()
	buildDir := filepath.Join(dir, "build")
	if err := os.MkdirAll(filepath.Join(buildDir, "assets"), 0755); err != nil {
		t.Fatal(err)
	}
	for name, content := range map[string]string{"index.html": "<html></html>", "assets/app.js": "console.log(1)"} {
		if err := os.WriteFile(filepath.Join(buildDir, filepath.FromSlash(name)), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	if err := cmd.RunAnalyze(context.Background(), map[string]any{"project": dir, "log-level": "warn"}); err != nil {
		t.Fatalf("RunAnalyze failed: %v", err)
	}
	for _, name := range []string{"buildInfo.json", "report.json", "build.zip"} {
		if _, err := os.Stat(filepath.Join(dir, "buildReport", name)); err != nil {
			t.Errorf("expected %s in the report dir: %v", name, err)
		}
	}
}

func TestRunDeployRequiresHost(t *testing.T) {
	dir := t.TempDir()
	err := cmd.RunDeploy(context.Background(), map[string]any{"project": dir, "log-level": "warn"})
	if err == nil || !strings.Contains(err.Error(), "deploy.host") {
		t.Fatalf("expected a configuration error about the host, got %v", err)
	}
}
