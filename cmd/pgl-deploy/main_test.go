package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestRun(t *testing.T) {
	t.Run("No arguments prints usage", func(t *testing.T) {
		if err := run(context.Background(), nil); err != nil {
			t.Errorf("expected nil error, got %v", err)
		}
	})

	t.Run("Version", func(t *testing.T) {
		if err := run(context.Background(), []string{"version"}); err != nil {
			t.Errorf("expected nil error, got %v", err)
		}
	})

	t.Run("Help flag", func(t *testing.T) {
		if err := run(context.Background(), []string{"analyze", "-h"}); err != nil {
			t.Errorf("expected nil error for -h, got %v", err)
		}
	})

	t.Run("Unknown command", func(t *testing.T) {
		if err := run(context.Background(), []string{"backup"}); err == nil {
			t.Error("expected an error for an unknown command")
		}
	})

	t.Run("Unknown flag", func(t *testing.T) {
		if err := run(context.Background(), []string{"analyze", "-source", "x"}); err == nil {
			t.Error("expected an error for an unknown flag")
		}
	})

	t.Run("Init then analyze", func(t *testing.T) {
		dir := t.TempDir()
		if err := os.MkdirAll(filepath.Join(dir, "build"), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, "build", "index.html"), []byte("hello"), 0644); err != nil {
			t.Fatal(err)
		}
		if err := run(context.Background(), []string{"init", "-project", dir}); err != nil {
			t.Fatalf("init failed: %v", err)
		}
		if err := run(context.Background(), []string{"analyze", "-project", dir, "-log-level", "warn"}); err != nil {
			t.Fatalf("analyze failed: %v", err)
		}
		if _, err := os.Stat(filepath.Join(dir, "buildReport", "report.json")); err != nil {
			t.Errorf("expected a report: %v", err)
		}
	})
}
