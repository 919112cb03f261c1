package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/paulschiretz/pgl-deploy/pkg/flagparse"
)

func newValidDeployConfig(t *testing.T) Config {
	t.Helper()
	cfg := NewDefault()
	cfg.Runtime.ProjectDir = t.TempDir()
	cfg.Deploy.Host = "example.org"
	cfg.Deploy.Username = "deploy"
	cfg.Deploy.Password = "secret"
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	t.Run("Defaults are valid for analyze", func(t *testing.T) {
		cfg := NewDefault()
		cfg.Runtime.ProjectDir = t.TempDir()
		if err := cfg.Validate(flagparse.Analyze); err != nil {
			t.Fatalf("expected defaults to pass validation, but got error: %v", err)
		}
		if want := filepath.Join(cfg.Runtime.ProjectDir, "build"); cfg.Analyze.BuildDir != want {
			t.Errorf("expected build dir to be resolved to %s, got %s", want, cfg.Analyze.BuildDir)
		}
	})

	t.Run("Valid deploy config", func(t *testing.T) {
		cfg := newValidDeployConfig(t)
		if err := cfg.Validate(flagparse.Deploy); err != nil {
			t.Fatalf("expected valid config to pass validation, but got error: %v", err)
		}
		if want := filepath.Join(cfg.Runtime.ProjectDir, "dist"); cfg.Deploy.LocalPath != want {
			t.Errorf("expected local path %s, got %s", want, cfg.Deploy.LocalPath)
		}
	})

	tests := []struct {
		name    string
		command flagparse.Command
		mutate  func(c *Config)
	}{
		{"Empty build dir", flagparse.Analyze, func(c *Config) { c.Analyze.BuildDir = "" }},
		{"Empty report dir", flagparse.Deploy, func(c *Config) { c.Analyze.ReportDir = "" }},
		{"Invalid log level", flagparse.Analyze, func(c *Config) { c.LogLevel = "loud" }},
		{"Invalid hash algorithm", flagparse.Analyze, func(c *Config) { c.Analyze.HashAlgorithm = "md5" }},
		{"Invalid max count", flagparse.Analyze, func(c *Config) { c.Analyze.MaxCount = "many" }},
		{"Invalid oversize threshold", flagparse.Analyze, func(c *Config) { c.Analyze.OverSizeThreshold = "big" }},
		{"Invalid size spec", flagparse.Analyze, func(c *Config) { c.Analyze.FileSizeSpec = "metric" }},
		{"Threshold above one", flagparse.Analyze, func(c *Config) { c.Analyze.DeployThreshold = 1.5 }},
		{"Negative weight", flagparse.Analyze, func(c *Config) { c.Analyze.CacheWeights.Size = -1 }},
		{"Zero workers", flagparse.Analyze, func(c *Config) { c.Analyze.Workers = 0 }},
		{"Invalid archive format", flagparse.Analyze, func(c *Config) { c.Analyze.Archive.Format = "rar" }},
		{"Invalid glob", flagparse.Analyze, func(c *Config) { c.Analyze.UserExcludeFiles = []string{"["} }},
		{"Invalid include pattern", flagparse.Analyze, func(c *Config) { c.Analyze.IncludePatterns = []string{"(app"} }},
		{"Invalid min file size", flagparse.Analyze, func(c *Config) { c.Analyze.MinFileSize = "tiny" }},
		{"Max file size below min", flagparse.Analyze, func(c *Config) { c.Analyze.MinFileSize, c.Analyze.MaxFileSize = "2mb", "1mb" }},
		{"Invalid modified after", flagparse.Analyze, func(c *Config) { c.Analyze.ModifiedAfter = "2024-01-01" }},
		{"Modified range reversed", flagparse.Analyze, func(c *Config) {
			c.Analyze.ModifiedAfter, c.Analyze.ModifiedBefore = "2024-06-01T00:00:00Z", "2024-01-01T00:00:00Z"
		}},
		{"Missing host", flagparse.Deploy, func(c *Config) { c.Deploy.Host = "" }},
		{"Missing username", flagparse.Deploy, func(c *Config) { c.Deploy.Username = "" }},
		{"Missing credentials", flagparse.Deploy, func(c *Config) { c.Deploy.Password = "" }},
		{"Missing remote path", flagparse.Deploy, func(c *Config) { c.Deploy.RemotePath = "" }},
		{"Invalid port", flagparse.Deploy, func(c *Config) { c.Deploy.Port = 0 }},
		{"Negative retry times", flagparse.Deploy, func(c *Config) { c.Deploy.RetryTimes = -1 }},
		{"Negative retry delay", flagparse.Deploy, func(c *Config) { c.Deploy.RetryDelayMillis = -5 }},
		{"Invalid backoff", flagparse.Deploy, func(c *Config) { c.Deploy.RetryBackoff = "random" }},
		{"Zero upload workers", flagparse.Deploy, func(c *Config) { c.Deploy.UploadWorkers = 0 }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := newValidDeployConfig(t)
			tc.mutate(&cfg)
			err := cfg.Validate(tc.command)
			if err == nil {
				t.Fatal("expected a validation error, but got nil")
			}
			if !errors.Is(err, ErrConfiguration) {
				t.Errorf("expected error to wrap ErrConfiguration, got: %v", err)
			}
		})
	}

	t.Run("Private key instead of password", func(t *testing.T) {
		cfg := newValidDeployConfig(t)
		cfg.Deploy.Password = ""
		cfg.Deploy.PrivateKeyPath = "keys/id_ed25519"
		if err := cfg.Validate(flagparse.Deploy); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if want := filepath.Join(cfg.Runtime.ProjectDir, "keys", "id_ed25519"); cfg.Deploy.PrivateKeyPath != want {
			t.Errorf("expected key path %s, got %s", want, cfg.Deploy.PrivateKeyPath)
		}
	})
}

func TestLoad(t *testing.T) {
	t.Run("No config file returns defaults", func(t *testing.T) {
		dir := t.TempDir()
		cfg, err := Load(dir)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Analyze.BuildDir != "build" || cfg.Runtime.ProjectDir != dir {
			t.Errorf("expected defaults with project dir, got %+v", cfg)
		}
	})

	t.Run("JSON overrides defaults", func(t *testing.T) {
		dir := t.TempDir()
		content := `{"analyze": {"buildDir": "out", "maxCount": "30%"}, "deploy": {"host": "example.org"}}`
		if err := os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
		cfg, err := Load(dir)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Analyze.BuildDir != "out" || cfg.Analyze.MaxCount != "30%" || cfg.Deploy.Host != "example.org" {
			t.Errorf("file values not applied: %+v", cfg.Analyze)
		}
		if cfg.Analyze.MinCount != "10" || cfg.Deploy.Port != 22 {
			t.Errorf("missing fields lost their defaults: %+v", cfg)
		}
	})

	t.Run("YAML is used when no JSON exists", func(t *testing.T) {
		dir := t.TempDir()
		content := "analyze:\n  reportDir: reports\n  cacheWeights:\n    size: 1\n    modify: 9\ndeploy:\n  remotePath: /var/www\n"
		if err := os.WriteFile(filepath.Join(dir, ConfigFileNameYAML), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
		cfg, err := Load(dir)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Analyze.ReportDir != "reports" || cfg.Deploy.RemotePath != "/var/www" {
			t.Errorf("yaml values not applied: %+v", cfg)
		}
		if cfg.Analyze.CacheWeights.Size != 1 || cfg.Analyze.CacheWeights.Modify != 9 {
			t.Errorf("unexpected weights: %+v", cfg.Analyze.CacheWeights)
		}
	})

	t.Run("Malformed JSON", func(t *testing.T) {
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, ConfigFileName), []byte("{"), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(dir); err == nil {
			t.Error("expected a parse error")
		}
	})
}

func TestApplyEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := "PGL_DEPLOY_HOST=from-file.example.org\nPGL_DEPLOY_PASSWORD=file-secret\nPGL_DEPLOY_PORT=2222\nOTHER=ignored\n"
	if err := os.WriteFile(filepath.Join(dir, EnvFileName), []byte(envFile), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PGL_DEPLOY_HOST", "from-env.example.org")

	cfg := NewDefault()
	cfg.Runtime.ProjectDir = dir
	cfg, err := ApplyEnv(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Deploy.Host != "from-env.example.org" {
		t.Errorf("process environment must win over .env, got %q", cfg.Deploy.Host)
	}
	if cfg.Deploy.Password != "file-secret" || cfg.Deploy.Port != 2222 {
		t.Errorf(".env values not applied: %+v", cfg.Deploy)
	}
	if _, ok := os.LookupEnv("PGL_DEPLOY_PASSWORD"); ok {
		t.Error(".env must not leak into the process environment")
	}

	t.Setenv("PGL_DEPLOY_PORT", "ssh")
	if _, err := ApplyEnv(cfg); !errors.Is(err, ErrConfiguration) {
		t.Errorf("expected configuration error for a non-numeric port, got %v", err)
	}
}

func TestGenerate(t *testing.T) {
	for _, asYAML := range []bool{false, true} {
		cfg := NewDefault()
		cfg.Runtime.ProjectDir = t.TempDir()
		cfg.Deploy.Host = "example.org"
		cfg.Deploy.Password = "secret"

		path, err := Generate(cfg, asYAML)
		if err != nil {
			t.Fatalf("Generate(yaml=%v) failed: %v", asYAML, err)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if strings.Contains(string(data), "secret") {
			t.Errorf("generated config must not contain the password:\n%s", data)
		}

		loaded, err := Load(cfg.Runtime.ProjectDir)
		if err != nil {
			t.Fatalf("failed to load generated config: %v", err)
		}
		if loaded.Deploy.Host != "example.org" || loaded.Analyze.MaxCount != "20%" {
			t.Errorf("generated config did not round trip: %+v", loaded)
		}
	}
}

func TestMergeConfigWithFlags(t *testing.T) {
	base := NewDefault()
	flags := map[string]any{
		"build-dir":        "out",
		"deploy-threshold": 0.25,
		"exclude-files":    []string{"*.map"},
		"host":             "example.org",
		"retry-times":      3,
		"auto-backup":      true,
		"dry-run":          true,
	}
	merged := MergeConfigWithFlags(flagparse.Deploy, base, flags)

	if merged.Analyze.BuildDir != "out" || merged.Analyze.DeployThreshold != 0.25 {
		t.Errorf("analyze flags not merged: %+v", merged.Analyze)
	}
	if len(merged.Analyze.UserExcludeFiles) != 1 || merged.Analyze.UserExcludeFiles[0] != "*.map" {
		t.Errorf("exclude flags not merged: %v", merged.Analyze.UserExcludeFiles)
	}
	if merged.Deploy.Host != "example.org" || merged.Deploy.RetryTimes != 3 || !merged.Deploy.AutoBackup {
		t.Errorf("deploy flags not merged: %+v", merged.Deploy)
	}
	if !merged.Runtime.DryRun {
		t.Error("dry-run not merged")
	}
	if base.Analyze.BuildDir != "build" {
		t.Error("base config must not be modified")
	}
}

func TestExcludeFilesMergesDefaults(t *testing.T) {
	a := NewDefault().Analyze
	a.UserExcludeFiles = []string{"*.map", "*.gz"}
	got := a.ExcludeFiles()
	if strings.Join(got, ",") != "*.gz,*.map,.DS_Store,Thumbs.db" {
		t.Errorf("unexpected merged excludes: %v", got)
	}
}
