package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/paulschiretz/pgl-deploy/pkg/analysis"
	"github.com/paulschiretz/pgl-deploy/pkg/buildinfo"
	"github.com/paulschiretz/pgl-deploy/pkg/fingerprint"
	"github.com/paulschiretz/pgl-deploy/pkg/flagparse"
	"github.com/paulschiretz/pgl-deploy/pkg/packager"
	"github.com/paulschiretz/pgl-deploy/pkg/plog"
	"github.com/paulschiretz/pgl-deploy/pkg/retry"
	"github.com/paulschiretz/pgl-deploy/pkg/sizespec"
	"github.com/paulschiretz/pgl-deploy/pkg/util"
)

// ConfigFileName is the name of the JSON configuration file in the project directory.
const ConfigFileName = "pgl-deploy.config.json"

// ConfigFileNameYAML is the YAML alternative, used when no JSON file exists.
const ConfigFileNameYAML = "pgl-deploy.config.yaml"

// EnvFileName holds credentials next to the configuration file.
const EnvFileName = ".env"

// EnvPrefix prefixes every environment variable read by ApplyEnv.
const EnvPrefix = "PGL_DEPLOY_"

// ErrConfiguration wraps every validation failure.
var ErrConfiguration = errors.New("configuration error")

type ArchiveConfig struct {
	Format string `json:"format" yaml:"format"`
	Level  string `json:"level" yaml:"level"`
}

type AnalyzeConfig struct {
	BuildDir  string `json:"buildDir" yaml:"buildDir"`
	ReportDir string `json:"reportDir" yaml:"reportDir"`

	DefaultExcludeFiles []string `json:"defaultExcludeFiles,omitempty" yaml:"defaultExcludeFiles,omitempty"`
	// Note: omitempty is intentionally not used for user-configurable slices
	// so that they appear in the generated config file for better discoverability.
	UserExcludeFiles  []string `json:"userExcludeFiles" yaml:"userExcludeFiles"`
	IncludeExtensions []string `json:"includeExtensions" yaml:"includeExtensions"`
	// IncludePatterns are regular expressions matched against file base
	// names. When set, a file must match at least one of them.
	IncludePatterns     []string `json:"includePatterns" yaml:"includePatterns"`
	ExcludeNameContains []string `json:"excludeNameContains" yaml:"excludeNameContains"`
	// MinFileSize and MaxFileSize accept sizes like "1kb" or "5MiB". Empty
	// leaves that side open.
	MinFileSize string `json:"minFileSize" yaml:"minFileSize"`
	MaxFileSize string `json:"maxFileSize" yaml:"maxFileSize"`
	// ModifiedAfter and ModifiedBefore are RFC 3339 timestamps.
	ModifiedAfter  string `json:"modifiedAfter" yaml:"modifiedAfter"`
	ModifiedBefore string `json:"modifiedBefore" yaml:"modifiedBefore"`

	HashAlgorithm     string           `json:"hashAlgorithm" yaml:"hashAlgorithm"`
	MaxCount          string           `json:"maxCount" yaml:"maxCount"`
	MinCount          string           `json:"minCount" yaml:"minCount"`
	OverSizeThreshold string           `json:"overSizeThreshold" yaml:"overSizeThreshold"`
	FileSizeSpec      string           `json:"fileSizeSpec" yaml:"fileSizeSpec"`
	DeployThreshold   float64          `json:"deployThreshold" yaml:"deployThreshold"`
	CacheWeights      analysis.Weights `json:"cacheWeights" yaml:"cacheWeights"`
	Archive           ArchiveConfig    `json:"archive" yaml:"archive"`
	Workers           int              `json:"workers" yaml:"workers"`
	BufferSizeKB      int              `json:"bufferSizeKB" yaml:"bufferSizeKB"`
}

type DeployConfig struct {
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Username string `json:"username" yaml:"username"`
	// Password and Passphrase are normally supplied through the environment
	// and never written by Generate.
	Password              string `json:"password,omitempty" yaml:"password,omitempty"`
	PrivateKeyPath        string `json:"privateKeyPath" yaml:"privateKeyPath"`
	Passphrase            string `json:"passphrase,omitempty" yaml:"passphrase,omitempty"`
	KnownHostsPath        string `json:"knownHostsPath" yaml:"knownHostsPath"`
	InsecureIgnoreHostKey bool   `json:"insecureIgnoreHostKey" yaml:"insecureIgnoreHostKey"`

	LocalPath  string   `json:"localPath" yaml:"localPath"`
	RemotePath string   `json:"remotePath" yaml:"remotePath"`
	Exclude    []string `json:"exclude" yaml:"exclude"`

	PreScript  string `json:"preScript" yaml:"preScript"`
	PostScript string `json:"postScript" yaml:"postScript"`
	AutoBackup bool   `json:"autoBackup" yaml:"autoBackup"`
	Compress   bool   `json:"compress" yaml:"compress"`
	DiffUpload bool   `json:"diffUpload" yaml:"diffUpload"`

	RetryTimes            int    `json:"retryTimes" yaml:"retryTimes"`
	RetryDelayMillis      int    `json:"retryDelayMillis" yaml:"retryDelayMillis"`
	RetryBackoff          string `json:"retryBackoff" yaml:"retryBackoff"`
	UploadWorkers         int    `json:"uploadWorkers" yaml:"uploadWorkers"`
	ConnectTimeoutSeconds int    `json:"connectTimeoutSeconds" yaml:"connectTimeoutSeconds"`
}

type HooksConfig struct {
	// Note: omitempty is intentionally not used so that the hook fields
	// appear in the generated config file for better discoverability.
	// SECURITY: These commands are executed as provided. Ensure they are from a trusted source.
	PreAnalyze  []string `json:"preAnalyze" yaml:"preAnalyze"`
	PostAnalyze []string `json:"postAnalyze" yaml:"postAnalyze"`
	PreDeploy   []string `json:"preDeploy" yaml:"preDeploy"`
	PostDeploy  []string `json:"postDeploy" yaml:"postDeploy"`
}

type RuntimeConfig struct {
	ProjectDir string
	DryRun     bool
	Quiet      bool
}

type Config struct {
	Version  string        `json:"version" yaml:"version"`
	LogLevel string        `json:"logLevel" yaml:"logLevel"`
	Metrics  bool          `json:"metrics" yaml:"metrics"`
	FailFast bool          `json:"failFast" yaml:"failFast"`
	Runtime  RuntimeConfig `json:"-" yaml:"-"` // Never added to config file
	Analyze  AnalyzeConfig `json:"analyze" yaml:"analyze"`
	Deploy   DeployConfig  `json:"deploy" yaml:"deploy"`
	Hooks    HooksConfig   `json:"hooks" yaml:"hooks"`
}

// NewDefault returns a Config with sensible default values.
func NewDefault() Config {
	return Config{
		Version:  buildinfo.Version,
		LogLevel: "info",
		Metrics:  false,
		Runtime: RuntimeConfig{
			ProjectDir: ".",
		},
		Analyze: AnalyzeConfig{
			BuildDir:  "build",
			ReportDir: "buildReport",
			DefaultExcludeFiles: []string{
				"*.gz",      // Precompressed variants are regenerated from their sources
				".DS_Store", // macOS folder customization file
				"Thumbs.db", // Windows image thumbnail cache
			},
			UserExcludeFiles:    []string{},
			IncludeExtensions:   []string{},
			IncludePatterns:     []string{},
			ExcludeNameContains: []string{},
			HashAlgorithm:       string(fingerprint.SHA256),
			MaxCount:            "20%",
			MinCount:            "10",
			OverSizeThreshold:   "300kb",
			FileSizeSpec:        sizespec.SI,
			DeployThreshold:     analysis.DefaultDeployThreshold,
			CacheWeights:        analysis.DefaultWeights,
			Archive: ArchiveConfig{
				Format: string(packager.Zip),
				Level:  string(packager.Best),
			},
			Workers:      8,
			BufferSizeKB: 256,
		},
		Deploy: DeployConfig{
			Port:                  22,
			LocalPath:             "./dist",
			RemotePath:            "/home/dist",
			Exclude:               []string{},
			RetryTimes:            6,
			RetryDelayMillis:      1000,
			RetryBackoff:          string(retry.Fixed),
			UploadWorkers:         5,
			ConnectTimeoutSeconds: 20,
		},
		Hooks: HooksConfig{
			PreAnalyze:  []string{},
			PostAnalyze: []string{},
			PreDeploy:   []string{},
			PostDeploy:  []string{},
		},
	}
}

// Load reads the configuration file from projectDir. The JSON file wins over
// the YAML file. If neither exists, the defaults are returned without an error.
func Load(projectDir string) (Config, error) {
	absProjectDir, err := filepath.Abs(projectDir)
	if err != nil {
		return Config{}, fmt.Errorf("could not determine absolute path for project directory %s: %w", projectDir, err)
	}

	config := NewDefault()
	config.Runtime.ProjectDir = absProjectDir

	jsonPath := filepath.Join(absProjectDir, ConfigFileName)
	yamlPath := filepath.Join(absProjectDir, ConfigFileNameYAML)

	// Start with default values and overwrite them with the file's content,
	// so missing fields keep their defaults.
	switch data, err := os.ReadFile(jsonPath); {
	case err == nil:
		plog.Info("Loading configuration", "path", jsonPath)
		if err := json.Unmarshal(data, &config); err != nil {
			return Config{}, fmt.Errorf("error parsing config file %s: %w", jsonPath, err)
		}
		if _, err := os.Stat(yamlPath); err == nil {
			plog.Warn("Both JSON and YAML configuration found, ignoring YAML", "path", yamlPath)
		}
	case !os.IsNotExist(err):
		return Config{}, fmt.Errorf("error opening config file %s: %w", jsonPath, err)
	default:
		data, err := os.ReadFile(yamlPath)
		if os.IsNotExist(err) {
			return config, nil
		}
		if err != nil {
			return Config{}, fmt.Errorf("error opening config file %s: %w", yamlPath, err)
		}
		plog.Info("Loading configuration", "path", yamlPath)
		if err := yaml.Unmarshal(data, &config); err != nil {
			return Config{}, fmt.Errorf("error parsing config file %s: %w", yamlPath, err)
		}
	}

	// NOTE: if config.Version differs from the app version a migration step goes here.
	config.Version = buildinfo.Version
	return config, nil
}

// ApplyEnv overlays connection settings from the environment. Variables are
// read from "<project>/.env" first; variables already set in the process
// environment take precedence over the file.
func ApplyEnv(base Config) (Config, error) {
	merged := base

	env := map[string]string{}
	envPath := filepath.Join(base.Runtime.ProjectDir, EnvFileName)
	if _, err := os.Stat(envPath); err == nil {
		fileEnv, err := godotenv.Read(envPath)
		if err != nil {
			return Config{}, fmt.Errorf("error parsing env file %s: %w", envPath, err)
		}
		maps.Copy(env, fileEnv)
		plog.Debug("Loaded environment file", "path", envPath)
	}
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(k, EnvPrefix) {
			env[k] = v
		}
	}

	for key, value := range env {
		name, ok := strings.CutPrefix(key, EnvPrefix)
		if !ok {
			continue
		}
		switch name {
		case "HOST":
			merged.Deploy.Host = value
		case "PORT":
			port, err := strconv.Atoi(value)
			if err != nil {
				return Config{}, fmt.Errorf("%w: %s must be a number: %q", ErrConfiguration, key, value)
			}
			merged.Deploy.Port = port
		case "USERNAME":
			merged.Deploy.Username = value
		case "PASSWORD":
			merged.Deploy.Password = value
		case "PRIVATE_KEY":
			merged.Deploy.PrivateKeyPath = value
		case "PASSPHRASE":
			merged.Deploy.Passphrase = value
		case "KNOWN_HOSTS":
			merged.Deploy.KnownHostsPath = value
		case "LOCAL_PATH":
			merged.Deploy.LocalPath = value
		case "REMOTE_PATH":
			merged.Deploy.RemotePath = value
		default:
			plog.Debug("unhandled environment variable", "name", key)
		}
	}
	return merged, nil
}

// Generate writes configToGenerate into its project directory as JSON, or as
// YAML when asYAML is set. Secrets are never written.
func Generate(configToGenerate Config, asYAML bool) (string, error) {
	out := configToGenerate
	out.Deploy.Password = ""
	out.Deploy.Passphrase = ""

	var data []byte
	var err error
	var configPath string
	if asYAML {
		configPath = filepath.Join(out.Runtime.ProjectDir, ConfigFileNameYAML)
		data, err = yaml.Marshal(out)
	} else {
		configPath = filepath.Join(out.Runtime.ProjectDir, ConfigFileName)
		data, err = json.MarshalIndent(out, "", "  ")
	}
	if err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, util.UserWritableFilePerms); err != nil {
		return "", fmt.Errorf("failed to write config file: %w", err)
	}

	plog.Info("Successfully saved config file", "path", configPath)
	return configPath, nil
}

// Validate checks the settings used by command and resolves local paths
// against the project directory. Every error wraps ErrConfiguration.
func (c *Config) Validate(command flagparse.Command) error {
	if err := c.validate(command); err != nil {
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	return nil
}

func (c *Config) validate(command flagparse.Command) error {
	if _, err := plog.LevelFromString(c.LogLevel); err != nil {
		return err
	}

	var err error
	if c.Runtime.ProjectDir == "" {
		c.Runtime.ProjectDir = "."
	}
	if c.Runtime.ProjectDir, err = filepath.Abs(c.Runtime.ProjectDir); err != nil {
		return fmt.Errorf("could not resolve project directory: %w", err)
	}

	// Shared by analyze and deploy: diff uploads read the archive from the report dir.
	if c.Analyze.ReportDir == "" {
		return fmt.Errorf("analyze.reportDir cannot be empty")
	}
	if c.Analyze.ReportDir, err = c.resolve(c.Analyze.ReportDir); err != nil {
		return err
	}
	if c.Analyze.BuildDir == "" {
		return fmt.Errorf("analyze.buildDir cannot be empty")
	}
	if c.Analyze.BuildDir, err = c.resolve(c.Analyze.BuildDir); err != nil {
		return err
	}
	if _, err := packager.ParseFormat(c.Analyze.Archive.Format); err != nil {
		return err
	}
	if _, err := packager.ParseLevel(c.Analyze.Archive.Level); err != nil {
		return err
	}

	switch command {
	case flagparse.Analyze:
		return c.validateAnalyze()
	case flagparse.Deploy:
		return c.validateDeploy()
	case flagparse.Init:
		// Init writes whatever was configured; only syntax is checked.
		if err := c.validateAnalyze(); err != nil {
			return err
		}
		return c.validateDeploySettings()
	}
	return nil
}

func (c *Config) validateAnalyze() error {
	a := &c.Analyze
	if _, err := fingerprint.ParseAlgorithm(a.HashAlgorithm); err != nil {
		return err
	}
	if _, err := sizespec.ParseCount(a.MaxCount); err != nil {
		return fmt.Errorf("analyze.maxCount: %w", err)
	}
	if _, err := sizespec.ParseCount(a.MinCount); err != nil {
		return fmt.Errorf("analyze.minCount: %w", err)
	}
	if _, err := sizespec.ParseBytes(a.OverSizeThreshold); err != nil {
		return fmt.Errorf("analyze.overSizeThreshold: %w", err)
	}
	switch strings.ToLower(a.FileSizeSpec) {
	case sizespec.SI, sizespec.IEC:
	default:
		return fmt.Errorf("analyze.fileSizeSpec must be 'si' or 'iec', got %q", a.FileSizeSpec)
	}
	if a.DeployThreshold < 0 || a.DeployThreshold > 1 {
		return fmt.Errorf("analyze.deployThreshold must be between 0 and 1, got %v", a.DeployThreshold)
	}
	if a.CacheWeights.Size < 0 || a.CacheWeights.Modify < 0 {
		return fmt.Errorf("analyze.cacheWeights cannot be negative")
	}
	if a.Workers < 1 {
		return fmt.Errorf("analyze.workers must be at least 1")
	}
	if a.BufferSizeKB <= 0 {
		return fmt.Errorf("analyze.bufferSizeKB must be greater than 0")
	}
	if err := validateGlobPatterns("analyze.userExcludeFiles", a.ExcludeFiles()); err != nil {
		return err
	}
	if _, err := a.IncludeRegexps(); err != nil {
		return err
	}
	if _, _, err := a.SizeLimits(); err != nil {
		return err
	}
	if _, _, err := a.ModifiedRange(); err != nil {
		return err
	}
	return nil
}

// IncludeRegexps compiles IncludePatterns.
func (a *AnalyzeConfig) IncludeRegexps() ([]*regexp.Regexp, error) {
	res := make([]*regexp.Regexp, 0, len(a.IncludePatterns))
	for _, p := range a.IncludePatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid regular expression for analyze.includePatterns: %q - %w", p, err)
		}
		res = append(res, re)
	}
	return res, nil
}

// SizeLimits parses MinFileSize and MaxFileSize. A zero maxSize means no
// upper bound.
func (a *AnalyzeConfig) SizeLimits() (minSize, maxSize uint64, err error) {
	if a.MinFileSize != "" {
		if minSize, err = sizespec.ParseBytes(a.MinFileSize); err != nil {
			return 0, 0, fmt.Errorf("analyze.minFileSize: %w", err)
		}
	}
	if a.MaxFileSize != "" {
		if maxSize, err = sizespec.ParseBytes(a.MaxFileSize); err != nil {
			return 0, 0, fmt.Errorf("analyze.maxFileSize: %w", err)
		}
		if maxSize < minSize {
			return 0, 0, fmt.Errorf("analyze.maxFileSize (%s) is smaller than analyze.minFileSize (%s)", a.MaxFileSize, a.MinFileSize)
		}
	}
	return minSize, maxSize, nil
}

// ModifiedRange parses ModifiedAfter and ModifiedBefore. Zero times leave
// that side open.
func (a *AnalyzeConfig) ModifiedRange() (after, before time.Time, err error) {
	if a.ModifiedAfter != "" {
		if after, err = time.Parse(time.RFC3339, a.ModifiedAfter); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("analyze.modifiedAfter must be an RFC 3339 timestamp: %w", err)
		}
	}
	if a.ModifiedBefore != "" {
		if before, err = time.Parse(time.RFC3339, a.ModifiedBefore); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("analyze.modifiedBefore must be an RFC 3339 timestamp: %w", err)
		}
		if !after.IsZero() && before.Before(after) {
			return time.Time{}, time.Time{}, fmt.Errorf("analyze.modifiedBefore is earlier than analyze.modifiedAfter")
		}
	}
	return after, before, nil
}

func (c *Config) validateDeploy() error {
	d := &c.Deploy
	if d.Host == "" {
		return fmt.Errorf("deploy.host cannot be empty")
	}
	if d.Username == "" {
		return fmt.Errorf("deploy.username cannot be empty")
	}
	if d.Password == "" && d.PrivateKeyPath == "" {
		return fmt.Errorf("deploy requires a password (%sPASSWORD) or deploy.privateKeyPath", EnvPrefix)
	}
	if d.LocalPath == "" {
		return fmt.Errorf("deploy.localPath cannot be empty")
	}
	if d.RemotePath == "" {
		return fmt.Errorf("deploy.remotePath cannot be empty")
	}
	return c.validateDeploySettings()
}

func (c *Config) validateDeploySettings() error {
	d := &c.Deploy
	var err error
	if d.Port < 1 || d.Port > 65535 {
		return fmt.Errorf("deploy.port must be between 1 and 65535, got %d", d.Port)
	}
	if d.RetryTimes < 0 {
		return fmt.Errorf("deploy.retryTimes cannot be negative")
	}
	if d.RetryDelayMillis < 0 {
		return fmt.Errorf("deploy.retryDelayMillis cannot be negative")
	}
	if _, err := retry.ParseBackoff(d.RetryBackoff); err != nil {
		return err
	}
	if d.UploadWorkers < 1 {
		return fmt.Errorf("deploy.uploadWorkers must be at least 1")
	}
	if d.ConnectTimeoutSeconds < 0 {
		return fmt.Errorf("deploy.connectTimeoutSeconds cannot be negative")
	}
	if err := validateGlobPatterns("deploy.exclude", d.Exclude); err != nil {
		return err
	}
	if d.LocalPath != "" {
		if d.LocalPath, err = c.resolve(d.LocalPath); err != nil {
			return err
		}
	}
	if d.PrivateKeyPath != "" {
		if d.PrivateKeyPath, err = c.resolve(d.PrivateKeyPath); err != nil {
			return err
		}
	}
	if d.KnownHostsPath != "" {
		if d.KnownHostsPath, err = c.resolve(d.KnownHostsPath); err != nil {
			return err
		}
	}
	return nil
}

// resolve expands "~" and makes p absolute relative to the project directory.
func (c *Config) resolve(p string) (string, error) {
	expanded, err := util.ExpandPath(p)
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(expanded) {
		expanded = filepath.Join(c.Runtime.ProjectDir, expanded)
	}
	return filepath.Clean(expanded), nil
}

// LogSummary logs the settings relevant to command. Secrets are masked.
func (c *Config) LogSummary(command flagparse.Command) {
	logArgs := []any{
		"command", command.String(),
		"log_level", c.LogLevel,
		"project", c.Runtime.ProjectDir,
		"dry_run", c.Runtime.DryRun,
		"metrics", c.Metrics,
	}

	switch command {
	case flagparse.Analyze:
		a := c.Analyze
		logArgs = append(logArgs,
			"build_dir", a.BuildDir,
			"report_dir", a.ReportDir,
			"hash", a.HashAlgorithm,
			"deploy_threshold", a.DeployThreshold,
			"cache", fmt.Sprintf("max:%s min:%s w:%g/%g", a.MaxCount, a.MinCount, a.CacheWeights.Size, a.CacheWeights.Modify),
			"oversize", a.OverSizeThreshold,
			"archive", fmt.Sprintf("%s (%s)", a.Archive.Format, a.Archive.Level),
			"workers", a.Workers,
		)
		if files := a.ExcludeFiles(); len(files) > 0 {
			logArgs = append(logArgs, "exclude_files", strings.Join(files, ", "))
		}
		if len(a.IncludeExtensions) > 0 {
			logArgs = append(logArgs, "include_extensions", strings.Join(a.IncludeExtensions, ", "))
		}
		if len(a.IncludePatterns) > 0 {
			logArgs = append(logArgs, "include_patterns", strings.Join(a.IncludePatterns, ", "))
		}
		if len(a.ExcludeNameContains) > 0 {
			logArgs = append(logArgs, "exclude_name_contains", strings.Join(a.ExcludeNameContains, ", "))
		}
		if a.MinFileSize != "" || a.MaxFileSize != "" {
			logArgs = append(logArgs, "file_size", fmt.Sprintf("%s..%s", a.MinFileSize, a.MaxFileSize))
		}
		if a.ModifiedAfter != "" || a.ModifiedBefore != "" {
			logArgs = append(logArgs, "modified", fmt.Sprintf("%s..%s", a.ModifiedAfter, a.ModifiedBefore))
		}
		if len(c.Hooks.PreAnalyze) > 0 {
			logArgs = append(logArgs, "pre_analyze_hooks", strings.Join(c.Hooks.PreAnalyze, "; "))
		}
		if len(c.Hooks.PostAnalyze) > 0 {
			logArgs = append(logArgs, "post_analyze_hooks", strings.Join(c.Hooks.PostAnalyze, "; "))
		}

	case flagparse.Deploy:
		d := c.Deploy
		logArgs = append(logArgs,
			"host", fmt.Sprintf("%s@%s:%d", d.Username, d.Host, d.Port),
			"auth", d.authSummary(),
			"local_path", d.LocalPath,
			"remote_path", d.RemotePath,
			"auto_backup", d.AutoBackup,
			"compress", d.Compress,
			"diff_upload", d.DiffUpload,
			"retry", fmt.Sprintf("%dx %dms (%s)", d.RetryTimes, d.RetryDelayMillis, d.RetryBackoff),
			"upload_workers", d.UploadWorkers,
		)
		if d.PreScript != "" {
			logArgs = append(logArgs, "pre_script", d.PreScript)
		}
		if d.PostScript != "" {
			logArgs = append(logArgs, "post_script", d.PostScript)
		}
		if len(d.Exclude) > 0 {
			logArgs = append(logArgs, "exclude", strings.Join(d.Exclude, ", "))
		}
		if len(c.Hooks.PreDeploy) > 0 {
			logArgs = append(logArgs, "pre_deploy_hooks", strings.Join(c.Hooks.PreDeploy, "; "))
		}
		if len(c.Hooks.PostDeploy) > 0 {
			logArgs = append(logArgs, "post_deploy_hooks", strings.Join(c.Hooks.PostDeploy, "; "))
		}
	}
	plog.Info("Configuration loaded", logArgs...)
}

func (d DeployConfig) authSummary() string {
	var parts []string
	if d.PrivateKeyPath != "" {
		parts = append(parts, "key:"+d.PrivateKeyPath)
	}
	if d.Password != "" {
		parts = append(parts, "password:***")
	}
	if d.InsecureIgnoreHostKey {
		parts = append(parts, "host-key:unchecked")
	}
	return strings.Join(parts, " ")
}

// validateGlobPatterns checks if a list of strings are valid glob patterns.
func validateGlobPatterns(fieldName string, patterns []string) error {
	for _, pattern := range patterns {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return fmt.Errorf("invalid glob pattern for %s: %q - %w", fieldName, pattern, err)
		}
	}
	return nil
}

// ExcludeFiles returns the combined default and user exclusion patterns, deduplicated.
func (a *AnalyzeConfig) ExcludeFiles() []string {
	return util.MergeAndDeduplicate(a.DefaultExcludeFiles, a.UserExcludeFiles)
}

// MergeConfigWithFlags overlays the configuration values from flags on top of a base
// configuration. It iterates over the setFlags map, which contains only the flags
// explicitly provided by the user on the command line.
func MergeConfigWithFlags(command flagparse.Command, base Config, setFlags map[string]any) Config {
	merged := base

	for name, value := range setFlags {
		switch name {
		case "log-level":
			merged.LogLevel = value.(string)
		case "quiet":
			merged.Runtime.Quiet = value.(bool)
		case "dry-run":
			merged.Runtime.DryRun = value.(bool)
		case "metrics":
			merged.Metrics = value.(bool)
		case "project":
			merged.Runtime.ProjectDir = value.(string)
		case "fail-fast":
			merged.FailFast = value.(bool)
		case "build-dir":
			merged.Analyze.BuildDir = value.(string)
		case "report-dir":
			merged.Analyze.ReportDir = value.(string)
		case "archive-format":
			merged.Analyze.Archive.Format = value.(string)
		case "archive-level":
			merged.Analyze.Archive.Level = value.(string)
		case "exclude-files":
			merged.Analyze.UserExcludeFiles = value.([]string)
		case "include-extensions":
			merged.Analyze.IncludeExtensions = value.([]string)
		case "hash-algorithm":
			merged.Analyze.HashAlgorithm = value.(string)
		case "max-count":
			merged.Analyze.MaxCount = value.(string)
		case "min-count":
			merged.Analyze.MinCount = value.(string)
		case "oversize-threshold":
			merged.Analyze.OverSizeThreshold = value.(string)
		case "file-size-spec":
			merged.Analyze.FileSizeSpec = value.(string)
		case "deploy-threshold":
			merged.Analyze.DeployThreshold = value.(float64)
		case "workers":
			merged.Analyze.Workers = value.(int)
		case "pre-analyze-hooks":
			merged.Hooks.PreAnalyze = value.([]string)
		case "post-analyze-hooks":
			merged.Hooks.PostAnalyze = value.([]string)
		case "host":
			merged.Deploy.Host = value.(string)
		case "port":
			merged.Deploy.Port = value.(int)
		case "username":
			merged.Deploy.Username = value.(string)
		case "private-key":
			merged.Deploy.PrivateKeyPath = value.(string)
		case "known-hosts":
			merged.Deploy.KnownHostsPath = value.(string)
		case "insecure-ignore-host-key":
			merged.Deploy.InsecureIgnoreHostKey = value.(bool)
		case "local-path":
			merged.Deploy.LocalPath = value.(string)
		case "remote-path":
			merged.Deploy.RemotePath = value.(string)
		case "exclude":
			merged.Deploy.Exclude = value.([]string)
		case "pre-script":
			merged.Deploy.PreScript = value.(string)
		case "post-script":
			merged.Deploy.PostScript = value.(string)
		case "auto-backup":
			merged.Deploy.AutoBackup = value.(bool)
		case "compress":
			merged.Deploy.Compress = value.(bool)
		case "diff-upload":
			merged.Deploy.DiffUpload = value.(bool)
		case "retry-times":
			merged.Deploy.RetryTimes = value.(int)
		case "retry-delay-ms":
			merged.Deploy.RetryDelayMillis = value.(int)
		case "retry-backoff":
			merged.Deploy.RetryBackoff = value.(string)
		case "upload-workers":
			merged.Deploy.UploadWorkers = value.(int)
		case "connect-timeout":
			merged.Deploy.ConnectTimeoutSeconds = value.(int)
		case "pre-deploy-hooks":
			merged.Hooks.PreDeploy = value.([]string)
		case "post-deploy-hooks":
			merged.Hooks.PostDeploy = value.([]string)
		default:
			plog.Debug("unhandled flag in MergeConfigWithFlags", "command", command.String(), "flag", name)
		}
	}
	return merged
}
