package flagparse

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/paulschiretz/pgl-deploy/pkg/buildinfo"
)

// cliFlags holds pointers to all possible command-line flags.
// Fields are pointers so we can distinguish between "not registered for this command" (nil)
// and "registered but not set by user" (non-nil pointer to zero value).
type cliFlags struct {
	// Global
	LogLevel *string
	Quiet    *bool
	DryRun   *bool
	Metrics  *bool
	Project  *string

	// Shared: Analyze / Deploy
	BuildDir      *string
	ReportDir     *string
	ArchiveFormat *string
	ArchiveLevel  *string
	FailFast      *bool

	// Analyze
	ExcludeFiles      *string
	IncludeExtensions *string
	HashAlgorithm     *string
	MaxCount          *string
	MinCount          *string
	OverSizeThreshold *string
	FileSizeSpec      *string
	DeployThreshold   *float64
	Workers           *int
	PreAnalyzeHooks   *string
	PostAnalyzeHooks  *string

	// Deploy
	Host                  *string
	Port                  *int
	Username              *string
	PrivateKey            *string
	KnownHosts            *string
	InsecureIgnoreHostKey *bool
	LocalPath             *string
	RemotePath            *string
	Exclude               *string
	PreScript             *string
	PostScript            *string
	AutoBackup            *bool
	Compress              *bool
	DiffUpload            *bool
	RetryTimes            *int
	RetryDelayMillis      *int
	RetryBackoff          *string
	UploadWorkers         *int
	ConnectTimeout        *int
	PreDeployHooks        *string
	PostDeployHooks       *string

	// Init
	Force   *bool
	Default *bool
	YAML    *bool
}

func registerGlobalFlags(fs *flag.FlagSet, f *cliFlags) {
	f.LogLevel = fs.String("log-level", "info", "Set the logging level: 'debug', 'notice', 'info', 'warn', 'error'.")
	f.Quiet = fs.Bool("quiet", false, "Only log warnings and errors.")
	f.DryRun = fs.Bool("dry-run", false, "Show what would be done without making any changes.")
	f.Metrics = fs.Bool("metrics", false, "Log counters at the end of the run and write a Prometheus textfile into the report directory.")
	f.Project = fs.String("project", ".", "Project directory containing the configuration file.")
}

func registerSharedFlags(fs *flag.FlagSet, f *cliFlags) {
	f.BuildDir = fs.String("build-dir", "", "Build output directory to analyze, relative to the project.")
	f.ReportDir = fs.String("report-dir", "", "Directory for the build manifest, report and incremental archive.")
	f.ArchiveFormat = fs.String("archive-format", "", "Archive format: 'zip', 'tar.gz', or 'tar.zst'.")
	f.ArchiveLevel = fs.String("archive-level", "", "Compression level: 'default', 'fastest', 'better', 'best'.")
	f.FailFast = fs.Bool("fail-fast", false, "Stop immediately when a hook command fails.")
}

func registerAnalyzeFlags(fs *flag.FlagSet, f *cliFlags) {
	f.ExcludeFiles = fs.String("exclude-files", "", "Comma-separated list of glob patterns excluded from the analysis.")
	f.IncludeExtensions = fs.String("include-extensions", "", "Comma-separated list of file extensions to analyze (e.g. '.js,.css'). Empty analyzes all files.")
	f.HashAlgorithm = fs.String("hash-algorithm", "", "Content hash: 'sha256' or 'sha3-256'.")
	f.MaxCount = fs.String("max-count", "", "Upper bound for the cache candidate list, absolute ('20') or percentage ('20%').")
	f.MinCount = fs.String("min-count", "", "Lower bound for the cache candidate list, absolute ('10') or percentage ('5%').")
	f.OverSizeThreshold = fs.String("oversize-threshold", "", "Files larger than this are reported as oversized (e.g. '300kb').")
	f.FileSizeSpec = fs.String("file-size-spec", "", "Unit system for reported sizes: 'si' or 'iec'.")
	f.DeployThreshold = fs.Float64("deploy-threshold", 0, "Maximum changed fraction of the build size for an incremental deploy.")
	f.Workers = fs.Int("workers", 0, "Number of files hashed concurrently.")
	f.PreAnalyzeHooks = fs.String("pre-analyze-hooks", "", "Comma-separated list of commands to run before analyzing.")
	f.PostAnalyzeHooks = fs.String("post-analyze-hooks", "", "Comma-separated list of commands to run after analyzing.")
}

func registerDeployFlags(fs *flag.FlagSet, f *cliFlags) {
	f.Host = fs.String("host", "", "Remote host to deploy to.")
	f.Port = fs.Int("port", 0, "SSH port of the remote host.")
	f.Username = fs.String("username", "", "SSH user name.")
	f.PrivateKey = fs.String("private-key", "", "Path to the SSH private key. The password is read from PGL_DEPLOY_PASSWORD.")
	f.KnownHosts = fs.String("known-hosts", "", "known_hosts file used to verify the host key (default ~/.ssh/known_hosts).")
	f.InsecureIgnoreHostKey = fs.Bool("insecure-ignore-host-key", false, "Skip host key verification.")
	f.LocalPath = fs.String("local-path", "", "Local file, archive or directory to deploy.")
	f.RemotePath = fs.String("remote-path", "", "Remote destination path.")
	f.Exclude = fs.String("exclude", "", "Comma-separated list of glob patterns not uploaded from a local directory.")
	f.PreScript = fs.String("pre-script", "", "Remote shell command run before uploading.")
	f.PostScript = fs.String("post-script", "", "Remote shell command run after uploading.")
	f.AutoBackup = fs.Bool("auto-backup", false, "Back up the remote path before uploading.")
	f.Compress = fs.Bool("compress", false, "Upload a local directory as one archive and unpack it remotely.")
	f.DiffUpload = fs.Bool("diff-upload", false, "Upload the incremental archive from the last analyze if present.")
	f.RetryTimes = fs.Int("retry-times", 0, "Total number of upload attempts.")
	f.RetryDelayMillis = fs.Int("retry-delay-ms", 0, "Delay between upload attempts in milliseconds.")
	f.RetryBackoff = fs.String("retry-backoff", "", "Growth of the retry delay: 'fixed', 'linear' or 'exponential'.")
	f.UploadWorkers = fs.Int("upload-workers", 0, "Number of files uploaded concurrently.")
	f.ConnectTimeout = fs.Int("connect-timeout", 0, "SSH connect timeout in seconds.")
	f.PreDeployHooks = fs.String("pre-deploy-hooks", "", "Comma-separated list of local commands to run before deploying.")
	f.PostDeployHooks = fs.String("post-deploy-hooks", "", "Comma-separated list of local commands to run after deploying.")
}

func registerInitFlags(fs *flag.FlagSet, f *cliFlags) {
	f.Force = fs.Bool("force", false, "Bypass confirmation prompts.")
	f.Default = fs.Bool("default", false, "Overwrite existing configuration with defaults.")
	f.YAML = fs.Bool("yaml", false, "Write the configuration as YAML instead of JSON.")
}

// Parse parses the provided arguments (usually os.Args[1:]) and returns the command and
// a map of the flags explicitly set by the user.
func Parse(args []string) (Command, map[string]any, error) {
	// If no arguments provided, print help and exit.
	if len(args) == 0 {
		fs := flag.NewFlagSet("main", flag.ContinueOnError)
		printTopLevelUsage(fs)
		return None, nil, nil
	}

	cmdStr := strings.ToLower(args[0])

	if cmdStr == "help" || cmdStr == "-h" || cmdStr == "-help" || cmdStr == "--help" {
		fs := flag.NewFlagSet("main", flag.ContinueOnError)
		printTopLevelUsage(fs)
		return None, nil, nil
	}

	command, err := ParseCommand(cmdStr)
	if err != nil {
		return None, nil, err
	}
	if command == Version {
		return command, nil, nil
	}

	f := &cliFlags{}
	fs := flag.NewFlagSet(command.String(), flag.ContinueOnError)
	registerGlobalFlags(fs, f)

	var desc string
	switch command {
	case Analyze:
		registerSharedFlags(fs, f)
		registerAnalyzeFlags(fs, f)
		desc = "Fingerprint the build, compare it with the previous build and write the report and incremental archive."
	case Deploy:
		registerSharedFlags(fs, f)
		registerDeployFlags(fs, f)
		desc = "Upload the build to the remote host over SSH."
	case Init:
		// Init accepts every setting so it can be written into the generated config.
		registerSharedFlags(fs, f)
		registerAnalyzeFlags(fs, f)
		registerDeployFlags(fs, f)
		registerInitFlags(fs, f)
		desc = "Write a configuration file into the project directory."
	}

	fs.Usage = func() {
		printSubcommandUsage(command, desc, fs)
	}

	if err := fs.Parse(args[1:]); err != nil {
		return command, nil, err
	}
	if fs.NArg() > 0 {
		return command, nil, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	flagMap, err := flagsToMap(fs, f)
	return command, flagMap, err
}

func flagsToMap(fs *flag.FlagSet, f *cliFlags) (map[string]any, error) {
	// Only flags explicitly set by the user override the base configuration.
	usedFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { usedFlags[f.Name] = true })

	flagMap := make(map[string]any)

	addIfUsed(flagMap, usedFlags, "log-level", f.LogLevel)
	addIfUsed(flagMap, usedFlags, "quiet", f.Quiet)
	addIfUsed(flagMap, usedFlags, "dry-run", f.DryRun)
	addIfUsed(flagMap, usedFlags, "metrics", f.Metrics)
	addIfUsed(flagMap, usedFlags, "project", f.Project)

	addIfUsed(flagMap, usedFlags, "build-dir", f.BuildDir)
	addIfUsed(flagMap, usedFlags, "report-dir", f.ReportDir)
	addIfUsed(flagMap, usedFlags, "archive-format", f.ArchiveFormat)
	addIfUsed(flagMap, usedFlags, "archive-level", f.ArchiveLevel)
	addIfUsed(flagMap, usedFlags, "fail-fast", f.FailFast)

	addIfUsed(flagMap, usedFlags, "hash-algorithm", f.HashAlgorithm)
	addIfUsed(flagMap, usedFlags, "max-count", f.MaxCount)
	addIfUsed(flagMap, usedFlags, "min-count", f.MinCount)
	addIfUsed(flagMap, usedFlags, "oversize-threshold", f.OverSizeThreshold)
	addIfUsed(flagMap, usedFlags, "file-size-spec", f.FileSizeSpec)
	addIfUsed(flagMap, usedFlags, "deploy-threshold", f.DeployThreshold)
	addIfUsed(flagMap, usedFlags, "workers", f.Workers)

	addIfUsed(flagMap, usedFlags, "host", f.Host)
	addIfUsed(flagMap, usedFlags, "port", f.Port)
	addIfUsed(flagMap, usedFlags, "username", f.Username)
	addIfUsed(flagMap, usedFlags, "private-key", f.PrivateKey)
	addIfUsed(flagMap, usedFlags, "known-hosts", f.KnownHosts)
	addIfUsed(flagMap, usedFlags, "insecure-ignore-host-key", f.InsecureIgnoreHostKey)
	addIfUsed(flagMap, usedFlags, "local-path", f.LocalPath)
	addIfUsed(flagMap, usedFlags, "remote-path", f.RemotePath)
	addIfUsed(flagMap, usedFlags, "pre-script", f.PreScript)
	addIfUsed(flagMap, usedFlags, "post-script", f.PostScript)
	addIfUsed(flagMap, usedFlags, "auto-backup", f.AutoBackup)
	addIfUsed(flagMap, usedFlags, "compress", f.Compress)
	addIfUsed(flagMap, usedFlags, "diff-upload", f.DiffUpload)
	addIfUsed(flagMap, usedFlags, "retry-times", f.RetryTimes)
	addIfUsed(flagMap, usedFlags, "retry-delay-ms", f.RetryDelayMillis)
	addIfUsed(flagMap, usedFlags, "retry-backoff", f.RetryBackoff)
	addIfUsed(flagMap, usedFlags, "upload-workers", f.UploadWorkers)
	addIfUsed(flagMap, usedFlags, "connect-timeout", f.ConnectTimeout)

	addIfUsed(flagMap, usedFlags, "force", f.Force)
	addIfUsed(flagMap, usedFlags, "default", f.Default)
	addIfUsed(flagMap, usedFlags, "yaml", f.YAML)

	// Handle flags that require parsing/validation.
	addParsedIfUsed(flagMap, usedFlags, "exclude-files", f.ExcludeFiles, ParseExcludeList)
	addParsedIfUsed(flagMap, usedFlags, "include-extensions", f.IncludeExtensions, ParseExcludeList)
	addParsedIfUsed(flagMap, usedFlags, "exclude", f.Exclude, ParseExcludeList)
	addParsedIfUsed(flagMap, usedFlags, "pre-analyze-hooks", f.PreAnalyzeHooks, ParseCmdList)
	addParsedIfUsed(flagMap, usedFlags, "post-analyze-hooks", f.PostAnalyzeHooks, ParseCmdList)
	addParsedIfUsed(flagMap, usedFlags, "pre-deploy-hooks", f.PreDeployHooks, ParseCmdList)
	addParsedIfUsed(flagMap, usedFlags, "post-deploy-hooks", f.PostDeployHooks, ParseCmdList)

	return flagMap, nil
}

// addIfUsed adds the value of ptr to flagMap if ptr is not nil and the flag was set.
func addIfUsed[T any](flagMap map[string]any, usedFlags map[string]bool, name string, ptr *T) {
	if ptr != nil && usedFlags[name] {
		flagMap[name] = *ptr
	}
}

// addParsedIfUsed adds the parsed value of ptr to flagMap if ptr is not nil and the flag was set.
func addParsedIfUsed(flagMap map[string]any, usedFlags map[string]bool, name string, ptr *string, parser func(string) []string) {
	if ptr != nil && usedFlags[name] {
		flagMap[name] = parser(*ptr)
	}
}

// printTopLevelUsage prints the main help message.
func printTopLevelUsage(fs *flag.FlagSet) {

	execName := filepath.Base(os.Args[0])
	fmt.Fprintf(fs.Output(), "%s(%s) ", buildinfo.Name, buildinfo.Version)
	fmt.Fprintf(fs.Output(), "Analyze front-end builds and deploy them incrementally over SSH.\n\n")
	fmt.Fprintf(fs.Output(), "Usage: %s <command> [flags]\n\n", execName)
	fmt.Fprintf(fs.Output(), "Commands:\n")
	fmt.Fprintf(fs.Output(), "  analyze     Fingerprint the build and write the change report\n")
	fmt.Fprintf(fs.Output(), "  deploy      Upload the build to the remote host\n")
	fmt.Fprintf(fs.Output(), "  init        Initialize a new configuration\n")
	fmt.Fprintf(fs.Output(), "  version     Print the application version\n")
	fmt.Fprintf(fs.Output(), "\nRun '%s <command> -help' for more information on a command.\n", execName)
}

// printSubcommandUsage prints the help message for a specific subcommand.
func printSubcommandUsage(command Command, desc string, fs *flag.FlagSet) {

	execName := filepath.Base(os.Args[0])
	fmt.Fprintf(fs.Output(), "%s(%s) ", buildinfo.Name, buildinfo.Version)
	fmt.Fprintf(fs.Output(), "Analyze front-end builds and deploy them incrementally over SSH.\n\n")
	fmt.Fprintf(fs.Output(), "Usage of the %s command: %s %s [flags]\n\n", command, execName, command)
	fmt.Fprintf(fs.Output(), "%s\n\n", desc)
	fmt.Fprintf(fs.Output(), "Flags:\n")
	fs.PrintDefaults()
}

// ParseCmdList parses a comma-separated list of shell-like commands.
// It preserves quotes and handles backslash escapes so they can be interpreted by the shell.
func ParseCmdList(s string) []string {
	return parseListInternal(s, true, true)
}

// ParseExcludeList parses a comma-separated list of file patterns or extensions.
// It removes quotes, as they are only used for grouping items with spaces.
// It treats backslashes as literal characters for Windows path compatibility.
func ParseExcludeList(s string) []string {
	return parseListInternal(s, false, false)
}

// parseListInternal is the core implementation for parsing a comma-separated list. It supports
// both single (') and double (") quotes to allow items to contain commas or spaces.
// - `keepQuotes`: Preserves quote characters in the output.
// - `handleEscapes`: Treats backslashes as escape characters.
func parseListInternal(s string, keepQuotes, handleEscapes bool) []string {
	var list []string
	var current strings.Builder
	var quoteChar rune

	appendItem := func() {
		trimmed := strings.TrimSpace(current.String())
		if trimmed != "" {
			list = append(list, trimmed)
		}
		current.Reset()
	}

	var isEscaped bool
	for _, r := range s {
		if isEscaped {
			current.WriteRune(r)
			isEscaped = false
			continue
		}

		switch {
		case r == '\\' && handleEscapes:
			isEscaped = true
			// For commands, we also keep the backslash for the shell to interpret.
			current.WriteRune(r)
		case r == '\'' || r == '"':
			if quoteChar == 0 {
				quoteChar = r
				if keepQuotes {
					current.WriteRune(r)
				}
			} else if quoteChar == r {
				quoteChar = 0
				if keepQuotes {
					current.WriteRune(r)
				}
			} else { // A different quote character inside an existing quoted section.
				current.WriteRune(r)
			}
		case r == ',' && quoteChar == 0:
			appendItem()
		default:
			current.WriteRune(r)
		}
	}
	appendItem()
	return list
}
