package hook

// Plan holds the local commands run around one stage of a run.
type Plan struct {
	Enabled bool

	PreHookCommands  []string
	PostHookCommands []string

	DryRun   bool
	FailFast bool
}
