package hermes

// Version information for the CLI's root command (spec §6.1).
const (
	Version = "development"

	BuildDate = "development"

	GitCommit = "unknown"
)
