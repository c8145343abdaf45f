package governance

import (
	"github.com/spf13/viper"
)

type (
	flagType interface {
		string | int | bool
	}

	flagDef[T flagType] struct {
		name         string
		viperKey     string
		defaultValue T
		description  string
	}
)

// Defaults live in configs/config.example.yaml; flag defaults stay zero so they
// never shadow the config file.
var (
	stringFlags = []flagDef[string]{
		// Chain
		{"rpc-url", "governance.rpc-url", "", "RPC URL of the target network"},
		{"private-key", "governance.private-key", "", "Deployer private key"},

		// Files
		{"deployments-file", "governance.deployments-file", "", "Deployment manifest JSON"},
		{"legacy-export-file", "governance.legacy-export-file", "", "Legacy upgrades CLI export consulted read-only"},
		{"networks-file", "governance.networks-file", "", "TOML network table layered over the built-in one"},
		{"state-dir", "governance.state-dir", "", "Directory holding per-network run state"},
		{"artifacts-dir", "governance.artifacts-dir", "", "Directory of compiled contract artifacts"},
		{"output-file", "governance.output-file", "", "YAML run report"},

		// Run
		{"bootstrap-network", "governance.bootstrap-network", "", "Network on which missing dependencies are deployed"},
		{"executor", "governance.executor", "", "Timelock executor (zero address lets anyone execute)"},
		{"confirmation-timeout", "governance.confirmation-timeout", "", "Maximum wait per transaction confirmation, e.g. 5m"},

		// Read-only commands
		{"deployer", "governance.deployer", "", "Address checked for the admin role by status and verify (default: signer, then the saved run's deployer)"},
	}

	intFlags = []flagDef[int]{
		{"min-delay-seconds", "governance.min-delay-seconds", 0, "Timelock minimum delay in seconds (default: 7 days)"},
	}

	boolFlags = []flagDef[bool]{
		{"redeploy", "governance.redeploy", false, "Deploy new Timelock and Governor even if recorded, keeping the old records as history"},
	}
)

func init() {
	if err := declareFlags(stringFlags); err != nil {
		panic(err)
	}
	if err := declareFlags(intFlags); err != nil {
		panic(err)
	}
	if err := declareFlags(boolFlags); err != nil {
		panic(err)
	}
	CMD.AddCommand(statusCmd)
	CMD.AddCommand(verifyCmd)
	CMD.AddCommand(networksCmd)
}

// declareFlags declares multiple flags and binds them to viper configuration keys.
func declareFlags[T flagType](flags []flagDef[T]) error {
	for _, flag := range flags {
		if err := declareFlag(flag.name, flag.viperKey, flag.defaultValue, flag.description); err != nil {
			return err
		}
	}
	return nil
}

// declareFlag declares a persistent flag, shared by the subcommands, and binds it
// to a viper configuration key.
func declareFlag[T flagType](flagName, viperKey string, defaultValue T, description string) error {
	flags := CMD.PersistentFlags()

	var zero T
	switch any(zero).(type) {
	case string:
		flags.String(flagName, any(defaultValue).(string), description)
	case int:
		flags.Int(flagName, any(defaultValue).(int), description)
	case bool:
		flags.Bool(flagName, any(defaultValue).(bool), description)
	}
	return viper.BindPFlag(viperKey, flags.Lookup(flagName))
}
