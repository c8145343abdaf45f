package devnet

import (
	"github.com/spf13/viper"
)

type (
	flagType interface {
		string | int
	}

	flagDef[T flagType] struct {
		name         string
		viperKey     string
		defaultValue T
		description  string
	}
)

// Defaults come from configs/config.example.yaml.
var (
	stringFlags = []flagDef[string]{
		{"image", "devnet.image", "", "Container image providing anvil"},
		{"container-name", "devnet.container-name", "", "Devnet container name"},
		{"build-context", "devnet.build-context", "", "Directory to build the node image from instead of pulling it"},
		{"dockerfile", "devnet.dockerfile", "", "Dockerfile path inside the build context"},
	}

	intFlags = []flagDef[int]{
		{"port", "devnet.port", 0, "Host port for the node RPC"},
		{"chain-id", "devnet.chain-id", 0, "Chain id the node runs with"},
	}
)

func init() {
	if err := declareFlags(stringFlags); err != nil {
		panic(err)
	}
	if err := declareFlags(intFlags); err != nil {
		panic(err)
	}
	CMD.AddCommand(upCmd)
	CMD.AddCommand(downCmd)
}

func declareFlags[T flagType](flags []flagDef[T]) error {
	for _, flag := range flags {
		if err := declareFlag(flag.name, flag.viperKey, flag.defaultValue, flag.description); err != nil {
			return err
		}
	}
	return nil
}

// declareFlag declares a persistent flag on CMD, shared by up and down, and binds
// it to a viper configuration key.
func declareFlag[T flagType](flagName, viperKey string, defaultValue T, description string) error {
	flags := CMD.PersistentFlags()

	var zero T
	switch any(zero).(type) {
	case string:
		flags.String(flagName, any(defaultValue).(string), description)
	case int:
		flags.Int(flagName, any(defaultValue).(int), description)
	}
	return viper.BindPFlag(viperKey, flags.Lookup(flagName))
}
