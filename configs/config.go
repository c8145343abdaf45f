package configs

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

var Values Config

type (
	Config struct {
		LogLevel   string     `mapstructure:"log-level"`
		Governance Governance `mapstructure:"governance"`
		Devnet     Devnet     `mapstructure:"devnet"`
	}

	Governance struct {
		RPCURL              string        `mapstructure:"rpc-url"`
		PrivateKey          string        `mapstructure:"private-key"`
		DeploymentsFile     string        `mapstructure:"deployments-file"`
		LegacyExportFile    string        `mapstructure:"legacy-export-file"`
		NetworksFile        string        `mapstructure:"networks-file"`
		StateDir            string        `mapstructure:"state-dir"`
		ArtifactsDir        string        `mapstructure:"artifacts-dir"`
		OutputFile          string        `mapstructure:"output-file"`
		BootstrapNetwork    string        `mapstructure:"bootstrap-network"`
		MinDelaySeconds     int           `mapstructure:"min-delay-seconds"`
		Executor            string        `mapstructure:"executor"`
		ConfirmationTimeout time.Duration `mapstructure:"confirmation-timeout"`
		Redeploy            bool          `mapstructure:"redeploy"`
		Deployer            string        `mapstructure:"deployer"`
	}

	Devnet struct {
		Image         string `mapstructure:"image"`
		ContainerName string `mapstructure:"container-name"`
		Port          int    `mapstructure:"port"`
		ChainID       int    `mapstructure:"chain-id"`
		BuildContext  string `mapstructure:"build-context"`
		Dockerfile    string `mapstructure:"dockerfile"`
	}
)

// LogValue resolves the sections one by one so nested redaction applies.
func (c Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("log-level", c.LogLevel),
		slog.Any("governance", c.Governance),
		slog.Any("devnet", c.Devnet),
	)
}

// LogValue keeps the private key out of logs.
func (g Governance) LogValue() slog.Value {
	redacted := g
	if redacted.PrivateKey != "" {
		redacted.PrivateKey = "<redacted>"
	}
	type plain Governance
	return slog.AnyValue(plain(redacted))
}

// Validate checks everything a deployment run needs.
func (g *Governance) Validate() error {
	errs := g.readErrors()

	if g.PrivateKey == "" {
		errs = append(errs, errors.New("governance.private-key is required"))
	}
	if g.ArtifactsDir == "" {
		errs = append(errs, errors.New("governance.artifacts-dir is required"))
	}
	if g.MinDelaySeconds <= 0 {
		errs = append(errs, errors.New("governance.min-delay-seconds must be positive"))
	}
	if !common.IsHexAddress(g.Executor) {
		errs = append(errs, fmt.Errorf("governance.executor %q is not a hex address", g.Executor))
	}
	if g.ConfirmationTimeout <= 0 {
		errs = append(errs, errors.New("governance.confirmation-timeout must be positive"))
	}
	if g.BootstrapNetwork == "" {
		errs = append(errs, errors.New("governance.bootstrap-network is required"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("governance configuration validation failed: %w", errors.Join(errs...))
	}

	return nil
}

// ValidateRead checks the subset needed by read-only commands (status, verify).
func (g *Governance) ValidateRead() error {
	if errs := g.readErrors(); len(errs) > 0 {
		return fmt.Errorf("governance configuration validation failed: %w", errors.Join(errs...))
	}
	return nil
}

func (g *Governance) readErrors() []error {
	var errs []error

	if g.RPCURL == "" {
		errs = append(errs, errors.New("governance.rpc-url is required"))
	}
	if g.DeploymentsFile == "" {
		errs = append(errs, errors.New("governance.deployments-file is required"))
	}
	if g.StateDir == "" {
		errs = append(errs, errors.New("governance.state-dir is required"))
	}
	if g.Deployer != "" && !common.IsHexAddress(g.Deployer) {
		errs = append(errs, fmt.Errorf("governance.deployer %q is not a hex address", g.Deployer))
	}

	return errs
}

func (d *Devnet) Validate() error {
	var errs []error

	if d.Image == "" {
		errs = append(errs, errors.New("devnet.image is required"))
	}
	if d.ContainerName == "" {
		errs = append(errs, errors.New("devnet.container-name is required"))
	}
	if d.Port <= 0 || d.Port > 65535 {
		errs = append(errs, fmt.Errorf("devnet.port %d is out of range", d.Port))
	}
	if d.ChainID <= 0 {
		errs = append(errs, errors.New("devnet.chain-id is required"))
	}
	if d.BuildContext != "" && d.Dockerfile == "" {
		errs = append(errs, errors.New("devnet.dockerfile is required with devnet.build-context"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("devnet configuration validation failed: %w", errors.Join(errs...))
	}

	return nil
}
