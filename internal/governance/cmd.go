package governance

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/unlock-protocol/governance-deployer/configs"
	"github.com/unlock-protocol/governance-deployer/internal/network"
	"github.com/unlock-protocol/governance-deployer/internal/output"
)

var CMD = &cobra.Command{
	Use:   "governance",
	Short: "Deploy the Timelock and Governor and hand proposal rights to the Governor",
	RunE: func(cmd *cobra.Command, args []string) error {
		slog.Info("starting governance command. Validating config", slog.Any("config", configs.Values.Governance))

		if err := configs.Values.Governance.Validate(); err != nil {
			return err
		}

		slog.Info("config validation successful. Starting governance run...")

		if err := deploy(cmd.Context(), configs.Values.Governance, cmd.ErrOrStderr()); err != nil {
			return fmt.Errorf("governance run failed: %w", err)
		}

		slog.Info("governance run finished successfully")

		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recorded deployments, run progress and current role holders",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := configs.Values.Governance.ValidateRead(); err != nil {
			return err
		}

		model, err := status(cmd.Context(), configs.Values.Governance)
		if err != nil {
			return fmt.Errorf("failed to collect status: %w", err)
		}

		return output.Encode(cmd.OutOrStdout(), model)
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check that the Governor is the only proposer and the deployer is no longer admin",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := configs.Values.Governance.ValidateRead(); err != nil {
			return err
		}

		model, verifyErr := verify(cmd.Context(), configs.Values.Governance)
		if model != nil {
			if err := output.Encode(cmd.OutOrStdout(), model); err != nil {
				return err
			}
		}

		return verifyErr
	},
}

var networksCmd = &cobra.Command{
	Use:   "networks [name]",
	Short: "List known networks and the contract addresses recorded for them",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := configs.Values.Governance

		table, err := network.LoadTable(cfg.NetworksFile, cfg.BootstrapNetwork)
		if err != nil {
			return err
		}

		entries, err := selectNetworks(table, args)
		if err != nil {
			return err
		}

		return output.Encode(cmd.OutOrStdout(), entries)
	},
}
