package devnet

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/unlock-protocol/governance-deployer/configs"
)

var CMD = &cobra.Command{
	Use:   "devnet",
	Short: "Run a local EVM node to rehearse governance runs against",
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Start the devnet node",
	RunE: func(cmd *cobra.Command, args []string) error {
		slog.Info("starting devnet command. Validating config", slog.Any("config", configs.Values.Devnet))

		if err := configs.Values.Devnet.Validate(); err != nil {
			return err
		}

		client, err := New()
		if err != nil {
			return err
		}
		defer client.Close()

		url, err := client.Up(cmd.Context(), configs.Values.Devnet)
		if err != nil {
			return fmt.Errorf("error occurred starting devnet: %w", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), url)

		return nil
	},
}

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Remove the devnet node",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := configs.Values.Devnet.Validate(); err != nil {
			return err
		}

		client, err := New()
		if err != nil {
			return err
		}
		defer client.Close()

		return client.Down(cmd.Context(), configs.Values.Devnet)
	},
}
