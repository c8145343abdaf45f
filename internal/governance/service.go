package governance

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/unlock-protocol/governance-deployer/configs"
	"github.com/unlock-protocol/governance-deployer/internal/chain"
	"github.com/unlock-protocol/governance-deployer/internal/contracts"
	"github.com/unlock-protocol/governance-deployer/internal/infra/filesystem"
	"github.com/unlock-protocol/governance-deployer/internal/infra/filesystem/json"
	"github.com/unlock-protocol/governance-deployer/internal/logger"
	"github.com/unlock-protocol/governance-deployer/internal/network"
	"github.com/unlock-protocol/governance-deployer/internal/output"
	"github.com/unlock-protocol/governance-deployer/internal/proxy"
	"github.com/unlock-protocol/governance-deployer/internal/registry"
)

const (
	sourceNetworkTable = "network-table"
	sourceLegacyExport = "legacy-export"
)

// deploy wires the run from configuration, executes it and writes the report. On
// failure the report is also printed to trace so the operator sees what landed.
func deploy(ctx context.Context, cfg configs.Governance, trace io.Writer) error {
	log := logger.Named("governance")

	unlock, err := registry.Lock(cfg.DeploymentsFile)
	if err != nil {
		return err
	}
	defer func() {
		if err := unlock(); err != nil {
			log.With("err", err.Error()).Warn("failed to release deployments lock")
		}
	}()

	table, err := network.LoadTable(cfg.NetworksFile, cfg.BootstrapNetwork)
	if err != nil {
		return err
	}

	reader, writer := json.NewReader(), json.NewWriter()

	reg, err := openRegistry(cfg, table, reader, writer)
	if err != nil {
		return err
	}

	client, err := chain.Dial(ctx, cfg.RPCURL, cfg.PrivateKey, cfg.ConfirmationTimeout)
	if err != nil {
		return err
	}
	defer client.Close()

	deployer := proxy.NewDeployer(client, contracts.NewLoader(cfg.ArtifactsDir, reader))
	states := NewStateStore(cfg.StateDir, reader, writer)

	state, runErr := NewOrchestrator(client, deployer, reg, table, states).Execute(ctx, cfg)

	model := runReport(state, runErr)

	if state.Network != "" {
		if err := output.NewGenerator(writer).Generate(cfg.OutputFile, model); err != nil {
			log.With("err", err.Error()).Error("failed to write run report")
		} else {
			log.With("file", cfg.OutputFile).Info("run report written")
		}
	}

	if runErr != nil {
		var stepErr *StepError
		if errors.As(runErr, &stepErr) {
			log.
				With("step", stepErr.Step).
				With("last_completed", stepErr.State.LastCompleted).
				With("err", stepErr.Err.Error()).
				Error("governance run stopped, rerun to resume from the failed step")
		}
		if err := output.Encode(trace, model); err != nil {
			log.With("err", err.Error()).Error("failed to print failure trace")
		}
		return runErr
	}

	return nil
}

func status(ctx context.Context, cfg configs.Governance) (*output.Model, error) {
	table, err := network.LoadTable(cfg.NetworksFile, cfg.BootstrapNetwork)
	if err != nil {
		return nil, err
	}

	reader, writer := json.NewReader(), json.NewWriter()
	reg, err := openRegistry(cfg, table, reader, writer)
	if err != nil {
		return nil, err
	}

	client, err := chain.Dial(ctx, cfg.RPCURL, cfg.PrivateKey, cfg.ConfirmationTimeout)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	net, err := table.Resolve(client.ChainID())
	if err != nil {
		return nil, err
	}

	state, found, err := NewStateStore(cfg.StateDir, reader, writer).Load(net.Name)
	if err != nil {
		return nil, err
	}

	model := &output.Model{Governance: output.Governance{
		Status:        output.StatusNotStarted,
		Network:       net.Name,
		ChainID:       net.ChainID,
		Deployer:      checkedDeployer(cfg, client.Deployer()),
		LastCompleted: state.LastCompleted.String(),
		Contracts:     make(map[string]output.Contract),
	}}
	if found {
		model.Governance = runReport(state, nil).Governance
		if !state.Completed(StepVerify) {
			model.Governance.Status = output.StatusPartial
		}
	}

	records, err := statusRecords(reg, net.Name)
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		c := output.NewContract(rec.Address, rec.Implementation, rec.TxHash, rec.BlockNumber)
		c.Source = recordSource(rec)
		model.Governance.Contracts[rec.ContractName] = c
	}

	in, err := verifyTarget(state, found, reg, net.Name, checkedDeployer(cfg, client.Deployer()))
	switch {
	case errors.Is(err, registry.ErrRecordNotFound):
		return model, nil
	case errors.Is(err, ErrDeployerUnknown):
		logger.Named("governance").
			With("network", net.Name).
			With("err", err.Error()).
			Warn("skipping role state, deployer unknown")
		return model, nil
	case err != nil:
		return nil, err
	}

	roles, err := VerifyRoles(ctx, client, in)
	if err != nil && !errors.Is(err, ErrInvariantViolated) {
		return nil, err
	}
	model.Governance.Roles = roleReport(roles)

	return model, nil
}

func verify(ctx context.Context, cfg configs.Governance) (*output.Model, error) {
	table, err := network.LoadTable(cfg.NetworksFile, cfg.BootstrapNetwork)
	if err != nil {
		return nil, err
	}

	reader, writer := json.NewReader(), json.NewWriter()
	reg, err := openRegistry(cfg, table, reader, writer)
	if err != nil {
		return nil, err
	}

	client, err := chain.Dial(ctx, cfg.RPCURL, cfg.PrivateKey, cfg.ConfirmationTimeout)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	net, err := table.Resolve(client.ChainID())
	if err != nil {
		return nil, err
	}

	state, found, err := NewStateStore(cfg.StateDir, reader, writer).Load(net.Name)
	if err != nil {
		return nil, err
	}

	in, err := verifyTarget(state, found, reg, net.Name, checkedDeployer(cfg, client.Deployer()))
	if err != nil {
		return nil, err
	}

	roles, verifyErr := VerifyRoles(ctx, client, in)
	model := &output.Model{Governance: output.Governance{
		Status:        output.StatusSucceeded,
		Network:       net.Name,
		ChainID:       net.ChainID,
		Deployer:      in.Deployer,
		LastCompleted: state.LastCompleted.String(),
		Contracts: map[string]output.Contract{
			string(contracts.Timelock): output.NewContract(in.Timelock, common.Address{}, common.Hash{}, in.FromBlock),
			string(contracts.Governor): output.NewContract(in.Governor, common.Address{}, common.Hash{}, 0),
		},
		Roles: roleReport(roles),
	}}
	if verifyErr != nil {
		model.Governance.Status = output.StatusFailed
		model.Governance.Error = verifyErr.Error()
	}

	return model, verifyErr
}

// statusRecords lists what the deployments file holds for networkName, then fills in
// the dependencies that only a prior manifest knows about.
func statusRecords(reg *registry.Registry, networkName string) ([]registry.Record, error) {
	records := reg.Records(networkName)

	seen := make(map[string]bool, len(records))
	for _, rec := range records {
		seen[rec.ContractName] = true
	}

	for _, name := range []contracts.Name{contracts.ProxyAdmin, contracts.Token} {
		if seen[string(name)] {
			continue
		}
		rec, err := reg.Get(networkName, string(name))
		if errors.Is(err, registry.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	return records, nil
}

// checkedDeployer is the account whose admin role read-only commands check: the
// configured deployer, else the signer. Zero means unknown so far.
func checkedDeployer(cfg configs.Governance, signer common.Address) common.Address {
	if cfg.Deployer != "" {
		return common.HexToAddress(cfg.Deployer)
	}
	return signer
}

// verifyTarget picks the contracts to check, preferring the saved run over the registry.
// The deployer falls back to the saved run's; with neither it is ErrDeployerUnknown.
func verifyTarget(state RunState, found bool, reg Registry, networkName string, deployer common.Address) (VerifyInput, error) {
	if deployer == (common.Address{}) && found {
		deployer = state.Deployer
	}
	if deployer == (common.Address{}) {
		return VerifyInput{}, fmt.Errorf("set governance.deployer or a private key for %s: %w", networkName, ErrDeployerUnknown)
	}

	if found && state.Timelock != nil && state.Governor != nil {
		in := verifyInput(state)
		in.Deployer = deployer
		return in, nil
	}

	timelock, err := reg.Get(networkName, string(contracts.Timelock))
	if err != nil {
		return VerifyInput{}, err
	}
	governor, err := reg.Get(networkName, string(contracts.Governor))
	if err != nil {
		return VerifyInput{}, err
	}

	return VerifyInput{
		Timelock:  timelock.Address,
		Governor:  governor.Address,
		Deployer:  deployer,
		FromBlock: timelock.BlockNumber,
	}, nil
}

func verifyInput(state RunState) VerifyInput {
	in := VerifyInput{
		Timelock:  state.Timelock.Address,
		Governor:  state.Governor.Address,
		Deployer:  state.Deployer,
		FromBlock: state.Timelock.Block,
	}
	if state.GrantTx != nil && state.RenounceTx != nil {
		in.GrantBlock = state.GrantTx.Block
		in.RenounceBlock = state.RenounceTx.Block
	}
	return in
}

func openRegistry(cfg configs.Governance, table *network.Table, reader filesystem.Reader, writer filesystem.Writer) (*registry.Registry, error) {
	opts := []registry.Option{
		registry.WithPriorManifest(sourceNetworkTable, table),
		registry.WithOverwrite(cfg.Redeploy),
	}

	if cfg.LegacyExportFile != "" {
		export, err := registry.LoadLegacyExport(cfg.LegacyExportFile, reader)
		if err != nil {
			return nil, err
		}
		opts = append(opts, registry.WithPriorManifest(sourceLegacyExport, export))
	}

	return registry.Open(cfg.DeploymentsFile, reader, writer, opts...)
}

// runReport converts a run's state, and the error it stopped with, into the report model.
func runReport(state RunState, runErr error) *output.Model {
	gov := output.Governance{
		Status:        output.StatusSucceeded,
		Network:       state.Network,
		ChainID:       state.ChainID,
		Deployer:      state.Deployer,
		LastCompleted: state.LastCompleted.String(),
		Contracts:     make(map[string]output.Contract),
		Transactions:  make(map[string]output.Transaction),
	}

	for name, cs := range map[contracts.Name]*ContractState{
		contracts.ProxyAdmin: state.ProxyAdmin,
		contracts.Token:      state.Token,
		contracts.Timelock:   state.Timelock,
		contracts.Governor:   state.Governor,
	} {
		if cs == nil {
			continue
		}
		gov.Contracts[string(name)] = output.NewContract(cs.Address, cs.Implementation, cs.TxHash, cs.Block)
	}

	if state.GrantTx != nil {
		gov.Transactions["grant-proposer"] = output.Transaction{Hash: state.GrantTx.Hash, Block: state.GrantTx.Block}
	}
	if state.RenounceTx != nil {
		gov.Transactions["renounce-admin"] = output.Transaction{Hash: state.RenounceTx.Hash, Block: state.RenounceTx.Block}
	}
	if state.Roles != nil {
		gov.Roles = roleReport(*state.Roles)
	}

	if runErr != nil {
		gov.Status = output.StatusFailed
		gov.Error = runErr.Error()
		var stepErr *StepError
		if errors.As(runErr, &stepErr) {
			gov.FailedStep = stepErr.Step.String()
		}
	}

	return &output.Model{Governance: gov}
}

func roleReport(r RoleReport) *output.Roles {
	proposers := r.Proposers
	if proposers == nil {
		proposers = []common.Address{}
	}
	return &output.Roles{
		Proposers:          proposers,
		GovernorIsProposer: r.GovernorIsProposer,
		DeployerIsAdmin:    r.DeployerIsAdmin,
	}
}

func networkEntries(networks ...network.Network) []output.NetworkEntry {
	entries := make([]output.NetworkEntry, 0, len(networks))
	for _, n := range networks {
		entries = append(entries, output.NetworkEntry{
			ChainID:   n.ChainID,
			Name:      n.Name,
			Bootstrap: n.Bootstrap,
			Contracts: n.Contracts,
		})
	}
	return entries
}

// selectNetworks returns every network, or only the one named by args.
func selectNetworks(table *network.Table, args []string) ([]output.NetworkEntry, error) {
	if len(args) == 0 {
		return networkEntries(table.Networks()...), nil
	}

	n, err := table.ByName(args[0])
	if err != nil {
		return nil, err
	}
	return networkEntries(n), nil
}
