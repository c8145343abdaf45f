package governance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/unlock-protocol/governance-deployer/configs"
	"github.com/unlock-protocol/governance-deployer/internal/chain"
	"github.com/unlock-protocol/governance-deployer/internal/contracts"
	"github.com/unlock-protocol/governance-deployer/internal/logger"
	"github.com/unlock-protocol/governance-deployer/internal/network"
	"github.com/unlock-protocol/governance-deployer/internal/proxy"
	"github.com/unlock-protocol/governance-deployer/internal/registry"
)

type (
	// RoleReader is the read side of the chain used for role checks.
	RoleReader interface {
		HasRole(ctx context.Context, contract common.Address, role chain.Role, account common.Address) (bool, error)
		RoleMembers(ctx context.Context, contract common.Address, role chain.Role, fromBlock uint64) ([]common.Address, error)
	}

	Chain interface {
		RoleReader
		ChainID() uint64
		Deployer() common.Address
		HasCode(ctx context.Context, addr common.Address) (bool, error)
		GrantRole(ctx context.Context, contract common.Address, role chain.Role, account common.Address) (chain.TxResult, error)
		RenounceRole(ctx context.Context, contract common.Address, role chain.Role, account common.Address) (chain.TxResult, error)
	}

	ProxyDeployer interface {
		DeployProxy(ctx context.Context, name contracts.Name, proxyAdmin common.Address, initArgs ...any) (proxy.Deployment, error)
		DeployContract(ctx context.Context, name contracts.Name, constructorArgs ...any) (proxy.Deployment, error)
	}

	Registry interface {
		Get(network, contractName string) (registry.Record, error)
		Append(network, contractName string, rec registry.Record) error
	}

	Resolver interface {
		Resolve(chainID uint64) (network.Network, error)
	}

	States interface {
		Load(network string) (RunState, bool, error)
		Save(state *RunState) error
	}

	/*
		Orchestrator runs the governance role transition on one network:
		  - resolves the voting token and proxy admin (deploying them on the bootstrap network)
		  - deploys the Timelock and the Governor behind proxies
		  - grants the Governor the Proposer role, then renounces the deployer's Admin role
		  - verifies the final role state
		Progress is saved after every confirmed transaction so a failed run can be resumed.
	*/
	Orchestrator struct {
		chain    Chain
		deployer ProxyDeployer
		registry Registry
		resolver Resolver
		states   States
		now      func() time.Time
		logger   *slog.Logger
	}

	stepFunc func(ctx context.Context, r *run) error

	// run carries the per-execution values shared by the steps.
	run struct {
		cfg      configs.Governance
		network  network.Network
		state    *RunState
		executor common.Address
		logger   *slog.Logger
	}
)

func NewOrchestrator(chain Chain, deployer ProxyDeployer, registry Registry, resolver Resolver, states States) *Orchestrator {
	return &Orchestrator{
		chain:    chain,
		deployer: deployer,
		registry: registry,
		resolver: resolver,
		states:   states,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger.Named("governance_orchestrator"),
	}
}

func (o *Orchestrator) steps() []struct {
	step Step
	fn   stepFunc
} {
	return []struct {
		step Step
		fn   stepFunc
	}{
		{StepResolveDependencies, o.resolveDependencies},
		{StepDeployTimelock, o.deployTimelock},
		{StepDeployGovernor, o.deployGovernor},
		{StepGrantProposer, o.grantProposer},
		{StepRenounceAdmin, o.renounceAdmin},
		{StepVerify, o.verify},
	}
}

// Execute runs every step not yet completed for the connected network and returns
// the final state. A failure is returned as *StepError.
func (o *Orchestrator) Execute(ctx context.Context, cfg configs.Governance) (RunState, error) {
	net, err := o.resolver.Resolve(o.chain.ChainID())
	if err != nil {
		return RunState{}, fmt.Errorf("failed to resolve network: %w", err)
	}

	logger := o.logger.With("network", net.Name, "chain_id", net.ChainID, "deployer", o.chain.Deployer())

	state, err := o.loadState(net, cfg.Redeploy)
	if err != nil {
		return RunState{}, err
	}

	r := &run{
		cfg:      cfg,
		network:  net,
		state:    &state,
		executor: common.HexToAddress(cfg.Executor),
		logger:   logger,
	}

	logger.With("last_completed", state.LastCompleted, "bootstrap", net.Bootstrap).Info("starting governance run")

	for _, s := range o.steps() {
		stepLogger := logger.With("step", s.step)
		if state.Completed(s.step) {
			stepLogger.Info("step already completed, skipping")
			continue
		}

		if err := ctx.Err(); err != nil {
			return state, &StepError{Step: s.step, Err: err, State: state}
		}

		stepLogger.Info("running step")
		if err := s.fn(ctx, r); err != nil {
			stepLogger.With("err", err.Error()).Error("step failed")
			return state, &StepError{Step: s.step, Err: err, State: state}
		}

		state.LastCompleted = s.step
		if err := o.states.Save(&state); err != nil {
			return state, &StepError{Step: s.step, Err: err, State: state}
		}
		stepLogger.Info("step completed")
	}

	logger.Info("governance run completed successfully")

	return state, nil
}

// loadState returns the saved state for net, or a fresh one when nothing is saved
// or when a redeploy is asked for after a finished run.
func (o *Orchestrator) loadState(net network.Network, redeploy bool) (RunState, error) {
	fresh := RunState{
		Network:  net.Name,
		ChainID:  net.ChainID,
		Deployer: o.chain.Deployer(),
	}

	state, found, err := o.states.Load(net.Name)
	if err != nil {
		return RunState{}, err
	}
	if !found {
		return fresh, nil
	}

	if state.ChainID != net.ChainID || state.Deployer != o.chain.Deployer() {
		return RunState{}, fmt.Errorf("state for %s has chain %d and deployer %s, connected to chain %d as %s: %w",
			net.Name, state.ChainID, state.Deployer, net.ChainID, o.chain.Deployer(), ErrStateMismatch)
	}

	if redeploy && state.Completed(StepVerify) {
		o.logger.
			With("network", net.Name, "timelock", state.Timelock.Address, "governor", state.Governor.Address).
			Warn("previous run finished, starting a fresh run for the redeploy")
		return fresh, nil
	}

	return state, nil
}

// saveProgress persists a confirmed transaction before the step that sent it completes.
func (o *Orchestrator) saveProgress(r *run) error {
	if err := o.states.Save(r.state); err != nil {
		return fmt.Errorf("failed to save progress: %w", err)
	}
	return nil
}

// resolveDependencies settles the voting token and the proxy admin. The token gates
// the run: outside the bootstrap network it must already be recorded and nothing is
// deployed without it. A missing proxy admin is deployed on any network since that
// touches no roles.
func (o *Orchestrator) resolveDependencies(ctx context.Context, r *run) error {
	if !r.network.Bootstrap {
		if _, err := o.ensureDependency(ctx, r, contracts.Token, &r.state.Token, nil); err != nil {
			return err
		}
	}

	proxyAdmin, err := o.ensureDependency(ctx, r, contracts.ProxyAdmin, &r.state.ProxyAdmin, func() (proxy.Deployment, error) {
		return o.deployer.DeployContract(ctx, contracts.ProxyAdmin)
	})
	if err != nil {
		return err
	}

	if !r.network.Bootstrap {
		return nil
	}

	deployer := o.chain.Deployer()
	_, err = o.ensureDependency(ctx, r, contracts.Token, &r.state.Token, func() (proxy.Deployment, error) {
		return o.deployer.DeployProxy(ctx, contracts.Token, proxyAdmin, deployer)
	})
	return err
}

// ensureDependency resolves name from the registry. When it is missing and deploy is
// set, it is deployed, recorded and then read back from the registry; a nil deploy
// makes the absence fatal.
func (o *Orchestrator) ensureDependency(
	ctx context.Context,
	r *run,
	name contracts.Name,
	slot **ContractState,
	deploy func() (proxy.Deployment, error),
) (common.Address, error) {
	logger := r.logger.With("contract", name)

	rec, err := o.registry.Get(r.network.Name, string(name))
	switch {
	case err == nil:
	case !errors.Is(err, registry.ErrRecordNotFound):
		return common.Address{}, err
	case deploy == nil:
		return common.Address{}, fmt.Errorf("dependency %s must already be deployed on %s: %w", name, r.network.Describe(), err)
	default:
		if *slot == nil {
			logger.Info("dependency missing, deploying")
			dep, err := deploy()
			if err != nil {
				return common.Address{}, err
			}
			*slot = contractState(dep)
			if err := o.saveProgress(r); err != nil {
				return common.Address{}, err
			}
		} else {
			logger.With("address", (*slot).Address).Info("reusing dependency deployed by an earlier attempt")
		}

		if err := o.record(r, name, *slot); err != nil {
			return common.Address{}, err
		}
		if rec, err = o.registry.Get(r.network.Name, string(name)); err != nil {
			return common.Address{}, err
		}
	}

	hasCode, err := o.chain.HasCode(ctx, rec.Address)
	if err != nil {
		return common.Address{}, err
	}
	if !hasCode {
		return common.Address{}, fmt.Errorf("%s recorded at %s on %s has no contract code", name, rec.Address, r.network.Name)
	}

	if *slot == nil || (*slot).Address != rec.Address {
		*slot = &ContractState{
			Address:        rec.Address,
			Implementation: rec.Implementation,
			TxHash:         rec.TxHash,
			Block:          rec.BlockNumber,
		}
	}
	logger.With("address", rec.Address, "source", recordSource(rec)).Info("dependency resolved")

	return rec.Address, nil
}

func (o *Orchestrator) deployTimelock(ctx context.Context, r *run) error {
	return o.deployGovernanceContract(ctx, r, contracts.Timelock, &r.state.Timelock,
		new(big.Int).SetUint64(uint64(r.cfg.MinDelaySeconds)),
		[]common.Address{},
		[]common.Address{r.executor},
	)
}

func (o *Orchestrator) deployGovernor(ctx context.Context, r *run) error {
	return o.deployGovernanceContract(ctx, r, contracts.Governor, &r.state.Governor,
		r.state.Token.Address,
		r.state.Timelock.Address,
	)
}

func (o *Orchestrator) deployGovernanceContract(ctx context.Context, r *run, name contracts.Name, slot **ContractState, initArgs ...any) error {
	logger := r.logger.With("contract", name)

	if *slot == nil {
		if err := o.ensureNotRecorded(r, name); err != nil {
			return err
		}

		dep, err := o.deployer.DeployProxy(ctx, name, r.state.ProxyAdmin.Address, initArgs...)
		if err != nil {
			return err
		}
		*slot = contractState(dep)
		if err := o.saveProgress(r); err != nil {
			return err
		}
	} else {
		logger.With("address", (*slot).Address).Info("reusing deployment from an earlier attempt")
	}

	return o.record(r, name, *slot)
}

// ensureNotRecorded stops a fresh deployment from colliding with a record this tool
// already wrote, unless a redeploy was asked for.
func (o *Orchestrator) ensureNotRecorded(r *run, name contracts.Name) error {
	if r.cfg.Redeploy {
		return nil
	}

	rec, err := o.registry.Get(r.network.Name, string(name))
	switch {
	case errors.Is(err, registry.ErrRecordNotFound):
		return nil
	case err != nil:
		return err
	case rec.Source != "":
		return nil
	}

	return fmt.Errorf("%s is already deployed on %s at %s, enable redeploy to replace it: %w",
		name, r.network.Name, rec.Address, registry.ErrRecordExists)
}

func (o *Orchestrator) record(r *run, name contracts.Name, cs *ContractState) error {
	return o.registry.Append(r.network.Name, string(name), registry.Record{
		Address:        cs.Address,
		ChainID:        r.network.ChainID,
		IsProxy:        cs.Implementation != (common.Address{}),
		Implementation: cs.Implementation,
		BlockNumber:    cs.Block,
		TxHash:         cs.TxHash,
		DeployedAt:     o.now(),
	})
}

func (o *Orchestrator) grantProposer(ctx context.Context, r *run) error {
	timelock, governor := r.state.Timelock.Address, r.state.Governor.Address
	logger := r.logger.With("timelock", timelock, "governor", governor)

	held, err := o.chain.HasRole(ctx, timelock, chain.RoleProposer, governor)
	if err != nil {
		return err
	}

	if held {
		logger.Info("governor already holds proposer role, skipping grant")
	} else {
		tx, err := o.chain.GrantRole(ctx, timelock, chain.RoleProposer, governor)
		if err != nil {
			return fmt.Errorf("failed to grant proposer role: %w", err)
		}
		r.state.GrantTx = &TxState{Hash: tx.Hash, Block: tx.Block}
		if err := o.saveProgress(r); err != nil {
			return err
		}

		if held, err = o.chain.HasRole(ctx, timelock, chain.RoleProposer, governor); err != nil {
			return err
		}
	}

	if !held {
		return fmt.Errorf("governor %s on timelock %s: %w", governor, timelock, ErrRoleGrantUnverified)
	}

	logger.Info("proposer role verified")

	return nil
}

func (o *Orchestrator) renounceAdmin(ctx context.Context, r *run) error {
	timelock, governor, deployer := r.state.Timelock.Address, r.state.Governor.Address, o.chain.Deployer()
	logger := r.logger.With("timelock", timelock)

	// never give up admin unless the governor can already propose
	proposer, err := o.chain.HasRole(ctx, timelock, chain.RoleProposer, governor)
	if err != nil {
		return err
	}
	if !proposer {
		return fmt.Errorf("refusing to renounce admin, governor %s on timelock %s: %w", governor, timelock, ErrRoleGrantUnverified)
	}

	held, err := o.chain.HasRole(ctx, timelock, chain.RoleAdmin, deployer)
	if err != nil {
		return err
	}

	if !held {
		logger.Info("deployer does not hold admin role, skipping renounce")
		return nil
	}

	tx, err := o.chain.RenounceRole(ctx, timelock, chain.RoleAdmin, deployer)
	if err != nil {
		return fmt.Errorf("failed to renounce admin role: %w", err)
	}
	r.state.RenounceTx = &TxState{Hash: tx.Hash, Block: tx.Block}
	if err := o.saveProgress(r); err != nil {
		return err
	}

	if held, err = o.chain.HasRole(ctx, timelock, chain.RoleAdmin, deployer); err != nil {
		return err
	}
	if held {
		return fmt.Errorf("deployer %s on timelock %s: %w", deployer, timelock, ErrRoleRenounceUnverified)
	}

	logger.Info("admin role renounced")

	return nil
}

func (o *Orchestrator) verify(ctx context.Context, r *run) error {
	report, err := VerifyRoles(ctx, o.chain, verifyInput(*r.state))
	if err != nil {
		return err
	}
	r.state.Roles = &report
	return nil
}

func contractState(dep proxy.Deployment) *ContractState {
	return &ContractState{
		Address:        dep.Address,
		Implementation: dep.Implementation,
		TxHash:         dep.TxHash,
		Block:          dep.Block,
	}
}

func recordSource(rec registry.Record) string {
	if rec.Source == "" {
		return "deployments-file"
	}
	return rec.Source
}
