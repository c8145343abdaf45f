package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/unlock-protocol/governance-deployer/internal/chain"
	"github.com/unlock-protocol/governance-deployer/internal/contracts"
	"github.com/unlock-protocol/governance-deployer/internal/logger"
)

var (
	ErrDeploymentFailed = errors.New("deployment failed")

	// implementationSlot is bytes32(uint256(keccak256("eip1967.proxy.implementation")) - 1).
	implementationSlot = common.HexToHash("0x360894a13ba1a3210667c828492db98dca3e2076cc3735a920a3ca505d382bbc")
)

type (
	Chain interface {
		DeployContract(ctx context.Context, contractABI abi.ABI, bytecode []byte, constructorArgs ...any) (chain.TxResult, error)
		StorageAt(ctx context.Context, addr common.Address, slot common.Hash) (common.Hash, error)
	}

	Artifacts interface {
		Load(name contracts.Name) (contracts.Artifact, error)
	}

	// Deployment is a confirmed contract instance. For proxies Address is the proxy
	// and Implementation the logic contract behind it.
	Deployment struct {
		Address        common.Address
		Implementation common.Address
		TxHash         common.Hash
		Block          uint64
	}

	Deployer struct {
		chain     Chain
		artifacts Artifacts
		logger    *slog.Logger
	}
)

func NewDeployer(chain Chain, artifacts Artifacts) *Deployer {
	return &Deployer{
		chain:     chain,
		artifacts: artifacts,
		logger:    logger.Named("proxy_deployer"),
	}
}

// DeployProxy deploys the implementation of name, then a transparent proxy owned by
// proxyAdmin whose constructor calls initialize(initArgs...). The initializer runs
// with the deployer as msg.sender.
func (d *Deployer) DeployProxy(ctx context.Context, name contracts.Name, proxyAdmin common.Address, initArgs ...any) (Deployment, error) {
	logger := d.logger.With("contract", name, "proxy_admin", proxyAdmin)

	impl, err := d.artifacts.Load(name)
	if err != nil {
		return Deployment{}, fmt.Errorf("%w: %s: %w", ErrDeploymentFailed, name, err)
	}
	proxyArtifact, err := d.artifacts.Load(contracts.TransparentProxy)
	if err != nil {
		return Deployment{}, fmt.Errorf("%w: %s: %w", ErrDeploymentFailed, name, err)
	}

	initData, err := impl.EncodeInitialize(initArgs...)
	if err != nil {
		return Deployment{}, fmt.Errorf("%w: %s: %w", ErrDeploymentFailed, name, err)
	}

	logger.Info("deploying implementation")
	implTx, err := d.chain.DeployContract(ctx, impl.ABI, impl.Bytecode)
	if err != nil {
		return Deployment{}, failure(name, "implementation", err)
	}
	logger = logger.With("implementation", implTx.Address)

	logger.Info("deploying proxy")
	proxyTx, err := d.chain.DeployContract(ctx, proxyArtifact.ABI, proxyArtifact.Bytecode, implTx.Address, proxyAdmin, initData)
	if err != nil {
		return Deployment{}, failure(name, "proxy", err)
	}

	slot, err := d.chain.StorageAt(ctx, proxyTx.Address, implementationSlot)
	if err != nil {
		return Deployment{}, failure(name, "proxy", err)
	}
	if got := common.BytesToAddress(slot.Bytes()); got != implTx.Address {
		return Deployment{}, fmt.Errorf("%w: %s proxy %s points at %s, want %s", ErrDeploymentFailed, name, proxyTx.Address, got, implTx.Address)
	}

	logger.With("address", proxyTx.Address, "block", proxyTx.Block).Info("proxy deployed")

	return Deployment{
		Address:        proxyTx.Address,
		Implementation: implTx.Address,
		TxHash:         proxyTx.Hash,
		Block:          proxyTx.Block,
	}, nil
}

// DeployContract deploys name without a proxy.
func (d *Deployer) DeployContract(ctx context.Context, name contracts.Name, constructorArgs ...any) (Deployment, error) {
	artifact, err := d.artifacts.Load(name)
	if err != nil {
		return Deployment{}, fmt.Errorf("%w: %s: %w", ErrDeploymentFailed, name, err)
	}

	d.logger.With("contract", name).Info("deploying contract")
	tx, err := d.chain.DeployContract(ctx, artifact.ABI, artifact.Bytecode, constructorArgs...)
	if err != nil {
		return Deployment{}, failure(name, "contract", err)
	}

	return Deployment{Address: tx.Address, TxHash: tx.Hash, Block: tx.Block}, nil
}

func failure(name contracts.Name, what string, err error) error {
	if errors.Is(err, chain.ErrConfirmationTimeout) {
		return fmt.Errorf("%w: %s %s outcome inconclusive, the transaction may still land: %w", ErrDeploymentFailed, name, what, err)
	}
	return fmt.Errorf("%w: %s %s: %w", ErrDeploymentFailed, name, what, err)
}
