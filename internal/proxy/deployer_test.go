package proxy

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"github.com/unlock-protocol/governance-deployer/internal/chain"
	"github.com/unlock-protocol/governance-deployer/internal/contracts"
)

type (
	deployCall struct {
		bytecode []byte
		args     []any
	}

	fakeChain struct {
		calls   []deployCall
		next    uint64
		failAt  int
		failErr error
		slots   map[common.Address]common.Hash
	}

	fakeArtifacts map[contracts.Name]contracts.Artifact
)

func (f *fakeChain) DeployContract(_ context.Context, _ abi.ABI, bytecode []byte, args ...any) (chain.TxResult, error) {
	f.calls = append(f.calls, deployCall{bytecode: bytecode, args: args})
	if f.failErr != nil && len(f.calls) == f.failAt {
		return chain.TxResult{}, f.failErr
	}
	f.next++
	addr := common.BigToAddress(new(big.Int).SetUint64(0x1000 + f.next))
	if len(args) == 3 {
		if f.slots == nil {
			f.slots = make(map[common.Address]common.Hash)
		}
		if _, ok := f.slots[addr]; !ok {
			f.slots[addr] = common.BytesToHash(args[0].(common.Address).Bytes())
		}
	}
	return chain.TxResult{Hash: common.BigToHash(new(big.Int).SetUint64(f.next)), Block: 100 + f.next, Address: addr}, nil
}

func (f *fakeChain) StorageAt(_ context.Context, addr common.Address, _ common.Hash) (common.Hash, error) {
	return f.slots[addr], nil
}

func (f fakeArtifacts) Load(name contracts.Name) (contracts.Artifact, error) {
	a, ok := f[name]
	if !ok {
		return contracts.Artifact{}, contracts.ErrUnknownContract
	}
	return a, nil
}

func artifacts(t *testing.T) fakeArtifacts {
	t.Helper()
	tokenABI, err := abi.JSON(strings.NewReader(`[{"type":"function","name":"initialize","inputs":[{"name":"minter","type":"address"}],"outputs":[]}]`))
	require.NoError(t, err)
	return fakeArtifacts{
		contracts.Token:            {Name: contracts.Token, ABI: tokenABI, Bytecode: []byte{0x01}},
		contracts.TransparentProxy: {Name: contracts.TransparentProxy, Bytecode: []byte{0x02}},
		contracts.ProxyAdmin:       {Name: contracts.ProxyAdmin, Bytecode: []byte{0x03}},
	}
}

func TestDeployProxy(t *testing.T) {
	fc := &fakeChain{}
	d := NewDeployer(fc, artifacts(t))
	admin := common.HexToAddress("0xad")
	minter := common.HexToAddress("0xd1")

	dep, err := d.DeployProxy(context.Background(), contracts.Token, admin, minter)
	require.NoError(t, err)

	require.Len(t, fc.calls, 2)
	require.Equal(t, []byte{0x01}, fc.calls[0].bytecode)
	require.Empty(t, fc.calls[0].args)
	require.Equal(t, []byte{0x02}, fc.calls[1].bytecode)
	require.Equal(t, dep.Implementation, fc.calls[1].args[0])
	require.Equal(t, admin, fc.calls[1].args[1])

	initData := fc.calls[1].args[2].([]byte)
	method := artifacts(t)[contracts.Token].ABI.Methods["initialize"]
	require.Equal(t, method.ID, initData[:4])
	decoded, err := method.Inputs.Unpack(initData[4:])
	require.NoError(t, err)
	require.Equal(t, minter, decoded[0])

	require.NotEqual(t, dep.Address, dep.Implementation)
	require.Equal(t, uint64(102), dep.Block)
}

func TestDeployProxyFailures(t *testing.T) {
	admin := common.HexToAddress("0xad")

	t.Run("implementation reverts", func(t *testing.T) {
		fc := &fakeChain{failAt: 1, failErr: chain.ErrTxReverted}
		_, err := NewDeployer(fc, artifacts(t)).DeployProxy(context.Background(), contracts.Token, admin, admin)
		require.ErrorIs(t, err, ErrDeploymentFailed)
		require.ErrorIs(t, err, chain.ErrTxReverted)
		require.Len(t, fc.calls, 1)
	})

	t.Run("proxy times out", func(t *testing.T) {
		fc := &fakeChain{failAt: 2, failErr: chain.ErrConfirmationTimeout}
		_, err := NewDeployer(fc, artifacts(t)).DeployProxy(context.Background(), contracts.Token, admin, admin)
		require.ErrorIs(t, err, ErrDeploymentFailed)
		require.ErrorIs(t, err, chain.ErrConfirmationTimeout)
		require.ErrorContains(t, err, "inconclusive")
	})

	t.Run("wrong implementation slot", func(t *testing.T) {
		fc := &fakeChain{slots: map[common.Address]common.Hash{
			common.BigToAddress(big.NewInt(0x1002)): common.HexToHash("0xbad"),
		}}
		_, err := NewDeployer(fc, artifacts(t)).DeployProxy(context.Background(), contracts.Token, admin, admin)
		require.ErrorIs(t, err, ErrDeploymentFailed)
		require.ErrorContains(t, err, "points at")
	})

	t.Run("bad initializer args", func(t *testing.T) {
		fc := &fakeChain{}
		_, err := NewDeployer(fc, artifacts(t)).DeployProxy(context.Background(), contracts.Token, admin)
		require.ErrorIs(t, err, ErrDeploymentFailed)
		require.Empty(t, fc.calls)
	})

	t.Run("missing artifact", func(t *testing.T) {
		_, err := NewDeployer(&fakeChain{}, artifacts(t)).DeployProxy(context.Background(), contracts.Governor, admin)
		require.ErrorIs(t, err, ErrDeploymentFailed)
		require.True(t, errors.Is(err, contracts.ErrUnknownContract))
	})
}

func TestDeployContract(t *testing.T) {
	fc := &fakeChain{}
	dep, err := NewDeployer(fc, artifacts(t)).DeployContract(context.Background(), contracts.ProxyAdmin)
	require.NoError(t, err)
	require.Len(t, fc.calls, 1)
	require.Equal(t, []byte{0x03}, fc.calls[0].bytecode)
	require.Equal(t, common.Address{}, dep.Implementation)
	require.NotEqual(t, common.Address{}, dep.Address)
}
