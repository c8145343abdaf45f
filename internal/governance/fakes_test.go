package governance

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"path/filepath"
	"sort"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"github.com/unlock-protocol/governance-deployer/configs"
	"github.com/unlock-protocol/governance-deployer/internal/chain"
	"github.com/unlock-protocol/governance-deployer/internal/contracts"
	"github.com/unlock-protocol/governance-deployer/internal/infra/filesystem/json"
	"github.com/unlock-protocol/governance-deployer/internal/network"
	"github.com/unlock-protocol/governance-deployer/internal/proxy"
	"github.com/unlock-protocol/governance-deployer/internal/registry"
)

var (
	testDeployer = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	errRPC       = errors.New("rpc unavailable")
)

type (
	// fakeChain keeps role membership per contract in memory and mines one block
	// per transaction.
	fakeChain struct {
		chainID  uint64
		deployer common.Address
		block    uint64
		nextAddr uint64
		code     map[common.Address]bool
		roles    map[common.Address]map[chain.Role]map[common.Address]bool

		grantErr     error
		grantNoop    bool
		renounceNoop bool
		grants       int
		renounces    int
	}

	deployCall struct {
		name     contracts.Name
		admin    common.Address
		initArgs []any
	}

	fakeDeployer struct {
		chain *fakeChain
		calls []deployCall
		fail  map[contracts.Name]error
	}
)

func newFakeChain(chainID uint64) *fakeChain {
	return &fakeChain{
		chainID:  chainID,
		deployer: testDeployer,
		block:    100,
		nextAddr: 0xc000,
		code:     make(map[common.Address]bool),
		roles:    make(map[common.Address]map[chain.Role]map[common.Address]bool),
	}
}

func (f *fakeChain) mine() uint64 {
	f.block++
	return f.block
}

func (f *fakeChain) newContract() common.Address {
	f.nextAddr++
	addr := common.BigToAddress(new(big.Int).SetUint64(f.nextAddr))
	f.code[addr] = true
	return addr
}

func (f *fakeChain) setRole(contract common.Address, role chain.Role, account common.Address, held bool) {
	if f.roles[contract] == nil {
		f.roles[contract] = make(map[chain.Role]map[common.Address]bool)
	}
	if f.roles[contract][role] == nil {
		f.roles[contract][role] = make(map[common.Address]bool)
	}
	if held {
		f.roles[contract][role][account] = true
	} else {
		delete(f.roles[contract][role], account)
	}
}

func (f *fakeChain) ChainID() uint64          { return f.chainID }
func (f *fakeChain) Deployer() common.Address { return f.deployer }

func (f *fakeChain) HasCode(_ context.Context, addr common.Address) (bool, error) {
	return f.code[addr], nil
}

func (f *fakeChain) HasRole(_ context.Context, contract common.Address, role chain.Role, account common.Address) (bool, error) {
	return f.roles[contract][role][account], nil
}

func (f *fakeChain) RoleMembers(_ context.Context, contract common.Address, role chain.Role, _ uint64) ([]common.Address, error) {
	members := make([]common.Address, 0)
	for addr := range f.roles[contract][role] {
		members = append(members, addr)
	}
	sort.Slice(members, func(i, j int) bool { return bytes.Compare(members[i].Bytes(), members[j].Bytes()) < 0 })
	return members, nil
}

func (f *fakeChain) GrantRole(_ context.Context, contract common.Address, role chain.Role, account common.Address) (chain.TxResult, error) {
	if f.grantErr != nil {
		return chain.TxResult{}, f.grantErr
	}
	f.grants++
	if !f.grantNoop {
		f.setRole(contract, role, account, true)
	}
	return chain.TxResult{Hash: common.HexToHash("0x9a"), Block: f.mine()}, nil
}

func (f *fakeChain) RenounceRole(_ context.Context, contract common.Address, role chain.Role, account common.Address) (chain.TxResult, error) {
	f.renounces++
	if !f.renounceNoop {
		f.setRole(contract, role, account, false)
	}
	return chain.TxResult{Hash: common.HexToHash("0x9b"), Block: f.mine()}, nil
}

func (d *fakeDeployer) DeployProxy(_ context.Context, name contracts.Name, admin common.Address, initArgs ...any) (proxy.Deployment, error) {
	if err := d.fail[name]; err != nil {
		return proxy.Deployment{}, err
	}
	d.calls = append(d.calls, deployCall{name: name, admin: admin, initArgs: initArgs})

	impl := d.chain.newContract()
	addr := d.chain.newContract()
	block := d.chain.mine()

	if name == contracts.Timelock {
		// mirrors TimelockController.initialize: msg.sender and the timelock itself are admins
		d.chain.setRole(addr, chain.RoleAdmin, d.chain.deployer, true)
		d.chain.setRole(addr, chain.RoleAdmin, addr, true)
		for _, p := range initArgs[1].([]common.Address) {
			d.chain.setRole(addr, chain.RoleProposer, p, true)
		}
		for _, e := range initArgs[2].([]common.Address) {
			d.chain.setRole(addr, chain.RoleExecutor, e, true)
		}
	}

	return proxy.Deployment{
		Address:        addr,
		Implementation: impl,
		TxHash:         common.BigToHash(new(big.Int).SetUint64(block)),
		Block:          block,
	}, nil
}

func (d *fakeDeployer) DeployContract(_ context.Context, name contracts.Name, constructorArgs ...any) (proxy.Deployment, error) {
	if err := d.fail[name]; err != nil {
		return proxy.Deployment{}, err
	}
	d.calls = append(d.calls, deployCall{name: name, initArgs: constructorArgs})

	addr := d.chain.newContract()
	block := d.chain.mine()

	return proxy.Deployment{Address: addr, TxHash: common.BigToHash(new(big.Int).SetUint64(block)), Block: block}, nil
}

func (d *fakeDeployer) deployed() []contracts.Name {
	names := make([]contracts.Name, 0, len(d.calls))
	for _, c := range d.calls {
		names = append(names, c.name)
	}
	return names
}

type harness struct {
	chain    *fakeChain
	deployer *fakeDeployer
	registry *registry.Registry
	states   *StateStore
	table    *network.Table
	dir      string
}

func newHarness(t *testing.T, chainID uint64, opts ...registry.Option) *harness {
	t.Helper()

	table, err := network.LoadTable("", "localhost")
	require.NoError(t, err)

	dir := t.TempDir()
	opts = append([]registry.Option{registry.WithPriorManifest("network-table", table)}, opts...)
	reg, err := registry.Open(filepath.Join(dir, "deployments.json"), json.NewReader(), json.NewWriter(), opts...)
	require.NoError(t, err)

	fc := newFakeChain(chainID)

	return &harness{
		chain:    fc,
		deployer: &fakeDeployer{chain: fc, fail: make(map[contracts.Name]error)},
		registry: reg,
		states:   NewStateStore(filepath.Join(dir, "state"), json.NewReader(), json.NewWriter()),
		table:    table,
		dir:      dir,
	}
}

func (h *harness) orchestrator() *Orchestrator {
	return NewOrchestrator(h.chain, h.deployer, h.registry, h.table, h.states)
}

func testConfig() configs.Governance {
	return configs.Governance{
		MinDelaySeconds: 604800,
		Executor:        "0x0000000000000000000000000000000000000000",
	}
}
