package output

import (
	"github.com/ethereum/go-ethereum/common"
)

const (
	StatusSucceeded  = "succeeded"
	StatusFailed     = "failed"
	StatusPartial    = "in-progress"
	StatusNotStarted = "not-started"
)

type (
	Model struct {
		Governance Governance `yaml:"governance"`
	}

	NetworkEntry struct {
		ChainID   uint64            `yaml:"chain-id"`
		Name      string            `yaml:"name"`
		Bootstrap bool              `yaml:"bootstrap,omitempty"`
		Contracts map[string]string `yaml:"contracts,omitempty"`
	}

	Governance struct {
		Status        string                 `yaml:"status"`
		Network       string                 `yaml:"network"`
		ChainID       uint64                 `yaml:"chain-id"`
		Deployer      common.Address         `yaml:"deployer"`
		LastCompleted string                 `yaml:"last-completed"`
		FailedStep    string                 `yaml:"failed-step,omitempty"`
		Error         string                 `yaml:"error,omitempty"`
		Contracts     map[string]Contract    `yaml:"contracts,omitempty"`
		Transactions  map[string]Transaction `yaml:"transactions,omitempty"`
		Roles         *Roles                 `yaml:"roles,omitempty"`
	}

	Contract struct {
		Address        common.Address  `yaml:"address"`
		Implementation *common.Address `yaml:"implementation,omitempty"`
		TxHash         *common.Hash    `yaml:"tx-hash,omitempty"`
		Block          uint64          `yaml:"block,omitempty"`
		Source         string          `yaml:"source,omitempty"`
	}

	Transaction struct {
		Hash  common.Hash `yaml:"hash"`
		Block uint64      `yaml:"block"`
	}

	Roles struct {
		Proposers          []common.Address `yaml:"proposers"`
		GovernorIsProposer bool             `yaml:"governor-is-proposer"`
		DeployerIsAdmin    bool             `yaml:"deployer-is-admin"`
	}
)

// NewContract builds a report entry, leaving zero-valued optional fields out.
func NewContract(address, implementation common.Address, txHash common.Hash, block uint64) Contract {
	c := Contract{Address: address, Block: block}
	if implementation != (common.Address{}) {
		c.Implementation = &implementation
	}
	if txHash != (common.Hash{}) {
		c.TxHash = &txHash
	}
	return c
}
