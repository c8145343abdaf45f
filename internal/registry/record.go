package registry

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const manifestVersion = 1

type (
	// Record describes one confirmed contract deployment. Records are written once
	// and never edited; an intentional redeploy moves the old record into History.
	Record struct {
		ContractName   string         `json:"contractName"`
		Address        common.Address `json:"address"`
		Network        string         `json:"network"`
		ChainID        uint64         `json:"chainId"`
		IsProxy        bool           `json:"isProxy"`
		Implementation common.Address `json:"implementation"`
		BlockNumber    uint64         `json:"blockNumber"`
		TxHash         common.Hash    `json:"txHash"`
		DeployedAt     time.Time      `json:"deployedAt"`

		// Source names where the record came from when it was not written by this
		// tool, e.g. "network-table" or "legacy-export".
		Source  string   `json:"source,omitempty"`
		History []Record `json:"history,omitempty"`
	}

	// manifest is the on-disk layout of the deployments file.
	manifest struct {
		Version  int                            `json:"version"`
		Networks map[string]*networkDeployments `json:"networks"`
	}

	networkDeployments struct {
		ChainID   uint64            `json:"chainId"`
		Contracts map[string]Record `json:"contracts"`
	}
)

func newManifest() manifest {
	return manifest{
		Version:  manifestVersion,
		Networks: make(map[string]*networkDeployments),
	}
}
