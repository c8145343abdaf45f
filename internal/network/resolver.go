package network

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
)

//go:embed networks.toml
var builtinTable []byte

var ErrUnknownNetwork = errors.New("unknown network")

type (
	// Network is one row of the network table.
	Network struct {
		ChainID   uint64            `toml:"chain-id"`
		Name      string            `toml:"name"`
		Contracts map[string]string `toml:"contracts"`

		// Bootstrap marks the network on which missing dependencies are deployed
		// fresh instead of being treated as fatal.
		Bootstrap bool `toml:"-"`
	}

	tableFile struct {
		Networks []Network `toml:"network"`
	}

	// Table resolves chain ids to networks. It is immutable once loaded.
	Table struct {
		byID   map[uint64]Network
		byName map[string]uint64
	}
)

// LoadTable parses the built-in table and, when overridePath is set, layers the
// operator's file on top of it. Rows are matched by chain id; contract addresses
// from the override win per name.
func LoadTable(overridePath, bootstrapNetwork string) (*Table, error) {
	t := &Table{
		byID:   make(map[uint64]Network),
		byName: make(map[string]uint64),
	}

	if err := t.merge(builtinTable, "built-in network table"); err != nil {
		return nil, err
	}

	if overridePath != "" {
		data, err := os.ReadFile(overridePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read networks file: %w", err)
		}
		if err := t.merge(data, overridePath); err != nil {
			return nil, err
		}
	}

	if bootstrapNetwork != "" {
		id, ok := t.byName[bootstrapNetwork]
		if !ok {
			return nil, fmt.Errorf("bootstrap network %q: %w", bootstrapNetwork, ErrUnknownNetwork)
		}
		n := t.byID[id]
		n.Bootstrap = true
		t.byID[id] = n
	}

	return t, nil
}

func (t *Table) merge(data []byte, source string) error {
	var file tableFile
	if _, err := toml.NewDecoder(bytes.NewReader(data)).Decode(&file); err != nil {
		return fmt.Errorf("failed to decode %s: %w", source, err)
	}

	for _, n := range file.Networks {
		if n.ChainID == 0 || n.Name == "" {
			return fmt.Errorf("%s: every network needs chain-id and name", source)
		}
		if otherID, taken := t.byName[n.Name]; taken && otherID != n.ChainID {
			return fmt.Errorf("%s: network name %q already maps to chain %d", source, n.Name, otherID)
		}
		for contract, addr := range n.Contracts {
			if !common.IsHexAddress(addr) {
				return fmt.Errorf("%s: %s.%s is not a hex address: %q", source, n.Name, contract, addr)
			}
		}

		existing, ok := t.byID[n.ChainID]
		if ok {
			delete(t.byName, existing.Name)
			merged := make(map[string]string, len(existing.Contracts)+len(n.Contracts))
			for k, v := range existing.Contracts {
				merged[k] = v
			}
			for k, v := range n.Contracts {
				merged[k] = v
			}
			n.Contracts = merged
		}

		t.byID[n.ChainID] = n
		t.byName[n.Name] = n.ChainID
	}

	return nil
}

// Resolve returns the network registered for chainID.
func (t *Table) Resolve(chainID uint64) (Network, error) {
	n, ok := t.byID[chainID]
	if !ok {
		return Network{}, fmt.Errorf("chain id %d: %w", chainID, ErrUnknownNetwork)
	}
	return n, nil
}

// ByName returns the network registered under name.
func (t *Table) ByName(name string) (Network, error) {
	id, ok := t.byName[name]
	if !ok {
		return Network{}, fmt.Errorf("network %q: %w", name, ErrUnknownNetwork)
	}
	return t.byID[id], nil
}

// Lookup reports the address a previous deployment recorded for contract on network.
func (t *Table) Lookup(network, contract string) (common.Address, bool) {
	id, ok := t.byName[network]
	if !ok {
		return common.Address{}, false
	}
	addr, ok := t.byID[id].Contracts[contract]
	if !ok {
		return common.Address{}, false
	}
	return common.HexToAddress(addr), true
}

// Networks lists every network ordered by chain id.
func (t *Table) Networks() []Network {
	out := make([]Network, 0, len(t.byID))
	for _, n := range t.byID {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChainID < out[j].ChainID })
	return out
}

// Describe is the human-readable label used in logs and reports.
func (n Network) Describe() string {
	return fmt.Sprintf("%s (chain %d)", n.Name, n.ChainID)
}
