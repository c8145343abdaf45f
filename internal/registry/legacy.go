package registry

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/unlock-protocol/governance-deployer/internal/infra/filesystem"
)

const (
	// legacyPackage is the project prefix the upgrades CLI used for proxy keys.
	legacyPackage = "unlock-protocol"

	// legacyProxyAdmin is answered from the admin of the exported proxies, which
	// the upgrades CLI shared across a network.
	legacyProxyAdmin = "ProxyAdmin"
)

type (
	legacyProxy struct {
		Address        string `json:"address"`
		Admin          string `json:"admin"`
		Implementation string `json:"implementation"`
	}

	legacyNetwork struct {
		Proxies map[string][]legacyProxy `json:"proxies"`
	}

	legacyFile struct {
		Networks map[string]legacyNetwork `json:"networks"`
	}

	// LegacyExport reads the JSON summary exported by the old upgrades CLI:
	// networks.<name>.proxies["unlock-protocol/<Contract>"][0].address.
	LegacyExport struct {
		networks map[string]legacyNetwork
	}
)

func LoadLegacyExport(path string, reader filesystem.Reader) (*LegacyExport, error) {
	var file legacyFile
	if err := reader.ReadJSON(path, &file); err != nil {
		return nil, fmt.Errorf("failed to load legacy export: %w", err)
	}

	for name, n := range file.Networks {
		for key, proxies := range n.Proxies {
			for i, p := range proxies {
				if !common.IsHexAddress(p.Address) {
					return nil, fmt.Errorf("legacy export %s.%s[%d]: %q is not a hex address", name, key, i, p.Address)
				}
				if p.Admin != "" && !common.IsHexAddress(p.Admin) {
					return nil, fmt.Errorf("legacy export %s.%s[%d]: admin %q is not a hex address", name, key, i, p.Admin)
				}
			}
		}
	}

	return &LegacyExport{networks: file.Networks}, nil
}

func (e *LegacyExport) Lookup(network, contract string) (common.Address, bool) {
	n, ok := e.networks[network]
	if !ok {
		return common.Address{}, false
	}

	if contract == legacyProxyAdmin {
		return n.proxyAdmin()
	}

	proxies := n.Proxies[legacyPackage+"/"+contract]
	if len(proxies) == 0 {
		return common.Address{}, false
	}
	return common.HexToAddress(proxies[0].Address), true
}

// proxyAdmin returns the admin of the first exported proxy, by key order, that names one.
func (n legacyNetwork) proxyAdmin() (common.Address, bool) {
	keys := make([]string, 0, len(n.Proxies))
	for key := range n.Proxies {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if proxies := n.Proxies[key]; len(proxies) > 0 && proxies[0].Admin != "" {
			return common.HexToAddress(proxies[0].Admin), true
		}
	}
	return common.Address{}, false
}
