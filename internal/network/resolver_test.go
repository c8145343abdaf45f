package network

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	table, err := LoadTable("", "localhost")
	require.NoError(t, err)

	cases := []struct {
		chainID   uint64
		name      string
		bootstrap bool
		err       bool
	}{
		{1, "mainnet", false, false},
		{100, "xdai", false, false},
		{137, "polygon", false, false},
		{31337, "localhost", true, false},
		{424242, "", false, true},
	}
	for _, c := range cases {
		n, err := table.Resolve(c.chainID)
		if c.err {
			require.ErrorIs(t, err, ErrUnknownNetwork)
			continue
		}
		require.NoError(t, err)
		require.Equal(t, c.name, n.Name)
		require.Equal(t, c.bootstrap, n.Bootstrap)
	}
}

func TestLookupPriorManifest(t *testing.T) {
	table, err := LoadTable("", "localhost")
	require.NoError(t, err)

	addr, ok := table.Lookup("mainnet", "UnlockDiscountToken")
	require.True(t, ok)
	require.Equal(t, common.HexToAddress("0x90DE74265a416e1393A450752175AED98fe11517"), addr)

	_, ok = table.Lookup("mainnet", "UnlockProtocolGovernor")
	require.False(t, ok)
	_, ok = table.Lookup("nowhere", "UnlockDiscountToken")
	require.False(t, ok)
}

func TestLoadTableOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "networks.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[[network]]
chain-id = 137
name = "polygon"
  [network.contracts]
  UnlockDiscountToken = "0x00000000000000000000000000000000000000aa"

[[network]]
chain-id = 84532
name = "base-sepolia"
`), 0o644))

	table, err := LoadTable(path, "base-sepolia")
	require.NoError(t, err)

	polygon, err := table.ByName("polygon")
	require.NoError(t, err)
	require.Equal(t, uint64(137), polygon.ChainID)
	addr, ok := table.Lookup("polygon", "UnlockDiscountToken")
	require.True(t, ok)
	require.Equal(t, common.HexToAddress("0xaa"), addr)

	base, err := table.Resolve(84532)
	require.NoError(t, err)
	require.True(t, base.Bootstrap)

	local, err := table.Resolve(31337)
	require.NoError(t, err)
	require.False(t, local.Bootstrap)
}

func TestLoadTableRejectsBadRows(t *testing.T) {
	dir := t.TempDir()

	badAddr := filepath.Join(dir, "bad-addr.toml")
	require.NoError(t, os.WriteFile(badAddr, []byte(`
[[network]]
chain-id = 1
name = "mainnet"
  [network.contracts]
  UnlockDiscountToken = "not-an-address"
`), 0o644))
	_, err := LoadTable(badAddr, "")
	require.ErrorContains(t, err, "is not a hex address")

	clash := filepath.Join(dir, "clash.toml")
	require.NoError(t, os.WriteFile(clash, []byte(`
[[network]]
chain-id = 2
name = "mainnet"
`), 0o644))
	_, err = LoadTable(clash, "")
	require.ErrorContains(t, err, "already maps to chain 1")

	_, err = LoadTable("", "atlantis")
	require.ErrorIs(t, err, ErrUnknownNetwork)
}

func TestNetworksSorted(t *testing.T) {
	table, err := LoadTable("", "")
	require.NoError(t, err)

	networks := table.Networks()
	require.Len(t, networks, 8)
	for i := 1; i < len(networks); i++ {
		require.Less(t, networks[i-1].ChainID, networks[i].ChainID)
	}
}
