package chain

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
)

func TestValidateRoles(t *testing.T) {
	require.NoError(t, ValidateRoles())

	require.Equal(t, "PROPOSER_ROLE", RoleProposer.String())
	require.Equal(t, common.HexToHash("0x5f58e3a2316349923ce3780f8d587db2d72378aed66a8261c916544fa6846ca5"), RoleAdmin.ID())
	require.Equal(t, "Role(7)", Role(7).String())
	require.Equal(t, common.Hash{}, Role(7).ID())
}

func TestParsePrivateKey(t *testing.T) {
	for _, key := range []string{
		"0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80",
		"ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80",
	} {
		_, addr, err := ParsePrivateKey(key)
		require.NoError(t, err)
		require.Equal(t, common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"), addr)
	}

	_, _, err := ParsePrivateKey("0xnothex")
	require.ErrorContains(t, err, "failed to parse private key")
}

func roleLog(granted bool, role Role, account common.Address, block uint64, index uint) types.Log {
	topic0 := eventRoleRevoked.Topic0
	if granted {
		topic0 = eventRoleGranted.Topic0
	}
	return types.Log{
		Topics: []common.Hash{
			topic0,
			role.ID(),
			common.BytesToHash(account.Bytes()),
			common.BytesToHash(common.HexToAddress("0x5e").Bytes()),
		},
		BlockNumber: block,
		Index:       index,
	}
}

func TestReplayRoleLogs(t *testing.T) {
	deployer := common.HexToAddress("0xd1")
	governor := common.HexToAddress("0x90")
	other := common.HexToAddress("0x07")

	cases := []struct {
		name string
		logs []types.Log
		want []common.Address
	}{
		{
			name: "no events",
			want: []common.Address{},
		},
		{
			name: "grant only",
			logs: []types.Log{roleLog(true, RoleProposer, governor, 10, 0)},
			want: []common.Address{governor},
		},
		{
			name: "grant then revoke out of order",
			logs: []types.Log{
				roleLog(false, RoleProposer, other, 12, 0),
				roleLog(true, RoleProposer, governor, 11, 1),
				roleLog(true, RoleProposer, other, 11, 0),
			},
			want: []common.Address{governor},
		},
		{
			name: "other roles ignored",
			logs: []types.Log{
				roleLog(true, RoleAdmin, deployer, 5, 0),
				roleLog(true, RoleProposer, other, 6, 0),
				roleLog(true, RoleProposer, governor, 7, 0),
			},
			want: []common.Address{other, governor},
		},
		{
			name: "removed logs skipped",
			logs: func() []types.Log {
				l := roleLog(true, RoleProposer, other, 6, 0)
				l.Removed = true
				return []types.Log{l, roleLog(true, RoleProposer, governor, 7, 0)}
			}(),
			want: []common.Address{governor},
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := replayRoleLogs(c.logs, RoleProposer)
			require.NoError(t, err)
			require.Equal(t, c.want, got)
		})
	}
}
