package governance

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"github.com/unlock-protocol/governance-deployer/internal/chain"
)

func TestVerifyRoles(t *testing.T) {
	timelock := common.HexToAddress("0x71")
	governor := common.HexToAddress("0x60")
	other := common.HexToAddress("0x07")

	cases := []struct {
		name    string
		setup   func(*fakeChain)
		in      VerifyInput
		wantErr []string
	}{
		{
			name: "final state holds",
			setup: func(f *fakeChain) {
				f.setRole(timelock, chain.RoleProposer, governor, true)
			},
			in: VerifyInput{GrantBlock: 10, RenounceBlock: 11},
		},
		{
			name: "extra proposer",
			setup: func(f *fakeChain) {
				f.setRole(timelock, chain.RoleProposer, governor, true)
				f.setRole(timelock, chain.RoleProposer, other, true)
			},
			wantErr: []string{"want only governor"},
		},
		{
			name: "deployer still admin",
			setup: func(f *fakeChain) {
				f.setRole(timelock, chain.RoleProposer, governor, true)
				f.setRole(timelock, chain.RoleAdmin, testDeployer, true)
			},
			wantErr: []string{"still holds the admin role"},
		},
		{
			name: "renounce before grant",
			setup: func(f *fakeChain) {
				f.setRole(timelock, chain.RoleProposer, governor, true)
			},
			in:      VerifyInput{GrantBlock: 12, RenounceBlock: 11},
			wantErr: []string{"did not precede"},
		},
		{
			name: "everything wrong",
			setup: func(f *fakeChain) {
				f.setRole(timelock, chain.RoleAdmin, testDeployer, true)
			},
			wantErr: []string{"want only governor", "is not a proposer", "still holds the admin role"},
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			f := newFakeChain(localhostChainID)
			c.setup(f)

			in := c.in
			in.Timelock, in.Governor, in.Deployer = timelock, governor, testDeployer

			report, err := VerifyRoles(context.Background(), f, in)
			if len(c.wantErr) == 0 {
				require.NoError(t, err)
				require.Equal(t, []common.Address{governor}, report.Proposers)
				require.True(t, report.GovernorIsProposer)
				require.False(t, report.DeployerIsAdmin)
				return
			}
			require.ErrorIs(t, err, ErrInvariantViolated)
			for _, msg := range c.wantErr {
				require.ErrorContains(t, err, msg)
			}
		})
	}
}

func TestStepText(t *testing.T) {
	data, err := json.Marshal(RunState{LastCompleted: StepGrantProposer})
	require.NoError(t, err)
	require.Contains(t, string(data), `"lastCompleted":"grant-proposer"`)

	var state RunState
	require.NoError(t, json.Unmarshal(data, &state))
	require.Equal(t, StepGrantProposer, state.LastCompleted)

	require.Error(t, json.Unmarshal([]byte(`{"lastCompleted":"launch"}`), &state))
	require.Equal(t, "step(42)", Step(42).String())
}
