package chain

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Role is one of the Timelock's access-control roles. The set is closed.
type Role int

const (
	RoleAdmin Role = iota
	RoleProposer
	RoleExecutor
)

var roles = []struct {
	role Role
	name string
	id   common.Hash
}{
	{RoleAdmin, "TIMELOCK_ADMIN_ROLE", common.HexToHash("0x5f58e3a2316349923ce3780f8d587db2d72378aed66a8261c916544fa6846ca5")},
	{RoleProposer, "PROPOSER_ROLE", common.HexToHash("0xb09aa5aeb3702cfd50b6b62bc4532604938f21248a27a1d5ca736082b6819cc1")},
	{RoleExecutor, "EXECUTOR_ROLE", common.HexToHash("0xd8aa0f3194971a2a116679f7c2090f6939c8d4e01a2a8d7e41d55e5351469e63")},
}

// ID is the 32-byte role identifier the contract stores.
func (r Role) ID() common.Hash {
	if r < 0 || int(r) >= len(roles) {
		return common.Hash{}
	}
	return roles[r].id
}

func (r Role) String() string {
	if r < 0 || int(r) >= len(roles) {
		return fmt.Sprintf("Role(%d)", int(r))
	}
	return roles[r].name
}

// ValidateRoles checks every role constant against keccak256 of its name.
// Called once at startup; a mismatch means the binary would target the wrong role.
func ValidateRoles() error {
	for i, r := range roles {
		if int(r.role) != i {
			return fmt.Errorf("role table out of order at %s", r.name)
		}
		if got := crypto.Keccak256Hash([]byte(r.name)); got != r.id {
			return fmt.Errorf("role %s id %s does not match keccak256 %s", r.name, r.id, got)
		}
	}
	return nil
}
