package governance

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/unlock-protocol/governance-deployer/internal/chain"
)

type (
	// VerifyInput names the contracts to check. GrantBlock and RenounceBlock are
	// zero when the role transactions were not both sent by the same run.
	VerifyInput struct {
		Timelock      common.Address
		Governor      common.Address
		Deployer      common.Address
		FromBlock     uint64
		GrantBlock    uint64
		RenounceBlock uint64
	}

	RoleReport struct {
		Proposers          []common.Address `json:"proposers"`
		GovernorIsProposer bool             `json:"governorIsProposer"`
		DeployerIsAdmin    bool             `json:"deployerIsAdmin"`
	}
)

// VerifyRoles reads the Timelock's final role state and checks that the Governor
// is the only proposer, the deployer is no longer admin and the grant landed
// before the renounce.
func VerifyRoles(ctx context.Context, reader RoleReader, in VerifyInput) (RoleReport, error) {
	var report RoleReport

	proposers, err := reader.RoleMembers(ctx, in.Timelock, chain.RoleProposer, in.FromBlock)
	if err != nil {
		return report, fmt.Errorf("failed to list proposers: %w", err)
	}
	report.Proposers = proposers

	if report.GovernorIsProposer, err = reader.HasRole(ctx, in.Timelock, chain.RoleProposer, in.Governor); err != nil {
		return report, err
	}
	if report.DeployerIsAdmin, err = reader.HasRole(ctx, in.Timelock, chain.RoleAdmin, in.Deployer); err != nil {
		return report, err
	}

	var violations []error
	if len(proposers) != 1 || proposers[0] != in.Governor {
		violations = append(violations, fmt.Errorf("proposers are %v, want only governor %s", proposers, in.Governor))
	}
	if !report.GovernorIsProposer {
		violations = append(violations, fmt.Errorf("hasRole reports governor %s is not a proposer", in.Governor))
	}
	if report.DeployerIsAdmin {
		violations = append(violations, fmt.Errorf("deployer %s still holds the admin role", in.Deployer))
	}
	if in.GrantBlock != 0 && in.RenounceBlock != 0 && in.GrantBlock >= in.RenounceBlock {
		violations = append(violations, fmt.Errorf("proposer grant in block %d did not precede admin renounce in block %d", in.GrantBlock, in.RenounceBlock))
	}

	if len(violations) > 0 {
		return report, fmt.Errorf("%w: %w", ErrInvariantViolated, errors.Join(violations...))
	}

	return report, nil
}
