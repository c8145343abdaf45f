package chain

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/lmittmann/w3"
)

// logRange caps each eth_getLogs query; most public RPCs refuse wider windows.
const logRange = uint64(10_000)

var (
	eventRoleGranted = w3.MustNewEvent("RoleGranted(bytes32 indexed role, address indexed account, address indexed sender)")
	eventRoleRevoked = w3.MustNewEvent("RoleRevoked(bytes32 indexed role, address indexed account, address indexed sender)")
)

// RoleMembers rebuilds the current holders of role on contract by replaying
// RoleGranted and RoleRevoked events from fromBlock to the chain head.
func (c *Client) RoleMembers(ctx context.Context, contract common.Address, role Role, fromBlock uint64) ([]common.Address, error) {
	head, err := c.BlockNumber(ctx)
	if err != nil {
		return nil, err
	}

	var logs []types.Log
	for start := fromBlock; start <= head; start += logRange {
		end := min(start+logRange-1, head)
		chunk, err := c.eth.FilterLogs(ctx, ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(start),
			ToBlock:   new(big.Int).SetUint64(end),
			Addresses: []common.Address{contract},
			Topics: [][]common.Hash{
				{eventRoleGranted.Topic0, eventRoleRevoked.Topic0},
				{role.ID()},
			},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to filter role logs in blocks %d-%d: %w", start, end, err)
		}
		logs = append(logs, chunk...)
	}

	return replayRoleLogs(logs, role)
}

func replayRoleLogs(logs []types.Log, role Role) ([]common.Address, error) {
	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].Index < logs[j].Index
	})

	members := make(map[common.Address]struct{})
	for i := range logs {
		log := &logs[i]
		if log.Removed || len(log.Topics) == 0 {
			continue
		}

		var (
			id      common.Hash
			account common.Address
			sender  common.Address
		)
		switch log.Topics[0] {
		case eventRoleGranted.Topic0:
			if err := eventRoleGranted.DecodeArgs(log, &id, &account, &sender); err != nil {
				return nil, fmt.Errorf("decode RoleGranted in tx %s: %w", log.TxHash, err)
			}
			if id == role.ID() {
				members[account] = struct{}{}
			}
		case eventRoleRevoked.Topic0:
			if err := eventRoleRevoked.DecodeArgs(log, &id, &account, &sender); err != nil {
				return nil, fmt.Errorf("decode RoleRevoked in tx %s: %w", log.TxHash, err)
			}
			if id == role.ID() {
				delete(members, account)
			}
		}
	}

	out := make([]common.Address, 0, len(members))
	for addr := range members {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i].Bytes(), out[j].Bytes()) < 0 })

	return out, nil
}
