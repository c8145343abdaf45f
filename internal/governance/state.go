package governance

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/unlock-protocol/governance-deployer/internal/infra/filesystem"
	"github.com/unlock-protocol/governance-deployer/internal/logger"
)

const stateVersion = 1

// Step is one stage of a governance run. Steps run in declaration order.
type Step int

const (
	StepNone Step = iota
	StepResolveDependencies
	StepDeployTimelock
	StepDeployGovernor
	StepGrantProposer
	StepRenounceAdmin
	StepVerify
)

var stepNames = [...]string{
	StepNone:                "none",
	StepResolveDependencies: "resolve-dependencies",
	StepDeployTimelock:      "deploy-timelock",
	StepDeployGovernor:      "deploy-governor",
	StepGrantProposer:       "grant-proposer",
	StepRenounceAdmin:       "renounce-admin",
	StepVerify:              "verify",
}

func (s Step) String() string {
	if s < 0 || int(s) >= len(stepNames) {
		return fmt.Sprintf("step(%d)", int(s))
	}
	return stepNames[s]
}

func (s Step) MarshalText() ([]byte, error) {
	if s < 0 || int(s) >= len(stepNames) {
		return nil, fmt.Errorf("unknown step %d", int(s))
	}
	return []byte(stepNames[s]), nil
}

func (s *Step) UnmarshalText(text []byte) error {
	for i, name := range stepNames {
		if name == string(text) {
			*s = Step(i)
			return nil
		}
	}
	return fmt.Errorf("unknown step %q", text)
}

type (
	// ContractState is a confirmed deployment made or resolved during a run.
	ContractState struct {
		Address        common.Address `json:"address"`
		Implementation common.Address `json:"implementation"`
		TxHash         common.Hash    `json:"txHash"`
		Block          uint64         `json:"block"`
	}

	TxState struct {
		Hash  common.Hash `json:"hash"`
		Block uint64      `json:"block"`
	}

	// RunState is the resumable progress of a run on one network. It is saved after
	// every confirmed transaction and after every completed step.
	RunState struct {
		Version       int            `json:"version"`
		Network       string         `json:"network"`
		ChainID       uint64         `json:"chainId"`
		Deployer      common.Address `json:"deployer"`
		LastCompleted Step           `json:"lastCompleted"`

		Token      *ContractState `json:"token,omitempty"`
		ProxyAdmin *ContractState `json:"proxyAdmin,omitempty"`
		Timelock   *ContractState `json:"timelock,omitempty"`
		Governor   *ContractState `json:"governor,omitempty"`

		GrantTx    *TxState `json:"grantTx,omitempty"`
		RenounceTx *TxState `json:"renounceTx,omitempty"`

		// Roles is the role state read by the verify step.
		Roles *RoleReport `json:"roles,omitempty"`

		UpdatedAt time.Time `json:"updatedAt"`
	}

	// StateStore keeps one RunState file per network under dir.
	StateStore struct {
		dir    string
		reader filesystem.Reader
		writer filesystem.Writer
		logger *slog.Logger
	}
)

func (s RunState) Completed(step Step) bool {
	return s.LastCompleted >= step
}

func NewStateStore(dir string, reader filesystem.Reader, writer filesystem.Writer) *StateStore {
	return &StateStore{
		dir:    dir,
		reader: reader,
		writer: writer,
		logger: logger.Named("state_store").With("dir", dir),
	}
}

func (s *StateStore) Path(network string) string {
	return filepath.Join(s.dir, network+".json")
}

// Load returns the saved state for network. The bool is false when no run has
// been recorded yet.
func (s *StateStore) Load(network string) (RunState, bool, error) {
	path := s.Path(network)

	exists, err := s.reader.Exists(path)
	if err != nil {
		return RunState{}, false, fmt.Errorf("failed to check run state for %s: %w", network, err)
	}
	if !exists {
		return RunState{}, false, nil
	}

	var state RunState
	if err := s.reader.ReadJSON(path, &state); err != nil {
		return RunState{}, false, fmt.Errorf("failed to read run state for %s: %w", network, err)
	}

	if state.Version > stateVersion {
		return RunState{}, false, fmt.Errorf("run state version %d for %s is newer than supported version %d", state.Version, network, stateVersion)
	}

	return state, true, nil
}

func (s *StateStore) Save(state *RunState) error {
	state.Version = stateVersion
	state.UpdatedAt = time.Now().UTC()

	if err := s.writer.WriteJSON(s.Path(state.Network), state); err != nil {
		return fmt.Errorf("failed to save run state for %s: %w", state.Network, err)
	}

	s.logger.With("network", state.Network, "last_completed", state.LastCompleted).Debug("run state saved")

	return nil
}
