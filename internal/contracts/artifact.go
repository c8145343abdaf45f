package contracts

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/unlock-protocol/governance-deployer/internal/infra/filesystem"
	"github.com/unlock-protocol/governance-deployer/internal/logger"
)

type Name string

const (
	Timelock         Name = "UnlockProtocolTimelock"
	Governor         Name = "UnlockProtocolGovernor"
	Token            Name = "UnlockDiscountToken"
	ProxyAdmin       Name = "ProxyAdmin"
	TransparentProxy Name = "TransparentUpgradeableProxy"

	initializer = "initialize"
)

var (
	ErrUnknownContract = errors.New("unknown contract")

	known = map[Name]struct{}{
		Timelock:         {},
		Governor:         {},
		Token:            {},
		ProxyAdmin:       {},
		TransparentProxy: {},
	}
)

type (
	// Artifact is a compiled contract: its ABI and creation bytecode.
	Artifact struct {
		Name     Name
		ABI      abi.ABI
		Bytecode []byte
	}

	artifactFile struct {
		ContractName string          `json:"contractName"`
		ABI          json.RawMessage `json:"abi"`
		Bytecode     string          `json:"bytecode"`
	}

	// Loader reads hardhat-style artifacts from <dir>/<Name>.json and caches them.
	Loader struct {
		dir    string
		reader filesystem.Reader

		mu    sync.Mutex
		cache map[Name]Artifact

		logger *slog.Logger
	}
)

func NewLoader(dir string, reader filesystem.Reader) *Loader {
	return &Loader{
		dir:    dir,
		reader: reader,
		cache:  make(map[Name]Artifact),
		logger: logger.Named("artifact_loader").With("dir", dir),
	}
}

func (l *Loader) Load(name Name) (Artifact, error) {
	if _, ok := known[name]; !ok {
		return Artifact{}, fmt.Errorf("%q: %w", name, ErrUnknownContract)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if a, ok := l.cache[name]; ok {
		return a, nil
	}

	path := filepath.Join(l.dir, string(name)+".json")
	var file artifactFile
	if err := l.reader.ReadJSON(path, &file); err != nil {
		return Artifact{}, fmt.Errorf("failed to load artifact %s: %w", name, err)
	}

	a, err := parseArtifact(name, file)
	if err != nil {
		return Artifact{}, err
	}

	l.logger.With("contract", name, "bytecode_len", len(a.Bytecode)).Debug("artifact loaded")
	l.cache[name] = a

	return a, nil
}

func parseArtifact(name Name, file artifactFile) (Artifact, error) {
	if file.ContractName != "" && file.ContractName != string(name) {
		return Artifact{}, fmt.Errorf("artifact for %s declares contract %s", name, file.ContractName)
	}

	parsedABI, err := abi.JSON(bytes.NewReader(file.ABI))
	if err != nil {
		return Artifact{}, fmt.Errorf("failed to parse ABI for %s: %w", name, err)
	}

	bytecodeHex := strings.TrimSpace(file.Bytecode)
	if !strings.HasPrefix(bytecodeHex, "0x") {
		bytecodeHex = "0x" + bytecodeHex
	}
	bytecode, err := hexutil.Decode(bytecodeHex)
	if err != nil {
		return Artifact{}, fmt.Errorf("failed to decode bytecode for %s: %w", name, err)
	}
	if len(bytecode) == 0 {
		return Artifact{}, fmt.Errorf("artifact %s has no bytecode (abstract contract or interface?)", name)
	}

	return Artifact{Name: name, ABI: parsedABI, Bytecode: bytecode}, nil
}

// EncodeInitialize ABI-encodes a call to the contract's initialize function.
func (a Artifact) EncodeInitialize(args ...any) ([]byte, error) {
	if _, ok := a.ABI.Methods[initializer]; !ok {
		return nil, fmt.Errorf("%s has no %s function", a.Name, initializer)
	}

	data, err := a.ABI.Pack(initializer, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s.%s: %w", a.Name, initializer, err)
	}

	return data, nil
}
