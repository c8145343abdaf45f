package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/unlock-protocol/governance-deployer/internal/infra/filesystem"
	"github.com/unlock-protocol/governance-deployer/internal/logger"
)

var (
	ErrRecordNotFound = errors.New("deployment record not found")
	ErrRecordExists   = errors.New("deployment record already exists")
)

type (
	// PriorManifest is a read-only source of addresses recorded by earlier tooling.
	PriorManifest interface {
		Lookup(network, contract string) (common.Address, bool)
	}

	namedPrior struct {
		name     string
		manifest PriorManifest
	}

	Option func(*Registry)

	// Registry is the persisted record of deployed contracts per network. It is
	// not safe for concurrent writers; callers serialise runs with Lock.
	Registry struct {
		path           string
		reader         filesystem.Reader
		writer         filesystem.Writer
		priors         []namedPrior
		allowOverwrite bool
		manifest       manifest
		logger         *slog.Logger
	}
)

// WithPriorManifest adds a read-only fallback consulted, in registration order,
// when the deployments file has no record for a key.
func WithPriorManifest(name string, prior PriorManifest) Option {
	return func(r *Registry) {
		r.priors = append(r.priors, namedPrior{name: name, manifest: prior})
	}
}

// WithOverwrite lets Append replace an existing record with a different address.
// The replaced record is kept in the new record's History.
func WithOverwrite(allow bool) Option {
	return func(r *Registry) {
		r.allowOverwrite = allow
	}
}

// Open loads the deployments file at path. A missing file is an empty registry.
func Open(path string, reader filesystem.Reader, writer filesystem.Writer, opts ...Option) (*Registry, error) {
	r := &Registry{
		path:     path,
		reader:   reader,
		writer:   writer,
		manifest: newManifest(),
		logger:   logger.Named("deployment_registry").With("file", path),
	}
	for _, opt := range opts {
		opt(r)
	}

	var m manifest
	err := reader.ReadJSON(path, &m)
	switch {
	case errors.Is(err, os.ErrNotExist):
		r.logger.Info("deployments file not found, starting empty registry")
		return r, nil
	case err != nil:
		return nil, fmt.Errorf("failed to load deployments file: %w", err)
	}

	if m.Version > manifestVersion {
		return nil, fmt.Errorf("deployments file version %d is newer than supported version %d", m.Version, manifestVersion)
	}
	if m.Networks == nil {
		m.Networks = make(map[string]*networkDeployments)
	}
	m.Version = manifestVersion
	r.manifest = m

	return r, nil
}

// Get returns the record for (network, contractName). It never invents a default:
// a key missing from the file and from every prior manifest is ErrRecordNotFound.
func (r *Registry) Get(network, contractName string) (Record, error) {
	if deployments, ok := r.manifest.Networks[network]; ok {
		if rec, ok := deployments.Contracts[contractName]; ok {
			return rec, nil
		}
	}

	for _, prior := range r.priors {
		addr, ok := prior.manifest.Lookup(network, contractName)
		if !ok {
			continue
		}
		r.logger.
			With("network", network, "contract", contractName, "source", prior.name).
			Debug("resolved from prior manifest")

		return Record{
			ContractName: contractName,
			Address:      addr,
			Network:      network,
			Source:       prior.name,
		}, nil
	}

	return Record{}, fmt.Errorf("%s on %s: %w", contractName, network, ErrRecordNotFound)
}

// Append durably records a confirmed deployment. Re-appending the same address is
// a no-op so an interrupted run can safely repeat it.
func (r *Registry) Append(network, contractName string, rec Record) error {
	if rec.Address == (common.Address{}) {
		return fmt.Errorf("refusing to record %s on %s with zero address", contractName, network)
	}
	if rec.ContractName != "" && rec.ContractName != contractName {
		return fmt.Errorf("record names %s but key is %s", rec.ContractName, contractName)
	}
	if rec.Network != "" && rec.Network != network {
		return fmt.Errorf("record is for network %s but key is %s", rec.Network, network)
	}
	rec.ContractName = contractName
	rec.Network = network
	rec.Source = ""

	deployments, ok := r.manifest.Networks[network]
	if !ok {
		deployments = &networkDeployments{
			ChainID:   rec.ChainID,
			Contracts: make(map[string]Record),
		}
	}

	if deployments.Contracts == nil {
		deployments.Contracts = make(map[string]Record)
	}

	logger := r.logger.With("network", network, "contract", contractName, "address", rec.Address)

	var previous *Record
	if existing, ok := deployments.Contracts[contractName]; ok {
		if existing.Address == rec.Address {
			logger.Info("record already present, skipping append")
			return nil
		}
		if !r.allowOverwrite {
			return fmt.Errorf("%s on %s is recorded at %s: %w", contractName, network, existing.Address, ErrRecordExists)
		}
		prev := existing
		previous = &prev
		flat := existing
		flat.History = nil
		rec.History = append(append([]Record{}, existing.History...), flat)
		logger.With("previous_address", existing.Address).Warn("overwriting record for intentional redeploy")
	}

	deployments.Contracts[contractName] = rec
	r.manifest.Networks[network] = deployments

	if err := r.writer.WriteJSON(r.path, r.manifest); err != nil {
		if previous != nil {
			deployments.Contracts[contractName] = *previous
		} else {
			delete(deployments.Contracts, contractName)
			if len(deployments.Contracts) == 0 {
				delete(r.manifest.Networks, network)
			}
		}
		return fmt.Errorf("failed to persist deployments file: %w", err)
	}

	logger.Info("deployment recorded")

	return nil
}

// Records lists what this tool recorded for network, ordered by contract name.
func (r *Registry) Records(network string) []Record {
	deployments, ok := r.manifest.Networks[network]
	if !ok {
		return nil
	}

	out := make([]Record, 0, len(deployments.Contracts))
	for _, rec := range deployments.Contracts {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ContractName < out[j].ContractName })

	return out
}
