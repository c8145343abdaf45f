package output

import (
	"fmt"
	"io"

	"github.com/unlock-protocol/governance-deployer/internal/infra/filesystem"
	"gopkg.in/yaml.v3"
)

type Generator struct {
	writer filesystem.Writer
}

func NewGenerator(writer filesystem.Writer) *Generator {
	return &Generator{writer: writer}
}

// Generate writes model as YAML to path.
func (g *Generator) Generate(path string, model *Model) error {
	data, err := yaml.Marshal(model)
	if err != nil {
		return fmt.Errorf("could not marshal output model: %w", err)
	}

	if err := g.writer.WriteBytes(path, data); err != nil {
		return fmt.Errorf("could not write output file: %w", err)
	}

	return nil
}

// Encode prints v as YAML, used by the read-only commands.
func Encode(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("could not encode output model: %w", err)
	}
	return enc.Close()
}
