package derive

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/specc-dev/specc/internal/types"
)

// marshal encodes a derived document with fixed two-space indentation.
// Struct field order drives key order, so repeated runs over unchanged
// input emit byte-identical files.
func marshal(doc interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize document: %w", err)
	}
	return buf.Bytes(), nil
}

// MarshalPlan emits a plan document as diff-stable YAML.
func MarshalPlan(doc *types.PlanDocument) ([]byte, error) {
	return marshal(doc)
}

// MarshalTasks emits a task document as diff-stable YAML.
func MarshalTasks(doc *types.TaskDocument) ([]byte, error) {
	return marshal(doc)
}
