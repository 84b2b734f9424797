package flowconfig

import (
	"fmt"

	"gopkg.in/yaml.v2"

	"go.pipelinekit.dev/flowkit/internal/config"
)

// Load parses a YAML pipeline topology document. YAML is unmarshalled
// into a generic map first, then mapdecode.Decode (via
// internal/config.DecodeInto) populates the typed Topology, matching the
// teacher's two-step yarpcconfig decode.
func Load(data []byte) (*Topology, error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("flowconfig: invalid yaml: %v", err)
	}

	var top Topology
	if err := config.DecodeInto(&top, raw); err != nil {
		return nil, fmt.Errorf("flowconfig: %v", err)
	}

	if err := top.validate(); err != nil {
		return nil, err
	}

	return &top, nil
}

func (t *Topology) validate() error {
	seen := make(map[string]bool, len(t.Partitions))
	for _, p := range t.Partitions {
		if p.Name == "" {
			return fmt.Errorf("flowconfig: partition entry missing name")
		}
		if seen[p.Name] {
			return fmt.Errorf("flowconfig: duplicate partition name %q", p.Name)
		}
		seen[p.Name] = true
	}
	for _, m := range t.Middleware {
		if m.Name == "" {
			return fmt.Errorf("flowconfig: middleware entry missing name")
		}
	}
	return nil
}
