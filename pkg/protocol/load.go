// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"onramp/pkg/core"
	"onramp/pkg/errors"
)

type seedFile struct {
	Protocols []seedProtocol `yaml:"protocols"`
}

type seedProtocol struct {
	ProjectID string          `yaml:"project_id"`
	Steps     []core.StepSpec `yaml:"steps"`
}

// LoadFile parses protocol seed definitions from a YAML file.
func LoadFile(path string) ([]core.Protocol, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("seed path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse parses protocol seed definitions from YAML bytes.
func Parse(data []byte) ([]core.Protocol, error) {
	var file seedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse protocol seeds: %w", err)
	}
	out := make([]core.Protocol, 0, len(file.Protocols))
	for _, seed := range file.Protocols {
		if seed.ProjectID == "" {
			return nil, fmt.Errorf("protocol seed missing project_id")
		}
		if len(seed.Steps) == 0 {
			return nil, fmt.Errorf("protocol seed %q has no steps", seed.ProjectID)
		}
		for i, step := range seed.Steps {
			if step.Kind == "" {
				return nil, fmt.Errorf("protocol seed %q step %d missing kind", seed.ProjectID, i)
			}
		}
		out = append(out, core.Protocol{ProjectID: seed.ProjectID, Steps: seed.Steps})
	}
	return out, nil
}

// Seed creates each protocol in the store. Protocols that already exist
// are left untouched.
func Seed(ctx context.Context, store Store, protocols []core.Protocol) error {
	for _, p := range protocols {
		if _, err := store.Create(ctx, p.ProjectID, p.Steps); err != nil {
			if errors.IsAlreadyExists(err) {
				continue
			}
			return err
		}
	}
	return nil
}
