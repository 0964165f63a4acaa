package memstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/os2mo/mora/modules/org/domain/lora"
)

// Fixture files list objects per store path:
//
//	organisation/organisationenhed:
//	  - id: 2874e1dc-85e6-4269-823a-e1125484dfd3
//	    attributter: {...}
//	    relationer: {...}
//	    tilstande: {...}
type fixtureObject struct {
	ID          string `yaml:"id"`
	lora.Object `yaml:",inline"`
}

// Load registers every object in the YAML document read from r.
func (s *Store) Load(ctx context.Context, r io.Reader) (int, error) {
	var doc map[lora.Kind][]fixtureObject
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if err == io.EOF {
			return 0, nil
		}
		return 0, fmt.Errorf("memstore: decode fixtures: %w", err)
	}
	for kind := range doc {
		if !slices.Contains(lora.AllKinds, kind) {
			return 0, fmt.Errorf("memstore: unknown object type %q in fixtures", kind)
		}
	}
	count := 0
	for _, kind := range lora.AllKinds {
		for _, fx := range doc[kind] {
			id, err := uuid.Parse(fx.ID)
			if err != nil {
				return count, fmt.Errorf("memstore: fixture %s id %q: %w", kind, fx.ID, err)
			}
			if _, err := s.Create(ctx, kind, id, &fx.Object); err != nil {
				return count, err
			}
			count++
		}
	}
	return count, nil
}

// LoadFile is Load over a file on disk.
func (s *Store) LoadFile(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("memstore: open fixtures: %w", err)
	}
	defer f.Close()
	return s.Load(ctx, f)
}
