// Package sandbox loads canned pipeline results for demo items.
package sandbox

import (
	"os"
	"sort"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/appraise-cli/internal/model"
)

// Table maps item ID to a canned result per pipeline stage.
//
//	items:
//	  demo-guitar:
//	    valuation:
//	      estimated_value: {min: 900, max: 1100, currency: USD}
//	      confidence: 85
type Table struct {
	items map[string]map[string]any
}

type file struct {
	Items map[string]map[string]any `yaml:"items"`
}

// Load reads a table from a YAML file.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "sandbox: read %s", path)
	}
	return Parse(data)
}

// Parse decodes a table. Stage names outside the pipeline are rejected.
func Parse(data []byte) (*Table, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "sandbox: parse yaml")
	}

	known := make(map[string]bool, len(model.Stages))
	for _, s := range model.Stages {
		known[s] = true
	}
	for itemID, stages := range f.Items {
		for stage := range stages {
			if !known[stage] {
				return nil, eris.Errorf("sandbox: item %s: unknown stage %q", itemID, stage)
			}
		}
	}

	if f.Items == nil {
		f.Items = map[string]map[string]any{}
	}
	return &Table{items: f.Items}, nil
}

// Lookup implements executor.Overrides.
func (t *Table) Lookup(itemID, step string) (any, bool) {
	if t == nil {
		return nil, false
	}
	stages, ok := t.items[itemID]
	if !ok {
		return nil, false
	}
	v, ok := stages[step]
	return v, ok
}

// Has reports whether any stage of the item is canned.
func (t *Table) Has(itemID string) bool {
	if t == nil {
		return false
	}
	_, ok := t.items[itemID]
	return ok
}

// Items lists the sandboxed item IDs in sorted order.
func (t *Table) Items() []string {
	if t == nil {
		return nil
	}
	ids := make([]string, 0, len(t.items))
	for id := range t.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
