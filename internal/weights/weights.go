// Package weights loads the namespace weight tables used by votecount.
package weights

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
)

// Table maps namespace IDs to vote weights. Edit weights apply to every
// edit in the namespace; page weights to newly created pages. A missing
// namespace has weight zero.
type Table struct {
	Edit map[int]float64
	Page map[int]float64
}

// Load parses a weights file: a JSON object with "edit_weights" and
// "page_weights" mappings from string-encoded namespace IDs to floats.
func Load(r io.Reader) (*Table, error) {
	var raw struct {
		EditWeights map[string]float64 `json:"edit_weights"`
		PageWeights map[string]float64 `json:"page_weights"`
	}
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("parsing weights file: %w", err)
	}

	edit, err := intKeys(raw.EditWeights)
	if err != nil {
		return nil, fmt.Errorf("edit_weights: %w", err)
	}
	page, err := intKeys(raw.PageWeights)
	if err != nil {
		return nil, fmt.Errorf("page_weights: %w", err)
	}
	return &Table{Edit: edit, Page: page}, nil
}

// EditNamespaces returns the namespaces carrying an edit weight, sorted.
func (t *Table) EditNamespaces() []int {
	ids := make([]int, 0, len(t.Edit))
	for ns := range t.Edit {
		ids = append(ids, ns)
	}
	sort.Ints(ids)
	return ids
}

func intKeys(m map[string]float64) (map[int]float64, error) {
	out := make(map[int]float64, len(m))
	for k, v := range m {
		ns, err := strconv.Atoi(k)
		if err != nil {
			return nil, fmt.Errorf("namespace key %q is not an integer", k)
		}
		out[ns] = v
	}
	return out, nil
}
