package core

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/apiary-labs/apiary/internal/store"
)

// Merge strategies for import conflicts. Skip never overwrites local data;
// newer replaces an entry only when the incoming record is strictly newer.
const (
	MergeSkip  = "skip"
	MergeNewer = "newer"
)

// ImportResult reports what an import did. Total counts the entries that
// passed validation, imported the ones staged for insertion, skipped the
// duplicates discarded by the merge strategy.
type ImportResult struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
	Total    int `json:"total"`
}

var validate = validator.New()

// ImportCatalog ingests a structured dump (as produced by the catalog JSON
// export) and merges it into the catalog. Validation failures are surfaced
// before any store mutation. An entry is a duplicate when its id is already
// taken or its name matches case-insensitively; duplicates are resolved by
// the merge strategy, and entries staged earlier in the same batch count as
// taken too.
func (s *CatalogService) ImportCatalog(text string, strategy string) (*ImportResult, error) {
	switch strategy {
	case "":
		strategy = MergeSkip
	case MergeSkip, MergeNewer:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}

	var dump struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal([]byte(text), &dump); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	if len(dump.Data) == 0 || string(dump.Data) == "null" {
		return nil, ErrInvalidFormat
	}
	var candidates []store.APIEntry
	if err := json.Unmarshal(dump.Data, &candidates); err != nil {
		return nil, fmt.Errorf("%w: data is not an array of entries: %v", ErrInvalidFormat, err)
	}

	valid := candidates[:0]
	for i := range candidates {
		if err := validate.StructPartial(&candidates[i], "ID", "Name", "Provider", "Category", "Description"); err != nil {
			continue
		}
		valid = append(valid, candidates[i])
	}
	if len(valid) == 0 {
		return nil, ErrNoValidEntries
	}

	existing, err := s.db.GetAllAPIs()
	if err != nil {
		return nil, err
	}

	// stagedIdx -1 marks a record living in the catalog rather than in the
	// staging slice. createdAt is only authoritative for catalog records: an
	// in-batch replacement can leave a stale alias behind, so staged slots
	// are aged by reading the slice.
	type occupant struct {
		createdAt int64
		stagedIdx int
	}
	byID := make(map[string]occupant, len(existing))
	byName := make(map[string]occupant, len(existing))
	for _, e := range existing {
		occ := occupant{createdAt: e.CreatedAt, stagedIdx: -1}
		byID[e.ID] = occ
		byName[strings.ToLower(e.Name)] = occ
	}

	var staged []store.APIEntry
	place := func(entry store.APIEntry, idx int) {
		occ := occupant{createdAt: entry.CreatedAt, stagedIdx: idx}
		byID[entry.ID] = occ
		byName[strings.ToLower(entry.Name)] = occ
	}

	for _, candidate := range valid {
		idMatch, idTaken := byID[candidate.ID]
		nameMatch, nameTaken := byName[strings.ToLower(candidate.Name)]

		if !idTaken && !nameTaken {
			staged = append(staged, candidate)
			place(candidate, len(staged)-1)
			continue
		}
		if strategy != MergeNewer {
			continue
		}

		// Match by id first, else by name, and only replace when the
		// incoming record is strictly newer.
		match := idMatch
		if !idTaken {
			match = nameMatch
		}
		current := match.createdAt
		if match.stagedIdx >= 0 {
			current = staged[match.stagedIdx].CreatedAt
		}
		if candidate.CreatedAt <= current {
			continue
		}
		if match.stagedIdx >= 0 {
			staged[match.stagedIdx] = candidate
			place(candidate, match.stagedIdx)
		} else {
			staged = append(staged, candidate)
			place(candidate, len(staged)-1)
		}
	}

	if err := s.db.UpsertAPIs(staged); err != nil {
		return nil, err
	}

	return &ImportResult{
		Imported: len(staged),
		Skipped:  len(valid) - len(staged),
		Total:    len(valid),
	}, nil
}
