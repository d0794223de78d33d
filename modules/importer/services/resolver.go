package services

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/iota-uz/assetdesk/modules/importer/domain/record"
	"github.com/iota-uz/assetdesk/modules/importer/domain/reference"
	"github.com/iota-uz/assetdesk/modules/importer/domain/schema"
)

// maxSuggestionDistance bounds the edit distance of a "similar to" hint.
const maxSuggestionDistance = 3

// Resolver maps free-text reference values to ids. It never writes to the backend.
type Resolver struct{}

// Resolve fills rec.Refs for every value already known and returns one creation candidate per
// distinct missing value whose reference policy allows creating it. Parents resolve before
// children, so a child whose parent is itself new waits on the parent's name.
func (Resolver) Resolve(recs []*record.Record, d *schema.Descriptor, sets reference.Sets) []record.CreationCandidate {
	var (
		out   []record.CreationCandidate
		index = make(map[string]int)
	)
	for _, level := range d.ReferenceLevels() {
		for _, ref := range level {
			set := sets.Get(ref.Kind)
			parentKind, _ := ref.Kind.Parent()
			for _, rec := range recs {
				name := rec.Text(ref.Field)
				if name == "" {
					continue
				}
				parentID, parentName, ok := parentOf(rec, ref)
				if !ok {
					continue
				}
				if parentName == "" {
					if id, found := set.Lookup(parentID, name); found {
						rec.Refs[ref.Field] = id
						continue
					}
				}
				if ref.OnMissing != schema.Create {
					continue
				}

				key := fmt.Sprintf("%s|%s|%s|%s", ref.Kind, parentID, reference.Loose(parentName), reference.Loose(name))
				if i, seen := index[key]; seen {
					out[i].Lines = append(out[i].Lines, rec.Line)
					continue
				}
				c := record.CreationCandidate{
					Kind:       ref.Kind,
					Name:       reference.Clean(name),
					ParentKind: parentKind,
					ParentID:   parentID,
					ParentName: reference.Clean(parentName),
					Lines:      []int{rec.Line},
				}
				if parentName == "" {
					c.Suggestion = suggest(name, set.Names(parentID))
				}
				index[key] = len(out)
				out = append(out, c)
			}
		}
	}
	byLine := make(map[int]*record.Record, len(recs))
	for _, rec := range recs {
		byLine[rec.Line] = rec
	}
	for _, c := range out {
		if c.Suggestion == "" {
			continue
		}
		for _, line := range c.Lines {
			byLine[line].Warn("%s %q is new and will be created; similar existing value %q", c.Kind, c.Name, c.Suggestion)
		}
	}
	return out
}

// Finalize runs after materialization. It resolves values created meanwhile and applies the
// reference policy to whatever is still unknown: Reject returns a row error, the other policies
// leave the field empty with a warning.
func (Resolver) Finalize(recs []*record.Record, d *schema.Descriptor, sets reference.Sets) []record.RowMessage {
	var rejected []record.RowMessage
	failed := make(map[int]bool)
	for _, level := range d.ReferenceLevels() {
		for _, ref := range level {
			set := sets.Get(ref.Kind)
			for _, rec := range recs {
				if failed[rec.Line] {
					continue
				}
				name := rec.Text(ref.Field)
				if name == "" {
					continue
				}
				if _, done := rec.Refs[ref.Field]; done {
					continue
				}
				parentID := uuid.Nil
				if ref.ParentField != "" {
					pid, ok := rec.Refs[ref.ParentField]
					if !ok {
						rec.Warn("%s %q left empty: %s is not set", ref.Field, name, ref.ParentField)
						continue
					}
					parentID = pid
				}
				if id, found := set.Lookup(parentID, name); found {
					rec.Refs[ref.Field] = id
					continue
				}
				switch ref.OnMissing {
				case schema.Reject:
					failed[rec.Line] = true
					rejected = append(rejected, record.RowMessage{
						Row:     rec.Line,
						Message: fmt.Sprintf("%s %q not found in %s", ref.Field, name, ref.Kind),
					})
				case schema.Null:
					rec.Warn("%s %q not found in %s, left empty", ref.Field, name, ref.Kind)
				default:
					rec.Warn("%s %q could not be created, left empty", ref.Field, name)
				}
			}
		}
	}
	return rejected
}

// parentOf returns the resolved parent id, or the parent's text when the parent is not resolved
// yet. ok is false when the parent field is empty.
func parentOf(rec *record.Record, ref schema.Reference) (uuid.UUID, string, bool) {
	if ref.ParentField == "" {
		return uuid.Nil, "", true
	}
	if id, ok := rec.Refs[ref.ParentField]; ok {
		return id, "", true
	}
	name := rec.Text(ref.ParentField)
	return uuid.Nil, name, name != ""
}

func suggest(name string, existing []string) string {
	if len(existing) == 0 {
		return ""
	}
	ranks := fuzzy.RankFindNormalizedFold(name, existing)
	if len(ranks) > 0 {
		sort.Sort(ranks)
		return ranks[0].Target
	}
	best, bestDist := "", maxSuggestionDistance+1
	folded := reference.Loose(name)
	for _, candidate := range existing {
		dist := fuzzy.LevenshteinDistance(folded, reference.Loose(candidate))
		if dist < bestDist {
			best, bestDist = candidate, dist
		}
	}
	return best
}
