// Package relationship infers typed edges between extracted context items.
//
// Detection is a pure function of the item list (plus the transcript for
// positional checks). Edge families are independent: a pair of items can
// carry an EVOLVES_TO edge and a RELATED_TO edge at the same time.
package relationship

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ctxgraph/internal/ctxitem"
)

// Config holds detection thresholds.
type Config struct {
	// CodeEvolutionOverlap is the function-name overlap above which
	// consecutive code items evolve.
	CodeEvolutionOverlap float64 `koanf:"code_evolution_overlap"`

	// EvolutionMin and EvolutionMax bound (exclusively) the word Jaccard of
	// consecutive non-code items that evolve.
	EvolutionMin float64 `koanf:"evolution_min"`
	EvolutionMax float64 `koanf:"evolution_max"`

	// RelatedThreshold is the word Jaccard above which same-type items relate.
	RelatedThreshold float64 `koanf:"related_threshold"`

	// ProximityChars is the transcript distance under which two items
	// loosely reference each other.
	ProximityChars int `koanf:"proximity_chars"`
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		CodeEvolutionOverlap: 0.5,
		EvolutionMin:         0.6,
		EvolutionMax:         0.95,
		RelatedThreshold:     0.7,
		ProximityChars:       500,
	}
}

// Detector finds relationships between items.
type Detector struct {
	cfg    Config
	logger *zap.Logger
}

// NewDetector returns a Detector. Zero thresholds take their defaults.
func NewDetector(cfg Config, logger *zap.Logger) *Detector {
	d := DefaultConfig()
	if cfg.CodeEvolutionOverlap <= 0 {
		cfg.CodeEvolutionOverlap = d.CodeEvolutionOverlap
	}
	if cfg.EvolutionMin <= 0 {
		cfg.EvolutionMin = d.EvolutionMin
	}
	if cfg.EvolutionMax <= 0 {
		cfg.EvolutionMax = d.EvolutionMax
	}
	if cfg.RelatedThreshold <= 0 {
		cfg.RelatedThreshold = d.RelatedThreshold
	}
	if cfg.ProximityChars <= 0 {
		cfg.ProximityChars = d.ProximityChars
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{cfg: cfg, logger: logger}
}

// profile caches the per-item features used by the detectors.
type profile struct {
	item      *ctxitem.Item
	words     set
	funcs     set
	classes   set
	imports   set
	exports   set
	idents    set
	errorKeys set
	mentions  set
	start     int
	end       int
	located   bool
}

// edges accumulates relationships, dropping self pairs and duplicates.
type edges struct {
	seen map[ctxitem.EdgeKey]struct{}
	out  []ctxitem.Relationship
}

func (e *edges) add(r ctxitem.Relationship) {
	if r.FromID == r.ToID {
		return
	}
	k := r.Key()
	if _, ok := e.seen[k]; ok {
		return
	}
	e.seen[k] = struct{}{}
	e.out = append(e.out, r)
}

func (e *edges) has(from, to string, typ ctxitem.RelationType) bool {
	_, ok := e.seen[ctxitem.EdgeKey{From: from, To: to, Type: typ}]
	return ok
}

// Detect returns every inferred edge plus one BELONGS_TO edge per item.
func (d *Detector) Detect(items []*ctxitem.Item, transcript, chatID string) []ctxitem.Relationship {
	profiles := make([]*profile, len(items))
	for i, it := range items {
		profiles[i] = d.profile(it, transcript)
	}

	e := &edges{seen: make(map[ctxitem.EdgeKey]struct{})}
	d.evolution(profiles, e)
	d.dependencies(profiles, e)
	d.references(profiles, e)
	d.similarity(profiles, e)
	for _, p := range profiles {
		e.add(ctxitem.Relationship{FromID: p.item.ID, ToID: chatID, Type: ctxitem.RelBelongsTo})
	}

	d.logger.Debug("relationships detected",
		zap.Int("items", len(items)),
		zap.Int("edges", len(e.out)))
	return e.out
}

func (d *Detector) profile(it *ctxitem.Item, transcript string) *profile {
	p := &profile{item: it, words: Words(it.Content)}
	switch it.Type {
	case ctxitem.TypeCode:
		p.funcs = FunctionNames(it.Content)
		p.classes = ClassNames(it.Content)
		p.imports = Imports(it.Content)
		p.exports = Exports(it.Content)
	case ctxitem.TypeError:
		p.errorKeys = ErrorKeywords(it.Content)
	case ctxitem.TypeDiscussion:
		p.mentions = Mentions(it.Content)
	}
	p.idents = Identifiers(it.Content)
	p.start, p.end, p.located = locate(it, transcript)
	return p
}

// locate finds the item's span in the transcript. The recorded offset is
// trusted when the transcript agrees with it or is absent.
func locate(it *ctxitem.Item, transcript string) (int, int, bool) {
	off := it.Metadata.Offset
	if transcript == "" {
		return off, off + len(it.Content), true
	}
	if off >= 0 && off+len(it.Content) <= len(transcript) && transcript[off:off+len(it.Content)] == it.Content {
		return off, off + len(it.Content), true
	}
	// Code offsets point at the opening fence.
	if it.Type == ctxitem.TypeCode && off >= 0 && off < len(transcript) {
		if i := strings.Index(transcript[off:], it.Content); i >= 0 {
			return off, off + i + len(it.Content), true
		}
	}
	if i := strings.Index(transcript, it.Content); i >= 0 {
		return i, i + len(it.Content), true
	}
	return 0, 0, false
}

// evolution links consecutive items of the same type, in time order.
func (d *Detector) evolution(profiles []*profile, e *edges) {
	byType := make(map[ctxitem.ItemType][]*profile)
	for _, p := range profiles {
		byType[p.item.Type] = append(byType[p.item.Type], p)
	}
	for _, typ := range ctxitem.AllTypes {
		group := byType[typ]
		sort.SliceStable(group, func(i, j int) bool {
			a, b := group[i].item, group[j].item
			if !a.Timestamp.Equal(b.Timestamp) {
				return a.Timestamp.Before(b.Timestamp)
			}
			return a.Metadata.Offset < b.Metadata.Offset
		})
		for i := 1; i < len(group); i++ {
			prev, cur := group[i-1], group[i]
			if !d.evolves(prev, cur) {
				continue
			}
			delta := cur.item.Timestamp.Sub(prev.item.Timestamp).Milliseconds()
			e.add(ctxitem.Relationship{
				FromID: prev.item.ID,
				ToID:   cur.item.ID,
				Type:   ctxitem.RelEvolvesTo,
				Properties: ctxitem.Properties{
					TimeDeltaMs: ctxitem.Int64(delta),
				},
			})
		}
	}
}

func (d *Detector) evolves(a, b *profile) bool {
	if a.item.Type == ctxitem.TypeCode {
		return Overlap(a.funcs, b.funcs) > d.cfg.CodeEvolutionOverlap
	}
	sim := Jaccard(a.words, b.words)
	return sim > d.cfg.EvolutionMin && sim < d.cfg.EvolutionMax
}

// dependencies links code items whose imports meet another's exports, or
// which mention a type declared only by the other.
func (d *Detector) dependencies(profiles []*profile, e *edges) {
	var code []*profile
	for _, p := range profiles {
		if p.item.Type == ctxitem.TypeCode {
			code = append(code, p)
		}
	}
	for _, a := range code {
		lower := strings.ToLower(a.item.Content)
		for _, b := range code {
			if a == b {
				continue
			}
			reason := ""
			if a.imports.intersects(b.exports) {
				reason = "import"
			} else {
				for name := range b.classes {
					if len(name) >= 3 && !a.classes.has(name) && strings.Contains(lower, strings.ToLower(name)) {
						reason = "type:" + name
						break
					}
				}
			}
			if reason == "" {
				continue
			}
			e.add(ctxitem.Relationship{
				FromID:     a.item.ID,
				ToID:       b.item.ID,
				Type:       ctxitem.RelDependsOn,
				Properties: ctxitem.Properties{Reason: reason},
			})
		}
	}
}

// references applies the structural rules first, then falls back to
// transcript proximity for pairs with no structural reference.
func (d *Detector) references(profiles []*profile, e *edges) {
	for _, a := range profiles {
		for _, b := range profiles {
			if a == b {
				continue
			}
			switch {
			case a.item.Type == ctxitem.TypeError && b.item.Type == ctxitem.TypeCode:
				if a.errorKeys.intersects(b.idents) {
					e.add(reference(a, b, "error_identifier"))
				}
			case a.item.Type == ctxitem.TypeDiscussion:
				if a.mentions.intersects(b.idents) {
					e.add(reference(a, b, "inline_code"))
				}
			}
		}
	}

	for i, a := range profiles {
		if !a.located {
			continue
		}
		for _, b := range profiles[i+1:] {
			if !b.located || a.start == b.start {
				continue
			}
			earlier, later := a, b
			if b.start < a.start {
				earlier, later = b, a
			}
			if e.has(earlier.item.ID, later.item.ID, ctxitem.RelReferences) ||
				e.has(later.item.ID, earlier.item.ID, ctxitem.RelReferences) {
				continue
			}
			if gap := later.start - earlier.end; gap < d.cfg.ProximityChars {
				e.add(reference(later, earlier, "proximity"))
			}
		}
	}
}

func reference(from, to *profile, reason string) ctxitem.Relationship {
	return ctxitem.Relationship{
		FromID:     from.item.ID,
		ToID:       to.item.ID,
		Type:       ctxitem.RelReferences,
		Properties: ctxitem.Properties{Reason: reason},
	}
}

// similarity links same-type pairs whose word Jaccard exceeds the threshold.
func (d *Detector) similarity(profiles []*profile, e *edges) {
	for i, a := range profiles {
		for _, b := range profiles[i+1:] {
			if a.item.Type != b.item.Type {
				continue
			}
			sim := Jaccard(a.words, b.words)
			if sim <= d.cfg.RelatedThreshold {
				continue
			}
			e.add(ctxitem.Relationship{
				FromID: a.item.ID,
				ToID:   b.item.ID,
				Type:   ctxitem.RelRelatedTo,
				Properties: ctxitem.Properties{
					Similarity: ctxitem.Float(sim),
				},
			})
		}
	}
}
