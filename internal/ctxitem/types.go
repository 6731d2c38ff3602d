package ctxitem

import (
	"time"
)

// ItemType classifies what kind of meaning an item carries.
type ItemType string

const (
	TypeCode        ItemType = "code"
	TypeDecision    ItemType = "decision"
	TypeRequirement ItemType = "requirement"
	TypeDiscussion  ItemType = "discussion"
	TypeError       ItemType = "error"
)

// AllTypes lists the item types in descending base priority.
var AllTypes = []ItemType{TypeError, TypeRequirement, TypeDecision, TypeCode, TypeDiscussion}

// Valid reports whether t is a known item type.
func (t ItemType) Valid() bool {
	switch t {
	case TypeCode, TypeDecision, TypeRequirement, TypeDiscussion, TypeError:
		return true
	}
	return false
}

// ParseItemType converts a string into an ItemType.
func ParseItemType(s string) (ItemType, error) {
	t := ItemType(s)
	if !t.Valid() {
		return "", Invalidf("unknown item type %q", s)
	}
	return t, nil
}

// Metadata holds the known per-item attributes. Extra carries anything a
// classifier or caller wants to attach that has no dedicated field.
type Metadata struct {
	// Language is the declared language of a code block ("plaintext" when absent).
	Language string `json:"language,omitempty"`

	// LineCount is the number of lines in the item content.
	LineCount int `json:"line_count,omitempty"`

	// Offset is the byte offset of the span in the source transcript.
	Offset int `json:"offset"`

	// Pattern names the phrase family that matched.
	Pattern string `json:"pattern,omitempty"`

	Tags  []string          `json:"tags,omitempty"`
	Extra map[string]string `json:"extra,omitempty"`
}

// Item is one extracted unit of meaning.
type Item struct {
	ID              string    `json:"id"`
	ChatID          string    `json:"chat_id"`
	ProjectID       string    `json:"project_id"`
	Content         string    `json:"content"`
	Summary         string    `json:"summary,omitempty"`
	Type            ItemType  `json:"type"`
	ImportanceScore float64   `json:"importance_score"`
	Timestamp       time.Time `json:"timestamp"`
	TokenCount      int       `json:"token_count"`
	IsSummarized    bool      `json:"is_summarized"`
	Embedding       []float32 `json:"embedding,omitempty"`
	Metadata        Metadata  `json:"metadata"`
}

// RaiseImportance sets the importance score to max(current, score), clamped
// to [0,1]. Scores never go down.
func (i *Item) RaiseImportance(score float64) {
	score = Clamp01(score)
	if score > i.ImportanceScore {
		i.ImportanceScore = score
	}
}

// SetSummary records a condensed form of the content. It is a no-op when the
// item is already summarized or when summaryTokens is not strictly below
// the item's token count.
func (i *Item) SetSummary(summary string, summaryTokens int) bool {
	if i.IsSummarized || summary == "" || summaryTokens >= i.TokenCount {
		return false
	}
	i.Summary = summary
	i.IsSummarized = true
	return true
}

// Brief returns the summary when present and the content otherwise.
func (i *Item) Brief() string {
	if i.IsSummarized {
		return i.Summary
	}
	return i.Content
}

// Clone returns a deep copy of the item.
func (i *Item) Clone() *Item {
	c := *i
	if i.Embedding != nil {
		c.Embedding = append([]float32(nil), i.Embedding...)
	}
	if i.Metadata.Tags != nil {
		c.Metadata.Tags = append([]string(nil), i.Metadata.Tags...)
	}
	if i.Metadata.Extra != nil {
		c.Metadata.Extra = make(map[string]string, len(i.Metadata.Extra))
		for k, v := range i.Metadata.Extra {
			c.Metadata.Extra[k] = v
		}
	}
	return &c
}

// RelationType is the kind of a directed edge.
type RelationType string

const (
	RelReferences RelationType = "REFERENCES"
	RelEvolvesTo  RelationType = "EVOLVES_TO"
	RelDependsOn  RelationType = "DEPENDS_ON"
	RelRelatedTo  RelationType = "RELATED_TO"
	RelImplements RelationType = "IMPLEMENTS"
	RelBelongsTo  RelationType = "BELONGS_TO"
)

// Valid reports whether r is a known relation type.
func (r RelationType) Valid() bool {
	switch r {
	case RelReferences, RelEvolvesTo, RelDependsOn, RelRelatedTo, RelImplements, RelBelongsTo:
		return true
	}
	return false
}

// Properties carries edge attributes. Similarity is set on RELATED_TO edges
// and TimeDeltaMs on EVOLVES_TO edges.
type Properties struct {
	Similarity  *float64          `json:"similarity,omitempty"`
	TimeDeltaMs *int64            `json:"time_delta_ms,omitempty"`
	Reason      string            `json:"reason,omitempty"`
	Extra       map[string]string `json:"extra,omitempty"`
}

// Relationship is a typed directed edge between two items, or between an
// item and its owning chat for BELONGS_TO.
type Relationship struct {
	FromID     string       `json:"from_id"`
	ToID       string       `json:"to_id"`
	Type       RelationType `json:"type"`
	Properties Properties   `json:"properties"`
}

// Key identifies an edge for deduplication.
func (r Relationship) Key() EdgeKey {
	return EdgeKey{From: r.FromID, To: r.ToID, Type: r.Type}
}

// EdgeKey is the identity of an edge.
type EdgeKey struct {
	From string
	To   string
	Type RelationType
}

// Chat is the owner of a set of items.
type Chat struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Float returns a pointer to f, for populating Properties.
func Float(f float64) *float64 { return &f }

// Int64 returns a pointer to n, for populating Properties.
func Int64(n int64) *int64 { return &n }

// Clamp01 bounds f to [0,1].
func Clamp01(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}
