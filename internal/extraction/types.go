package extraction

import (
	"time"

	"github.com/fyrsmithlabs/ctxgraph/internal/ctxitem"
)

// Pattern is a named regular expression with a confidence weight.
type Pattern struct {
	Name   string  `json:"name" koanf:"name"`
	Regex  string  `json:"regex" koanf:"regex"`
	Weight float64 `json:"weight" koanf:"weight"`
}

// KeywordBoost adds Bonus to an item's importance when Term occurs in it.
type KeywordBoost struct {
	Term  string  `json:"term" koanf:"term"`
	Bonus float64 `json:"bonus" koanf:"bonus"`
}

// Candidate is a classifier match before it becomes an item.
type Candidate struct {
	Type     ctxitem.ItemType
	Content  string
	Offset   int
	End      int
	Language string
	Lines    int
	Pattern  string
}

// Classifier finds candidates of one item type in a document.
type Classifier interface {
	Name() string
	Classify(doc *Document) []Candidate
}

// Linker infers relationships between extracted items.
type Linker interface {
	Detect(items []*ctxitem.Item, transcript, chatID string) []ctxitem.Relationship
}

// TagExtractor derives tags from content.
type TagExtractor interface {
	ExtractTags(content string) []string
}

// Result is the outcome of one extraction run.
type Result struct {
	Items         []*ctxitem.Item
	Relationships []ctxitem.Relationship
	TotalTokens   int
	Elapsed       time.Duration
}

// TimeMark assigns a timestamp to every item at or after Offset.
type TimeMark struct {
	Offset int
	Time   time.Time
}

// Config holds extraction settings.
type Config struct {
	// SummaryTokenCeiling is the token count above which an item gets a summary.
	SummaryTokenCeiling int `koanf:"summary_token_ceiling"`

	// SummaryLines is the number of lines kept by the line summarizer.
	SummaryLines int `koanf:"summary_lines"`

	// SummaryAlgorithm selects "lines" or "extractive".
	SummaryAlgorithm string `koanf:"summary_algorithm"`

	// MaxTranscriptBytes rejects larger transcripts as invalid input.
	MaxTranscriptBytes int `koanf:"max_transcript_bytes"`

	DecisionPatterns    []Pattern      `koanf:"decision_patterns"`
	RequirementPatterns []Pattern      `koanf:"requirement_patterns"`
	ErrorPatterns       []Pattern      `koanf:"error_patterns"`
	StackFramePatterns  []Pattern      `koanf:"stack_frame_patterns"`
	KeywordBoosts       []KeywordBoost `koanf:"keyword_boosts"`

	// TagRules maps a tag to the keywords that imply it.
	TagRules map[string][]string `koanf:"tag_rules"`
}

// DefaultConfig returns the built-in tables and limits.
func DefaultConfig() Config {
	return Config{
		SummaryTokenCeiling: 500,
		SummaryLines:        10,
		SummaryAlgorithm:    "lines",
		MaxTranscriptBytes:  8 << 20,
		DecisionPatterns:    DefaultDecisionPatterns(),
		RequirementPatterns: DefaultRequirementPatterns(),
		ErrorPatterns:       DefaultErrorPatterns(),
		StackFramePatterns:  DefaultStackFramePatterns(),
		KeywordBoosts:       DefaultKeywordBoosts(),
		TagRules:            DefaultTagRules,
	}
}

// ApplyDefaults fills zero fields from DefaultConfig.
func (c *Config) ApplyDefaults() {
	d := DefaultConfig()
	if c.SummaryTokenCeiling <= 0 {
		c.SummaryTokenCeiling = d.SummaryTokenCeiling
	}
	if c.SummaryLines <= 0 {
		c.SummaryLines = d.SummaryLines
	}
	if c.SummaryAlgorithm == "" {
		c.SummaryAlgorithm = d.SummaryAlgorithm
	}
	if c.MaxTranscriptBytes <= 0 {
		c.MaxTranscriptBytes = d.MaxTranscriptBytes
	}
	if len(c.DecisionPatterns) == 0 {
		c.DecisionPatterns = d.DecisionPatterns
	}
	if len(c.RequirementPatterns) == 0 {
		c.RequirementPatterns = d.RequirementPatterns
	}
	if len(c.ErrorPatterns) == 0 {
		c.ErrorPatterns = d.ErrorPatterns
	}
	if len(c.StackFramePatterns) == 0 {
		c.StackFramePatterns = d.StackFramePatterns
	}
	if len(c.KeywordBoosts) == 0 {
		c.KeywordBoosts = d.KeywordBoosts
	}
	if len(c.TagRules) == 0 {
		c.TagRules = d.TagRules
	}
}
