package memory

import (
	"context"
	"time"

	"github.com/fyrsmithlabs/ctxgraph/internal/ctxitem"
	"github.com/fyrsmithlabs/ctxgraph/internal/extraction"
	"github.com/fyrsmithlabs/ctxgraph/internal/injection"
	"github.com/fyrsmithlabs/ctxgraph/internal/search"
)

// ExtractRequest is the input of ExtractContext.
type ExtractRequest struct {
	Text      string `json:"text"`
	ChatID    string `json:"chat_id"`
	ProjectID string `json:"project_id"`
	ChatTitle string `json:"chat_title,omitempty"`
	// MaxItems keeps only the highest-priority items when positive.
	MaxItems int `json:"max_items,omitempty"`
	// Timeline dates items by message. Offsets refer to Text.
	Timeline []extraction.TimeMark `json:"-"`
}

// ItemBrief describes one stored item without its content.
type ItemBrief struct {
	ID              string           `json:"id"`
	Type            ctxitem.ItemType `json:"type"`
	ImportanceScore float64          `json:"importance_score"`
	TokenCount      int              `json:"token_count"`
	IsSummarized    bool             `json:"is_summarized"`
	Preview         string           `json:"preview"`
}

// ExtractResponse summarizes an extraction run.
type ExtractResponse struct {
	ChatID        string                   `json:"chat_id"`
	Items         []ItemBrief              `json:"items"`
	ByType        map[ctxitem.ItemType]int `json:"by_type"`
	Relationships map[string]int           `json:"relationships"`
	TotalTokens   int                      `json:"total_tokens"`
	Embedded      int                      `json:"embedded"`
	Redactions    int                      `json:"redactions"`
	Elapsed       time.Duration            `json:"elapsed"`
}

// SearchRequest is the input of SearchContext.
type SearchRequest struct {
	Query       string             `json:"query"`
	Types       []ctxitem.ItemType `json:"types,omitempty"`
	Limit       int                `json:"limit,omitempty"`
	ProjectID   string             `json:"project_id,omitempty"`
	UseSemantic bool               `json:"use_semantic"`
}

// InjectRequest is the input of InjectContext.
type InjectRequest struct {
	Query     string `json:"query"`
	MaxTokens int    `json:"max_tokens"`
	Format    string `json:"format,omitempty"`
	ProjectID string `json:"project_id,omitempty"`
}

// InjectResponse is a rendered selection with its accounting.
type InjectResponse struct {
	Formatted  string               `json:"formatted"`
	Selection  *injection.Selection `json:"selection"`
	TokensUsed int                  `json:"tokens_used"`
	MaxTokens  int                  `json:"max_tokens"`
	Strategy   injection.Strategy   `json:"strategy"`
}

// ConversationRequest is the input of ExtractConversationFile. Empty fields
// default to the session id and title recorded in the file.
type ConversationRequest struct {
	Path      string `json:"path"`
	ChatID    string `json:"chat_id,omitempty"`
	ProjectID string `json:"project_id"`
	MaxItems  int    `json:"max_items,omitempty"`
}

// Retriever is the read side used by Service. *search.Engine implements it.
type Retriever interface {
	Search(ctx context.Context, query string, opts search.Options) ([]search.Result, error)
	FindRelated(ctx context.Context, id string, limit int) ([]search.Result, error)
	EvolutionChain(ctx context.Context, id string, depth int) ([]*ctxitem.Item, error)
}

// Items whose provider call failed carry Metadata.Extra[EmbeddingStateKey]
// set to EmbeddingPending until ReembedPending succeeds for them.
const (
	EmbeddingStateKey = "embedding"
	EmbeddingPending  = "pending"
)

// ItemEmbedder attaches vectors to extracted items. *embeddings.Service
// implements it.
type ItemEmbedder interface {
	EmbedForItems(ctx context.Context, items []*ctxitem.Item) (map[string][]float32, error)
}

// Preparer builds budgeted selections. *injection.Injector implements it.
type Preparer interface {
	Prepare(ctx context.Context, query string, maxTokens int, format injection.Format, projectID string) (*injection.Selection, error)
}
