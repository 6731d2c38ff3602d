package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/fyrsmithlabs/ctxgraph/internal/ctxitem"
	"github.com/fyrsmithlabs/ctxgraph/internal/memory"
	"github.com/fyrsmithlabs/ctxgraph/internal/search"
)

// ExtractRequest is the body of POST /api/v1/extract. Exactly one of Text
// and TranscriptPath is set.
type ExtractRequest struct {
	Text           string `json:"text"`
	TranscriptPath string `json:"transcript_path"`
	ChatID         string `json:"chat_id"`
	ProjectID      string `json:"project_id"`
	ChatTitle      string `json:"chat_title"`
	MaxItems       int    `json:"max_items"`
}

// SearchRequest is the body of POST /api/v1/search.
type SearchRequest struct {
	Query       string   `json:"query"`
	Types       []string `json:"types"`
	Limit       int      `json:"limit"`
	ProjectID   string   `json:"project_id"`
	UseSemantic *bool    `json:"use_semantic"`
}

// SearchResponse lists ranked results.
type SearchResponse struct {
	Query   string          `json:"query"`
	Results []search.Result `json:"results"`
	Count   int             `json:"count"`
}

// ChainResponse is the body of GET /api/v1/items/:id/chain.
type ChainResponse struct {
	ItemID string          `json:"item_id"`
	Chain  []*ctxitem.Item `json:"chain"`
	Length int             `json:"length"`
}

// RelationshipRequest is the body of the relationship endpoints.
type RelationshipRequest struct {
	FromID string               `json:"from_id"`
	ToID   string               `json:"to_id"`
	Type   ctxitem.RelationType `json:"type"`
	Reason string               `json:"reason"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok", Version: s.config.Version})
}

func (s *Server) handleExtract(c echo.Context) error {
	var req ExtractRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Text != "" && req.TranscriptPath != "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text and transcript_path are mutually exclusive")
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	var (
		resp *memory.ExtractResponse
		err  error
	)
	if req.TranscriptPath != "" {
		resp, err = s.svc.ExtractConversationFile(ctx, memory.ConversationRequest{
			Path:      req.TranscriptPath,
			ChatID:    req.ChatID,
			ProjectID: req.ProjectID,
			MaxItems:  req.MaxItems,
		})
	} else {
		resp, err = s.svc.ExtractContext(ctx, memory.ExtractRequest{
			Text:      req.Text,
			ChatID:    req.ChatID,
			ProjectID: req.ProjectID,
			ChatTitle: req.ChatTitle,
			MaxItems:  req.MaxItems,
		})
	}
	if err != nil {
		return s.apiError(c, "extract", err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleSearch(c echo.Context) error {
	var req SearchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	types := make([]ctxitem.ItemType, 0, len(req.Types))
	for _, name := range req.Types {
		t, err := ctxitem.ParseItemType(strings.ToLower(strings.TrimSpace(name)))
		if err != nil {
			return s.apiError(c, "search", err)
		}
		types = append(types, t)
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	results, err := s.svc.SearchContext(ctx, memory.SearchRequest{
		Query:       req.Query,
		Types:       types,
		Limit:       req.Limit,
		ProjectID:   req.ProjectID,
		UseSemantic: req.UseSemantic == nil || *req.UseSemantic,
	})
	if err != nil {
		return s.apiError(c, "search", err)
	}
	if results == nil {
		results = []search.Result{}
	}
	return c.JSON(http.StatusOK, SearchResponse{Query: req.Query, Results: results, Count: len(results)})
}

func (s *Server) handleInject(c echo.Context) error {
	var req memory.InjectRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	resp, err := s.svc.InjectContext(ctx, req)
	if err != nil {
		return s.apiError(c, "inject", err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleRelated(c echo.Context) error {
	limit, err := intQuery(c, "limit")
	if err != nil {
		return err
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	id := c.Param("id")
	results, err := s.svc.FindRelated(ctx, id, limit)
	if err != nil {
		return s.apiError(c, "find related", err)
	}
	if results == nil {
		results = []search.Result{}
	}
	return c.JSON(http.StatusOK, SearchResponse{Results: results, Count: len(results)})
}

func (s *Server) handleChain(c echo.Context) error {
	depth, err := intQuery(c, "depth")
	if err != nil {
		return err
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	id := c.Param("id")
	chain, err := s.svc.GetEvolutionChain(ctx, id, depth)
	if err != nil {
		return s.apiError(c, "evolution chain", err)
	}
	if chain == nil {
		chain = []*ctxitem.Item{}
	}
	return c.JSON(http.StatusOK, ChainResponse{ItemID: id, Chain: chain, Length: len(chain)})
}

func (s *Server) handleCreateRelationship(c echo.Context) error {
	var req RelationshipRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	rel := ctxitem.Relationship{
		FromID:     req.FromID,
		ToID:       req.ToID,
		Type:       req.Type,
		Properties: ctxitem.Properties{Reason: req.Reason},
	}
	if err := s.svc.CreateRelationship(ctx, rel); err != nil {
		return s.apiError(c, "create relationship", err)
	}
	return c.NoContent(http.StatusCreated)
}

func (s *Server) handleDeleteRelationship(c echo.Context) error {
	var req RelationshipRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	key := ctxitem.EdgeKey{From: req.FromID, To: req.ToID, Type: req.Type}
	if err := s.svc.DeleteRelationship(ctx, key); err != nil {
		return s.apiError(c, "delete relationship", err)
	}
	return c.NoContent(http.StatusNoContent)
}

func intQuery(c echo.Context, name string) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, name+" must be a non-negative integer")
	}
	return n, nil
}
