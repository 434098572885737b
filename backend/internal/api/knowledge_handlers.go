package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"fractal-graph/backend/internal/constants"
	apperrors "fractal-graph/backend/pkg/errors"
)

type addKnowledgeRequest struct {
	FractalID  *uuid.UUID  `json:"fractal_id"`
	Content    string      `json:"content"`
	ContextIDs []uuid.UUID `json:"context_ids"`
}

func (s *Server) addKnowledge(c *gin.Context) {
	var req addKnowledgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.invalidInput(c, "addKnowledge", "body", err.Error())
		return
	}
	if req.FractalID == nil {
		s.invalidInput(c, "addKnowledge", "fractal_id", "is required")
		return
	}

	k, err := s.repo.Knowledge.Attach(c.Request.Context(), *req.FractalID, req.Content, req.ContextIDs)
	if err != nil {
		s.respondError(c, "addKnowledge", err)
		return
	}
	c.JSON(http.StatusCreated, k)
}

// queryKnowledge returns the facts of a Fractal within every ?context= given.
// An empty result is reported as not found.
func (s *Server) queryKnowledge(c *gin.Context) {
	name := c.Query("fractal_name")
	if name == "" {
		s.invalidInput(c, "knowledge", "fractal_name", "query parameter is required")
		return
	}

	raw := c.QueryArray("context")
	if len(raw) > constants.MaxKnowledgeContexts {
		s.invalidInput(c, "knowledge", "context", fmt.Sprintf("at most %d contexts", constants.MaxKnowledgeContexts))
		return
	}
	contextIDs := make([]uuid.UUID, 0, len(raw))
	for _, value := range raw {
		id, err := uuid.Parse(value)
		if err != nil {
			s.invalidInput(c, "knowledge", "context", fmt.Sprintf("'%s' is not a UUID", value))
			return
		}
		contextIDs = append(contextIDs, id)
	}

	facts, err := s.repo.Knowledge.QueryByContext(c.Request.Context(), name, contextIDs)
	if err != nil {
		s.respondError(c, "knowledge", err)
		return
	}
	if len(facts) == 0 {
		s.respondError(c, "knowledge", apperrors.NewNotFound("knowledge", name))
		return
	}
	c.JSON(http.StatusOK, facts)
}
