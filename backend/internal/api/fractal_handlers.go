package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"fractal-graph/backend/internal/graph"
)

// fractalView is a Fractal plus the relation fields the caller asked for
type fractalView struct {
	graph.Fractal
	Children *[]graph.Fractal `json:"children,omitempty"`
	Parents  *[]graph.Fractal `json:"parents,omitempty"`
	Contexts *[]graph.Fractal `json:"contexts,omitempty"`
}

type createFractalRequest struct {
	Name       string      `json:"name" binding:"required"`
	ParentID   *uuid.UUID  `json:"parent_id"`
	ContextID  *uuid.UUID  `json:"context_id"`
	ContextIDs []uuid.UUID `json:"context_ids"`
}

type addRelationRequest struct {
	ParentID  *uuid.UUID `json:"parent_id"`
	ChildID   *uuid.UUID `json:"child_id"`
	ContextID *uuid.UUID `json:"context_id"`
}

type addContextRequest struct {
	FractalID *uuid.UUID `json:"fractal_id"`
	ContextID *uuid.UUID `json:"context_id"`
}

func (s *Server) getFractalByName(c *gin.Context) {
	name := c.Query("name")
	if name == "" {
		s.invalidInput(c, "fractal", "name", "query parameter is required")
		return
	}

	f, err := s.repo.Fractals.GetByName(c.Request.Context(), name)
	if err != nil {
		s.respondError(c, "fractal", err)
		return
	}
	s.respondView(c, "fractal", f)
}

func (s *Server) getRootFractal(c *gin.Context) {
	f, err := s.repo.Fractals.Root(c.Request.Context())
	if err != nil {
		s.respondError(c, "root", err)
		return
	}
	s.respondView(c, "root", f)
}

// respondView resolves the relations named in ?include= concurrently
func (s *Server) respondView(c *gin.Context, operation string, f *graph.Fractal) {
	kinds, err := parseInclude(c.Query("include"))
	if err != nil {
		s.respondError(c, operation, err)
		return
	}

	var childContext *uuid.UUID
	if raw := c.Query("children_context"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			s.invalidInput(c, operation, "children_context", "must be a UUID")
			return
		}
		childContext = &id
	}

	view, err := s.resolveView(c.Request.Context(), f, kinds, childContext)
	if err != nil {
		s.respondError(c, operation, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func parseInclude(raw string) ([]graph.RelationKind, error) {
	if raw == "" {
		return nil, nil
	}
	var kinds []graph.RelationKind
	for _, part := range strings.Split(raw, ",") {
		kind, err := graph.ParseRelationKind(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, kind)
	}
	return kinds, nil
}

func (s *Server) resolveView(ctx context.Context, f *graph.Fractal, kinds []graph.RelationKind, childContext *uuid.UUID) (*fractalView, error) {
	view := &fractalView{Fractal: *f}
	g, gctx := errgroup.WithContext(ctx)

	resolve := func(dst **[]graph.Fractal, fetch func(context.Context) ([]graph.Fractal, error)) {
		if *dst != nil {
			return
		}
		related := []graph.Fractal{}
		*dst = &related
		g.Go(func() error {
			found, err := fetch(gctx)
			if err != nil {
				return err
			}
			if found != nil {
				related = found
			}
			return nil
		})
	}

	for _, kind := range kinds {
		switch kind {
		case graph.RelationChildren:
			resolve(&view.Children, func(ctx context.Context) ([]graph.Fractal, error) {
				return s.repo.Fractals.Children(ctx, f.ID, childContext)
			})
		case graph.RelationParents:
			resolve(&view.Parents, func(ctx context.Context) ([]graph.Fractal, error) {
				return s.repo.Fractals.Relations(ctx, f.ID, graph.RelationParents)
			})
		case graph.RelationContexts:
			resolve(&view.Contexts, func(ctx context.Context) ([]graph.Fractal, error) {
				return s.repo.Fractals.Relations(ctx, f.ID, graph.RelationContexts)
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return view, nil
}

func (s *Server) createFractal(c *gin.Context) {
	var req createFractalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.invalidInput(c, "createFractal", "body", err.Error())
		return
	}

	in := graph.CreateFractalInput{
		Name:          req.Name,
		ContextIDs:    req.ContextIDs,
		EdgeContextID: req.ContextID,
	}
	if req.ParentID != nil {
		in.ParentIDs = []uuid.UUID{*req.ParentID}
	}

	f, err := s.repo.Fractals.Create(c.Request.Context(), in)
	if err != nil {
		s.respondError(c, "createFractal", err)
		return
	}
	c.JSON(http.StatusCreated, fractalView{Fractal: *f})
}

func (s *Server) getRelations(c *gin.Context) {
	id, ok := s.pathID(c, "relations")
	if !ok {
		return
	}
	kind, err := graph.ParseRelationKind(c.Param("relation"))
	if err != nil {
		s.respondError(c, "relations", err)
		return
	}

	var related []graph.Fractal
	if raw := c.Query("context_id"); raw != "" {
		if kind != graph.RelationChildren {
			s.invalidInput(c, "relations", "context_id", "only applies to children")
			return
		}
		contextID, parseErr := uuid.Parse(raw)
		if parseErr != nil {
			s.invalidInput(c, "relations", "context_id", "must be a UUID")
			return
		}
		related, err = s.repo.Fractals.Children(c.Request.Context(), id, &contextID)
	} else {
		related, err = s.repo.Fractals.Relations(c.Request.Context(), id, kind)
	}
	if err != nil {
		s.respondError(c, "relations", err)
		return
	}
	c.JSON(http.StatusOK, related)
}

func (s *Server) deleteFractal(c *gin.Context) {
	id, ok := s.pathID(c, "deleteFractal")
	if !ok {
		return
	}

	deleted, err := s.repo.Fractals.Delete(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, "deleteFractal", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

func (s *Server) addRelation(c *gin.Context) {
	var req addRelationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.invalidInput(c, "addRelation", "body", err.Error())
		return
	}
	if req.ParentID == nil || req.ChildID == nil {
		s.invalidInput(c, "addRelation", "body", "parent_id and child_id are required")
		return
	}

	if err := s.repo.Fractals.AddChildEdge(c.Request.Context(), *req.ParentID, *req.ChildID, req.ContextID); err != nil {
		s.respondError(c, "addRelation", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"added": true})
}

func (s *Server) addContext(c *gin.Context) {
	var req addContextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.invalidInput(c, "addContext", "body", err.Error())
		return
	}
	if req.FractalID == nil || req.ContextID == nil {
		s.invalidInput(c, "addContext", "body", "fractal_id and context_id are required")
		return
	}

	if err := s.repo.Fractals.AddContextEdge(c.Request.Context(), *req.FractalID, *req.ContextID); err != nil {
		s.respondError(c, "addContext", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"added": true})
}

func (s *Server) pathID(c *gin.Context, operation string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		s.invalidInput(c, operation, "id", "must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}
