package main

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/normanking/contentpipe/logging"
	"github.com/normanking/contentpipe/pipeline"
	"github.com/normanking/contentpipe/tenancy"
)

// server exposes the pipeline's intake surface over HTTP: submit a URL,
// poll the terminal StepResult. It is deliberately thin — a callable front
// door for the orchestrator, not the "web application" spec.md §1 excludes
// (no auth, templating, or business routes live here).
//
// Grounded on codeready-toolchain-tarsy's pkg/api.Server (gin.Context
// handlers on a struct wrapping the domain manager), generalized from
// alert-session CRUD to run submission/polling.
type server struct {
	runs     *runManager
	pipeline *pipeline.Pipeline
	logger   logging.Logger
}

func newServer(p *pipeline.Pipeline, logger logging.Logger) *server {
	return &server{runs: newRunManager(), pipeline: p, logger: logger}
}

func (s *server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	v1 := r.Group("/v1")
	v1.POST("/runs", s.createRun)
	v1.GET("/runs/:id", s.getRun)
	return r
}

// createRunRequest is the POST /v1/runs body.
type createRunRequest struct {
	URL       string `json:"url" binding:"required"`
	Tenant    string `json:"tenant" binding:"required"`
	Workspace string `json:"workspace" binding:"required"`
	Depth     string `json:"depth"` // "standard" (default) | "deep" | "experimental"
}

func (s *server) createRun(c *gin.Context) {
	var req createRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	depth := pipeline.Depth(req.Depth)
	switch depth {
	case "":
		depth = pipeline.DepthStandard
	case pipeline.DepthStandard, pipeline.DepthDeep, pipeline.DepthExperimental:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid depth: " + req.Depth})
		return
	}

	rec := s.runs.create(req.URL, req.Tenant, req.Workspace, string(depth))
	go s.execute(rec.ID, req.URL, req.Tenant, req.Workspace, depth)

	c.JSON(http.StatusAccepted, rec)
}

// execute runs the pipeline in the background; createRun has already
// responded with the run's pending record so the HTTP caller polls GET
// /v1/runs/{id} rather than blocking on the full request budget (up to
// 600s at depth=experimental).
func (s *server) execute(runID, url, tenantID, workspaceID string, depth pipeline.Depth) {
	s.runs.setRunning(runID)

	tc := tenancy.New(tenantID, workspaceID)
	ctx := tenancy.WithTenant(context.Background(), tc)

	result, err := s.pipeline.Run(ctx, url, depth)
	if err != nil {
		s.logger.Error("pipelineapi: run failed", map[string]interface{}{"run_id": runID, "error": err.Error()})
	}
	s.runs.complete(runID, result)
}

func (s *server) getRun(c *gin.Context) {
	rec, err := s.runs.get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rec)
}
