package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/loykin/iconrender/internal/metrics"
	"github.com/loykin/iconrender/pkg/client"
)

// Backend is the renderer as seen from HTTP handlers. Implementations must
// be safe to call from handler goroutines.
type Backend interface {
	Status() client.Status
	SkipList(ctx context.Context) ([]uuid.UUID, error)
	Skip(ctx context.Context, id uuid.UUID, name string) (bool, error)
	StartBatch(ctx context.Context, req client.BatchRequest) error
}

// Router provides embeddable HTTP handlers for a running renderer.
// Endpoints:
//
//	GET  {basePath}/status    snapshot of the batch
//	GET  {basePath}/skiplist  ids that will not be rendered
//	POST {basePath}/skiplist  body: {"id": "...", "name": "..."}
//	POST {basePath}/batch     body: BatchRequest
//	GET  /metrics             when metrics are enabled
type Router struct {
	backend  Backend
	basePath string
	metrics  bool
}

func NewRouter(backend Backend, basePath string, withMetrics bool) *Router {
	return &Router{backend: backend, basePath: sanitizeBase(basePath), metrics: withMetrics}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/status", r.handleStatus)
	group.GET("/skiplist", r.handleSkipList)
	group.POST("/skiplist", r.handleSkip)
	group.POST("/batch", r.handleBatch)
	if r.metrics {
		g.GET("/metrics", gin.WrapH(metrics.Handler()))
	}
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr, basePath string, backend Backend, withMetrics bool) *http.Server {
	r := NewRouter(backend, basePath, withMetrics)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return server
}

type errorResp = client.ErrorResponse

type okResp struct {
	OK bool `json:"ok"`
}

func (r *Router) handleStatus(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.backend.Status())
}

func (r *Router) handleSkipList(c *gin.Context) {
	ids, err := r.backend.SkipList(c.Request.Context())
	if err != nil {
		writeJSON(c, http.StatusServiceUnavailable, errorResp{Error: err.Error()})
		return
	}
	out := client.SkipList{IDs: make([]string, 0, len(ids))}
	for _, id := range ids {
		out.IDs = append(out.IDs, id.String())
	}
	writeJSON(c, http.StatusOK, out)
}

func (r *Router) handleSkip(c *gin.Context) {
	var req client.SkipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	id, err := parseAssetID(req.ID)
	if err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid id: " + err.Error()})
		return
	}
	added, err := r.backend.Skip(c.Request.Context(), id, cleanName(req.Name))
	if err != nil {
		writeJSON(c, http.StatusServiceUnavailable, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, client.SkipResponse{Added: added})
}

func (r *Router) handleBatch(c *gin.Context) {
	var req client.BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	switch strings.ToLower(strings.TrimSpace(req.Mode)) {
	case "", "all", "items", "vehicles":
	case "mod":
		if req.Publisher == nil {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "mode 'mod' requires publisher"})
			return
		}
	default:
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "unknown mode: " + req.Mode})
		return
	}
	if err := r.backend.StartBatch(c.Request.Context(), req); err != nil {
		writeJSON(c, http.StatusConflict, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusAccepted, okResp{OK: true})
}
