package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arlert/devmon/internal/daemon"
	"github.com/arlert/devmon/internal/history"
	"github.com/arlert/devmon/internal/metrics"
)

// Router exposes the supervisor's state over HTTP:
//
//	GET /status    current snapshot (script, pid, reloads, uptime)
//	GET /history   query: limit=N (default 100); requires a history sink
//	GET /metrics   Prometheus metrics
//
// This is a loopback development convenience, not a management API.
type Router struct {
	d    *daemon.Daemon
	hist history.Querier
}

// NewRouter constructs a Router. hist may be nil when no history sink is
// configured; /history then returns 404.
func NewRouter(d *daemon.Daemon, hist history.Querier) *Router {
	return &Router{d: d, hist: hist}
}

// Handler returns an http.Handler powered by gin that can be mounted in
// any server or mux.
func (r *Router) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	g := gin.New()
	g.Use(gin.Recovery())
	g.GET("/status", r.handleStatus)
	g.GET("/history", r.handleHistory)
	g.GET("/metrics", gin.WrapH(metrics.Handler()))
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr string, d *daemon.Daemon, hist history.Querier) *http.Server {
	r := NewRouter(d, hist)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}

type errorResp struct {
	Error string `json:"error"`
}

type statusResp struct {
	daemon.Snapshot
	UptimeSeconds float64 `json:"uptime_seconds"`
}

func (r *Router) handleStatus(c *gin.Context) {
	snap := r.d.Snapshot()
	resp := statusResp{Snapshot: snap}
	if snap.Running && !snap.StartedAt.IsZero() {
		resp.UptimeSeconds = time.Since(snap.StartedAt).Seconds()
	}
	c.JSON(http.StatusOK, resp)
}

func (r *Router) handleHistory(c *gin.Context) {
	if r.hist == nil {
		c.JSON(http.StatusNotFound, errorResp{Error: "no history sink configured"})
		return
	}
	limit := 100
	if q := c.Query("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, errorResp{Error: "invalid limit"})
			return
		}
		limit = n
	}
	recs, err := r.hist.List(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, recs)
}
