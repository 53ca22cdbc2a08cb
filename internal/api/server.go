// Package api is the HTTP surface of the tracker backend: the device
// ingestion endpoint plus the read API for probes, activities, exports
// and uploads.
package api

import (
	"context"
	"net/http"

	"github.com/banshee-data/ride.report/internal/config"
	"github.com/banshee-data/ride.report/internal/db"
	"github.com/banshee-data/ride.report/internal/httputil"
	"github.com/banshee-data/ride.report/internal/ingest"
	"github.com/banshee-data/ride.report/internal/stats"
	"github.com/banshee-data/ride.report/internal/timeutil"
	"github.com/banshee-data/ride.report/internal/version"
)

// Uploader pushes a completed activity to the external fitness service.
// *strava.Client implements it; tests substitute a fake.
type Uploader interface {
	Upload(ctx context.Context, activity *db.Activity, st *stats.ActivityStats, externalID string) (int64, error)
}

// Server holds the handler dependencies.
type Server struct {
	db       *db.DB
	cfg      *config.Config
	ingest   *ingest.Service
	uploader Uploader
	clock    timeutil.Clock
}

// NewServer builds the API server. uploader may be nil when Strava
// credentials are not configured; the upload endpoint then reports 503.
func NewServer(database *db.DB, cfg *config.Config, ingestSvc *ingest.Service, uploader Uploader, clock timeutil.Clock) *Server {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Server{
		db:       database,
		cfg:      cfg,
		ingest:   ingestSvc,
		uploader: uploader,
		clock:    clock,
	}
}

// ServeMux mounts all API routes.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/new-probe", s.handleNewProbe)
	mux.HandleFunc("/api/probes", s.listProbes)
	mux.HandleFunc("/api/activities", s.listActivities)
	mux.HandleFunc("/api/activity", s.showActivity)
	mux.HandleFunc("/api/activity/name", s.renameActivity)
	mux.HandleFunc("/api/activity/merge", s.mergeActivities)
	mux.HandleFunc("/api/activity/export", s.exportActivity)
	mux.HandleFunc("/api/activity/upload", s.uploadActivity)
	mux.HandleFunc("/api/stats", s.showStats)
	mux.HandleFunc("/healthz", s.healthz)
	return mux
}

// healthz reports liveness and build information.
func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	httputil.WriteJSONOK(w, map[string]interface{}{
		"status":     "ok",
		"version":    version.Version,
		"git_sha":    version.GitSHA,
		"build_time": version.BuildTime,
		"now":        s.clock.Now().UTC(),
	})
}
