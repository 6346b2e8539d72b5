package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-cohorts/internal/analysis"
	"github.com/mind-engage/mindengage-cohorts/internal/apperr"
	"github.com/mind-engage/mindengage-cohorts/internal/cache"
	"github.com/mind-engage/mindengage-cohorts/internal/report"
	"github.com/mind-engage/mindengage-cohorts/internal/roster"
	"github.com/mind-engage/mindengage-cohorts/internal/runs"
	"github.com/mind-engage/mindengage-cohorts/internal/storage"
	syncx "github.com/mind-engage/mindengage-cohorts/internal/sync"
)

// EventLog records every archived run and replays them by sequence.
// *syncx.EventRepo satisfies it.
type EventLog interface {
	Append(ctx context.Context, typ, key string, data any) error
	Since(ctx context.Context, after int64, limit int) ([]syncx.Event, error)
}

// Service holds what the analysis handlers share. Cache and Events may be
// nil.
type Service struct {
	Analyzer  *analysis.Analyzer
	Runs      runs.Store
	Blobs     storage.BlobStore
	Cache     cache.Cache
	Events    EventLog
	CacheTTL  time.Duration
	MaxUpload int64
	Log       *slog.Logger

	// PublicURL prefixes artifact links; empty gives host-relative links.
	PublicURL string
	// LocalLinks points artifact links at the blob store instead of the API,
	// for single-machine offline installs.
	LocalLinks bool
}

func (s *Service) logger() *slog.Logger {
	if s.Log == nil {
		return slog.Default()
	}
	return s.Log
}

func (s *Service) cache() cache.Cache {
	if s.Cache == nil {
		return cache.Nop{}
	}
	return s.Cache
}

// MountAnalyses registers the /analyses routes on r.
func MountAnalyses(r chi.Router, svc *Service) {
	r.Post("/", CreateAnalysisHandler(svc))
	r.Get("/", ListAnalysesHandler(svc))
	r.Get("/{runID}", GetAnalysisHandler(svc))
	r.Get("/{runID}/{artifact}", GetArtifactHandler(svc))
}

// statusFor maps error kinds to HTTP status codes.
func statusFor(err error) int {
	switch apperr.Kind(err) {
	case apperr.ErrNotFound:
		return http.StatusNotFound
	case apperr.ErrFormat:
		return http.StatusUnsupportedMediaType
	case apperr.ErrData:
		return http.StatusUnprocessableEntity
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// artifactLinks maps every artifact name of a run to where it can be fetched.
func (s *Service) artifactLinks(runID string) map[string]string {
	out := make(map[string]string, len(artifactTypes))
	for name := range artifactTypes {
		if s.LocalLinks {
			if u, err := s.Blobs.SignedURL(storage.ArtifactKey(runID, name)); err == nil {
				out[name] = u
				continue
			}
		}
		out[name] = strings.TrimRight(s.PublicURL, "/") + "/analyses/" + runID + "/" + name
	}
	return out
}

// optionsFromQuery applies k, seed and top on top of base.
func optionsFromQuery(r *http.Request, base analysis.Options) (analysis.Options, error) {
	q := r.URL.Query()
	out := base
	if v := strings.TrimSpace(q.Get("k")); v != "" {
		k, err := strconv.Atoi(v)
		if err != nil || k < 1 {
			return base, fmt.Errorf("k must be a positive integer")
		}
		out.Cluster.K = k
	}
	if v := strings.TrimSpace(q.Get("seed")); v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return base, fmt.Errorf("seed must be an integer")
		}
		out.Cluster.Seed = seed
	}
	if v := strings.TrimSpace(q.Get("top")); v != "" {
		top, err := strconv.Atoi(v)
		if err != nil || top < 1 {
			return base, fmt.Errorf("top must be a positive integer")
		}
		out.Report.TopN = top
	}
	return out, nil
}

// POST /analyses   (multipart: file; query: k, seed, top)
func CreateAnalysisHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc.MaxUpload > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, svc.MaxUpload)
		}
		opts, err := optionsFromQuery(r, svc.Analyzer.Defaults())
		if err != nil {
			http.Error(w, "bad query: "+err.Error(), http.StatusBadRequest)
			return
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				http.Error(w, "upload too large", http.StatusRequestEntityTooLarge)
				return
			}
			http.Error(w, "file required", http.StatusBadRequest)
			return
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			http.Error(w, "read upload: "+err.Error(), http.StatusBadRequest)
			return
		}

		ctx := r.Context()
		log := svc.logger().With("source", hdr.Filename, "request_id", requestID(r))
		format, err := roster.DetectFormat(hdr.Filename)
		if err != nil {
			http.Error(w, "analysis: "+err.Error(), statusFor(err))
			return
		}
		fp := analysis.Fingerprint(data, format, opts)

		res, hit, err := svc.cache().Get(ctx, fp)
		if err != nil {
			log.Warn("cache get failed", "err", err)
		}
		if hit {
			// The cached report, GeneratedAt included, is reused as is; only
			// the source name belongs to this upload.
			res.Source = hdr.Filename
		} else {
			res, err = svc.Analyzer.RunBytes(ctx, data, hdr.Filename, opts)
			if err != nil {
				http.Error(w, "analysis: "+err.Error(), statusFor(err))
				return
			}
			if err := svc.cache().Set(ctx, fp, res, svc.CacheTTL); err != nil {
				log.Warn("cache set failed", "err", err)
			}
		}

		run, err := runs.NewRun(hdr.Filename, res)
		if err != nil {
			http.Error(w, "encode: "+err.Error(), http.StatusInternalServerError)
			return
		}
		if err := svc.storeArtifacts(run.ID, hdr.Filename, data, res); err != nil {
			http.Error(w, "store error: "+err.Error(), http.StatusInternalServerError)
			return
		}
		if err := svc.Runs.Put(ctx, run); err != nil {
			http.Error(w, "archive: "+err.Error(), http.StatusInternalServerError)
			return
		}
		if svc.Events != nil {
			ev := map[string]any{"fingerprint": run.Fingerprint, "students": run.Students, "clustered": run.Clustered}
			if err := svc.Events.Append(ctx, syncx.TypeAnalysisCompleted, run.ID, ev); err != nil {
				log.Warn("event append failed", "run", run.ID, "err", err)
			}
		}
		log.Info("analysis archived", "run", run.ID, "cached", hit, "students", run.Students)
		run.Links = svc.artifactLinks(run.ID)

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Location", "/analyses/"+run.ID)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(run)
	}
}

func (s *Service) storeArtifacts(runID, name string, input []byte, res *analysis.Result) error {
	if _, err := s.Blobs.Put(storage.UploadKey(runID, name), bytes.NewReader(input)); err != nil {
		return err
	}
	for _, a := range []string{storage.ArtifactReport, storage.ArtifactAssignments, storage.ArtifactWorkbook} {
		b, _, err := renderArtifact(a, res)
		if err != nil {
			return fmt.Errorf("render %s: %w", a, err)
		}
		if _, err := s.Blobs.Put(storage.ArtifactKey(runID, a), bytes.NewReader(b)); err != nil {
			return err
		}
	}
	return nil
}

// GET /analyses?limit=&offset=&fingerprint=
func ListAnalysesHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.Runs.List(r.Context(), runs.ListOpts{
			Fingerprint: strings.TrimSpace(r.URL.Query().Get("fingerprint")),
			Limit:       parseIntDefault(r.URL.Query().Get("limit"), 50),
			Offset:      parseIntDefault(r.URL.Query().Get("offset"), 0),
		})
		if err != nil {
			http.Error(w, err.Error(), statusFor(err))
			return
		}
		for i := range list {
			list[i].Links = svc.artifactLinks(list[i].ID)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(list)
	}
}

// GET /analyses/{runID}
func GetAnalysisHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run, err := svc.Runs.Get(r.Context(), chi.URLParam(r, "runID"))
		if err != nil {
			http.Error(w, "run: "+err.Error(), statusFor(err))
			return
		}
		run.Links = svc.artifactLinks(run.ID)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(run)
	}
}

// GET /analyses/{runID}/{artifact}
func GetArtifactHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "artifact")
		ctype, ok := artifactTypes[name]
		if !ok {
			http.Error(w, "unknown artifact: "+name, http.StatusNotFound)
			return
		}
		run, err := svc.Runs.Get(r.Context(), chi.URLParam(r, "runID"))
		if err != nil {
			http.Error(w, "run: "+err.Error(), statusFor(err))
			return
		}

		w.Header().Set("Content-Type", ctype)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
		rc, err := svc.Blobs.Get(storage.ArtifactKey(run.ID, name))
		if err == nil {
			defer rc.Close()
			_, _ = io.Copy(w, rc)
			return
		}
		if !errors.Is(err, apperr.ErrNotFound) {
			http.Error(w, "store error: "+err.Error(), http.StatusInternalServerError)
			return
		}

		// Not stored; render from the archived result.
		res, err := run.Decode()
		if err != nil {
			http.Error(w, "decode: "+err.Error(), http.StatusInternalServerError)
			return
		}
		b, _, err := renderArtifact(name, res)
		if err != nil {
			http.Error(w, "render: "+err.Error(), http.StatusInternalServerError)
			return
		}
		_, _ = w.Write(b)
	}
}

// GET /events?after=&limit=
func EventsHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc.Events == nil {
			http.Error(w, "event log disabled", http.StatusNotFound)
			return
		}
		q := r.URL.Query()
		var after int64
		if v := strings.TrimSpace(q.Get("after")); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil || n < 0 {
				http.Error(w, "bad query: after must be a non-negative integer", http.StatusBadRequest)
				return
			}
			after = n
		}
		limit := parseIntDefault(q.Get("limit"), 100)
		if limit > 1000 {
			limit = 1000
		}
		evs, err := svc.Events.Since(r.Context(), after, limit)
		if err != nil {
			http.Error(w, "events: "+err.Error(), statusFor(err))
			return
		}
		if evs == nil {
			evs = []syncx.Event{}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(evs)
	}
}

var artifactTypes = map[string]string{
	storage.ArtifactReport:      "text/plain; charset=utf-8",
	storage.ArtifactAssignments: "text/csv; charset=utf-8",
	storage.ArtifactWorkbook:    "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

func renderArtifact(name string, res *analysis.Result) ([]byte, string, error) {
	var buf bytes.Buffer
	var err error
	switch name {
	case storage.ArtifactReport:
		err = report.WriteText(&buf, res.Report, res.Graded)
	case storage.ArtifactAssignments:
		err = report.WriteAssignmentsCSV(&buf, res.Graded, res.Cluster)
	case storage.ArtifactWorkbook:
		err = report.WriteWorkbook(&buf, res.Report, res.Graded, res.Cluster)
	default:
		return nil, "", fmt.Errorf("unknown artifact %q", name)
	}
	if err != nil {
		return nil, "", err
	}
	return buf.Bytes(), artifactTypes[name], nil
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil && v >= 0 {
		return v
	}
	return def
}
