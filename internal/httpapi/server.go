package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vizbridged/internal/bridge"
	"vizbridged/internal/supervisor"
	"vizbridged/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	ListManifests() []types.Manifest
	Status() types.StatusResponse
	CreateInstance(ctx context.Context, manifestID string) (string, error)
	DestroyInstance(ctx context.Context, instanceID string) error
	RenderInstance(ctx context.Context, instanceID string, snap *types.AudioSnapshot, w, h int) (*bridge.RenderResult, error)
	ReloadModule(ctx context.Context, manifestID string) error
	PublishSnapshot(snap *types.AudioSnapshot)
	Ready() bool
}

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	// Compression for JSON endpoints
	r.Use(middleware.Compress(5))
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
		}))
	}
	r.Use(MetricsMiddleware)

	r.Get("/manifests", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(types.ManifestsResponse{Manifests: svc.ListManifests()}); err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
			return
		}
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(svc.Status()); err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
			return
		}
	})

	r.Post("/instances", func(w http.ResponseWriter, r *http.Request) {
		if !requireJSON(w, r) {
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		var req types.CreateInstanceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if strings.TrimSpace(req.ManifestID) == "" {
			writeJSONError(w, http.StatusBadRequest, "manifest_id is required")
			return
		}
		joinedCtx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		id, err := svc.CreateInstance(joinedCtx, req.ManifestID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(types.CreateInstanceResponse{InstanceID: id, ManifestID: req.ManifestID})
	})

	r.Delete("/instances/{id}", func(w http.ResponseWriter, r *http.Request) {
		joinedCtx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		if err := svc.DestroyInstance(joinedCtx, chi.URLParam(r, "id")); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	r.Post("/instances/{id}/render", func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		var req types.RenderRequest
		// An empty body renders at the default size.
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if req.Width <= 0 {
			req.Width = 512
		}
		if req.Height <= 0 {
			req.Height = 512
		}

		select {
		case renderInflight <- struct{}{}:
			defer func() { <-renderInflight }()
		default:
			IncrementBackpressure("render")
			writeJSONError(w, http.StatusTooManyRequests, "render queue full")
			return
		}

		start := time.Now()
		lvl := requestLogLevel(r)
		if lvl >= LevelInfo {
			if zlog != nil {
				z := zlog.Info().Str("path", r.URL.Path).Str("instance", id)
				if rid := middleware.GetReqID(r.Context()); rid != "" {
					z = z.Str("request_id", rid)
				}
				z.Msg("render start")
			} else {
				log.Printf("render start path=%s instance=%s", r.URL.Path, id)
			}
		}

		// Join server base context with request context so shutdown cancels work too.
		joinedCtx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		if renderTimeout > 0 {
			var tcancel context.CancelFunc
			joinedCtx, tcancel = context.WithTimeout(joinedCtx, time.Duration(renderTimeout)*time.Second)
			defer tcancel()
		}

		res, err := svc.RenderInstance(joinedCtx, id, nil, req.Width, req.Height)
		if err != nil {
			if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
				return
			}
			writeServiceError(w, err)
			logRenderEnd(r, lvl, statusFor(err), start, err)
			return
		}

		var cmds []map[string]any
		if len(res.Raw) > 0 {
			if err := json.Unmarshal(res.Raw, &cmds); err != nil {
				writeJSONError(w, http.StatusInternalServerError, "failed to decode command buffer")
				return
			}
		}
		if lvl >= LevelDebug {
			lw := &loggingLineWriter{}
			_, _ = lw.Write(append(res.Raw, '\n'))
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(types.RenderResponse{
			InstanceID:   id,
			CommandCount: len(res.Commands),
			Commands:     cmds,
			Dropped:      res.Stats.Dropped + res.Stats.Unknown,
		})
		logRenderEnd(r, lvl, http.StatusOK, start, nil)
	})

	r.Post("/snapshot", func(w http.ResponseWriter, r *http.Request) {
		if !requireJSON(w, r) {
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		var snap types.AudioSnapshot
		if err := json.NewDecoder(r.Body).Decode(&snap); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		svc.PublishSnapshot(&snap)
		w.WriteHeader(http.StatusAccepted)
	})

	r.Post("/reload/{manifestID}", func(w http.ResponseWriter, r *http.Request) {
		joinedCtx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		if err := svc.ReloadModule(joinedCtx, chi.URLParam(r, "manifestID")); err != nil {
			writeServiceError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"reloaded": chi.URLParam(r, "manifestID")})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("starting"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)

	return r
}

func requireJSON(w http.ResponseWriter, r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	return true
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case bridge.IsManifestNotFound(err), bridge.IsInstanceNotFound(err):
		return http.StatusNotFound
	case supervisor.IsNotRunning(err), supervisor.IsExhausted(err):
		return http.StatusServiceUnavailable
	case bridge.IsPlugin(err):
		return http.StatusBadGateway
	}
	if he, ok := err.(HTTPError); ok {
		return he.StatusCode()
	}
	return http.StatusInternalServerError
}

func writeServiceError(w http.ResponseWriter, err error) {
	writeJSONError(w, statusFor(err), err.Error())
}

func logRenderEnd(r *http.Request, lvl LogLevel, status int, start time.Time, err error) {
	if lvl < LevelInfo {
		return
	}
	if zlog != nil {
		z := zlog.Info().Int("status", status).Dur("dur", time.Since(start))
		if rid := middleware.GetReqID(r.Context()); rid != "" {
			z = z.Str("request_id", rid)
		}
		if err != nil {
			z = z.Err(err)
		}
		z.Msg("render end")
		return
	}
	if err != nil {
		log.Printf("render end status=%d dur=%s err=%v", status, time.Since(start), err)
		return
	}
	log.Printf("render end status=%d dur=%s", status, time.Since(start))
}
