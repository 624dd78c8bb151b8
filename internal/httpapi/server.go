package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/heyross/InvokeAI/internal/modelstore"
	"github.com/heyross/InvokeAI/internal/registry"
	"github.com/heyross/InvokeAI/internal/workflows"
	"github.com/heyross/InvokeAI/pkg/types"
)

// ModelStore is the model-config store surface used by the HTTP layer.
type ModelStore interface {
	List() map[string]types.ModelConfig
	Get(key string) (types.ModelConfig, error)
	Add(key string, cfg types.ModelConfig) error
	Update(key string, cfg types.ModelConfig) error
	Del(key string) error
}

// WorkflowStore is the workflow store surface used by the HTTP layer.
type WorkflowStore interface {
	Create(w types.Workflow) types.WorkflowRecord
	Get(id string) (types.WorkflowRecord, error)
	Update(w types.Workflow) (types.WorkflowRecord, error)
	Delete(id string) error
	GetMany(page, perPage int) types.PaginatedResults[types.WorkflowRecord]
}

// CacheService is the model cache surface used by the HTTP layer.
type CacheService interface {
	Status() types.CacheStatusResponse
	LoadModel(key string, targetBytes int64) (int64, error)
	UnloadModel(key string, targetFreeBytes int64) (int64, error)
	Drop(key string) error
}

// NewMux builds the HTTP handler for the service.
func NewMux(models ModelStore, wfs WorkflowStore, cache CacheService) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	// Compression for JSON endpoints
	r.Use(middleware.Compress(5))
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
		}))
	}
	r.Use(MetricsMiddleware)
	r.Use(RequestLogger)
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Route("/v1/models", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, types.ModelsResponse{Models: models.List()})
		})
		r.Post("/scan", func(w http.ResponseWriter, r *http.Request) {
			var req types.ScanModelsRequest
			if !decodeJSON(w, r, &req) {
				return
			}
			if strings.TrimSpace(req.Dir) == "" {
				writeJSONError(w, http.StatusBadRequest, "dir is required")
				return
			}
			found, err := registry.ScanDir(req.Dir)
			if err != nil {
				writeJSONError(w, http.StatusBadRequest, err.Error())
				return
			}
			added := []string{}
			for key, cfg := range found {
				if err := models.Add(key, cfg); err != nil {
					if modelstore.IsDuplicateModel(err) {
						continue
					}
					writeJSONError(w, statusFromErr(err), err.Error())
					return
				}
				added = append(added, key)
			}
			sort.Strings(added)
			writeJSON(w, http.StatusOK, types.ScanModelsResponse{Added: added})
		})
		// Model keys contain slashes (base/type/name), hence the
		// catch-all segment.
		r.Get("/i/*", func(w http.ResponseWriter, r *http.Request) {
			key := chi.URLParam(r, "*")
			cfg, err := models.Get(key)
			if err != nil {
				writeJSONError(w, statusFromErr(err), err.Error())
				return
			}
			writeJSON(w, http.StatusOK, cfg)
		})
		r.Post("/i/*", func(w http.ResponseWriter, r *http.Request) {
			key := chi.URLParam(r, "*")
			var cfg types.ModelConfig
			if !decodeJSON(w, r, &cfg) {
				return
			}
			if err := models.Add(key, cfg); err != nil {
				writeJSONError(w, statusFromErr(err), err.Error())
				return
			}
			writeJSON(w, http.StatusCreated, cfg)
		})
		r.Patch("/i/*", func(w http.ResponseWriter, r *http.Request) {
			key := chi.URLParam(r, "*")
			var cfg types.ModelConfig
			if !decodeJSON(w, r, &cfg) {
				return
			}
			if err := models.Update(key, cfg); err != nil {
				writeJSONError(w, statusFromErr(err), err.Error())
				return
			}
			writeJSON(w, http.StatusOK, cfg)
		})
		r.Delete("/i/*", func(w http.ResponseWriter, r *http.Request) {
			key := chi.URLParam(r, "*")
			if err := models.Del(key); err != nil {
				writeJSONError(w, statusFromErr(err), err.Error())
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})
	})

	r.Route("/v1/workflows", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			page := queryInt(r, "page", 0)
			perPage := queryInt(r, "per_page", workflows.DefaultPerPage)
			writeJSON(w, http.StatusOK, wfs.GetMany(page, perPage))
		})
		r.Post("/", func(w http.ResponseWriter, r *http.Request) {
			var wf types.Workflow
			if !decodeJSON(w, r, &wf) {
				return
			}
			if strings.TrimSpace(wf.Name) == "" {
				writeJSONError(w, http.StatusBadRequest, "name is required")
				return
			}
			writeJSON(w, http.StatusCreated, wfs.Create(wf))
		})
		r.Get("/i/{id}", func(w http.ResponseWriter, r *http.Request) {
			rec, err := wfs.Get(chi.URLParam(r, "id"))
			if err != nil {
				writeJSONError(w, statusFromErr(err), err.Error())
				return
			}
			writeJSON(w, http.StatusOK, rec)
		})
		r.Patch("/i/{id}", func(w http.ResponseWriter, r *http.Request) {
			var wf types.Workflow
			if !decodeJSON(w, r, &wf) {
				return
			}
			wf.ID = chi.URLParam(r, "id")
			rec, err := wfs.Update(wf)
			if err != nil {
				writeJSONError(w, statusFromErr(err), err.Error())
				return
			}
			writeJSON(w, http.StatusOK, rec)
		})
		r.Delete("/i/{id}", func(w http.ResponseWriter, r *http.Request) {
			if err := wfs.Delete(chi.URLParam(r, "id")); err != nil {
				writeJSONError(w, statusFromErr(err), err.Error())
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})
	})

	r.Route("/v1/cache", func(r chi.Router) {
		r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, cache.Status())
		})
		r.Post("/load/*", func(w http.ResponseWriter, r *http.Request) {
			key := chi.URLParam(r, "*")
			var req types.CacheLoadRequest
			if !decodeJSON(w, r, &req) {
				return
			}
			target := int64(1<<63 - 1) // full load unless bounded
			if req.TargetBytes != nil {
				if *req.TargetBytes < 0 {
					writeJSONError(w, http.StatusBadRequest, "target_bytes must be >= 0")
					return
				}
				target = *req.TargetBytes
			}
			loaded, err := cache.LoadModel(key, target)
			if err != nil {
				writeJSONError(w, statusFromErr(err), err.Error())
				return
			}
			writeJSON(w, http.StatusOK, types.CacheLoadResponse{LoadedBytes: loaded})
		})
		r.Post("/unload/*", func(w http.ResponseWriter, r *http.Request) {
			key := chi.URLParam(r, "*")
			var req types.CacheUnloadRequest
			if !decodeJSON(w, r, &req) {
				return
			}
			target := int64(1<<63 - 1) // full unload unless bounded
			if req.TargetFreeBytes != nil {
				if *req.TargetFreeBytes < 0 {
					writeJSONError(w, http.StatusBadRequest, "target_free_bytes must be >= 0")
					return
				}
				target = *req.TargetFreeBytes
			}
			freed, err := cache.UnloadModel(key, target)
			if err != nil {
				writeJSONError(w, statusFromErr(err), err.Error())
				return
			}
			writeJSON(w, http.StatusOK, types.CacheUnloadResponse{FreedBytes: freed})
		})
		r.Delete("/i/*", func(w http.ResponseWriter, r *http.Request) {
			if err := cache.Drop(chi.URLParam(r, "*")); err != nil {
				writeJSONError(w, statusFromErr(err), err.Error())
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if models != nil && wfs != nil && cache != nil {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("loading"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)

	return r
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil && zlog != nil {
		zlog.Error().Err(err).Msg("encode response")
	}
}

// decodeJSON enforces the JSON content type and body size limit, then
// decodes the body into v. On failure it writes the error response and
// returns false.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && err != io.EOF {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func queryInt(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
