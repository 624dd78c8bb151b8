package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/heyross/InvokeAI/internal/model"
	"github.com/heyross/InvokeAI/internal/modelcache"
	"github.com/heyross/InvokeAI/internal/modelstore"
	"github.com/heyross/InvokeAI/internal/tensor"
	"github.com/heyross/InvokeAI/internal/workflows"
	"github.com/heyross/InvokeAI/pkg/types"
)

func newTestMux(t *testing.T) (http.Handler, *modelcache.Cache) {
	t.Helper()
	dir := t.TempDir()
	ms, err := modelstore.Open(filepath.Join(dir, "models.yaml"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	wfs := workflows.NewStore(filepath.Join(dir, "workflows.json"))
	cache := modelcache.NewCache(modelcache.CacheConfig{
		Backend:       tensor.NewSimBackend(),
		ComputeDevice: tensor.Device("cuda:0"),
		Logger:        zerolog.Nop(),
	})
	return NewMux(ms, wfs, cache), cache
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestModelsCRUD(t *testing.T) {
	h, _ := newTestMux(t)

	cfg := types.ModelConfig{Path: "/m/pokemon.safetensors", Name: "pokemon", BaseModel: "sd-1", ModelType: "embedding", ModelFormat: "embedding_file"}
	if w := doJSON(t, h, http.MethodPost, "/v1/models/i/sd-1/embedding/pokemon", cfg); w.Code != http.StatusCreated {
		t.Fatalf("add status=%d body=%s", w.Code, w.Body.String())
	}
	if w := doJSON(t, h, http.MethodPost, "/v1/models/i/sd-1/embedding/pokemon", cfg); w.Code != http.StatusConflict {
		t.Fatalf("duplicate add status=%d", w.Code)
	}

	w := doJSON(t, h, http.MethodGet, "/v1/models/i/sd-1/embedding/pokemon", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status=%d", w.Code)
	}
	var got types.ModelConfig
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("json: %v", err)
	}
	if got.Name != "pokemon" || got.BaseModel != "sd-1" {
		t.Fatalf("unexpected config: %+v", got)
	}

	w = doJSON(t, h, http.MethodGet, "/v1/models", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status=%d", w.Code)
	}
	var list types.ModelsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(list.Models) != 1 {
		t.Fatalf("models len=%d", len(list.Models))
	}

	cfg.Description = "updated"
	if w := doJSON(t, h, http.MethodPatch, "/v1/models/i/sd-1/embedding/pokemon", cfg); w.Code != http.StatusOK {
		t.Fatalf("update status=%d", w.Code)
	}
	if w := doJSON(t, h, http.MethodDelete, "/v1/models/i/sd-1/embedding/pokemon", nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete status=%d", w.Code)
	}
	if w := doJSON(t, h, http.MethodGet, "/v1/models/i/sd-1/embedding/pokemon", nil); w.Code != http.StatusNotFound {
		t.Fatalf("get after delete status=%d", w.Code)
	}
}

func TestModelScan(t *testing.T) {
	h, _ := newTestMux(t)
	dir := t.TempDir()
	for _, f := range []string{"pokemon.safetensors", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, f), []byte(""), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	w := doJSON(t, h, http.MethodPost, "/v1/models/scan", types.ScanModelsRequest{Dir: dir})
	if w.Code != http.StatusOK {
		t.Fatalf("scan status=%d body=%s", w.Code, w.Body.String())
	}
	var sr types.ScanModelsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &sr); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(sr.Added) != 1 || sr.Added[0] != "unknown/main/pokemon" {
		t.Fatalf("added=%v", sr.Added)
	}
	// Rescan adds nothing new.
	w = doJSON(t, h, http.MethodPost, "/v1/models/scan", types.ScanModelsRequest{Dir: dir})
	if w.Code != http.StatusOK {
		t.Fatalf("rescan status=%d", w.Code)
	}
	sr = types.ScanModelsResponse{}
	if err := json.Unmarshal(w.Body.Bytes(), &sr); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(sr.Added) != 0 {
		t.Fatalf("rescan added=%v", sr.Added)
	}
}

func TestModelGetUnknownReturns404(t *testing.T) {
	h, _ := newTestMux(t)
	w := doJSON(t, h, http.MethodGet, "/v1/models/i/sd-1/main/nope", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status=%d", w.Code)
	}
	var er types.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil {
		t.Fatalf("json: %v", err)
	}
	if er.Code != http.StatusNotFound || er.Error == "" {
		t.Fatalf("unexpected error payload: %+v", er)
	}
}

func TestWorkflowsCRUD(t *testing.T) {
	h, _ := newTestMux(t)

	w := doJSON(t, h, http.MethodPost, "/v1/workflows", types.Workflow{Name: "txt2img"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status=%d body=%s", w.Code, w.Body.String())
	}
	var rec types.WorkflowRecord
	if err := json.Unmarshal(w.Body.Bytes(), &rec); err != nil {
		t.Fatalf("json: %v", err)
	}
	if rec.Workflow.ID == "" {
		t.Fatalf("expected assigned id")
	}

	w = doJSON(t, h, http.MethodGet, "/v1/workflows/i/"+rec.Workflow.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status=%d", w.Code)
	}

	upd := rec.Workflow
	upd.Name = "txt2img v2"
	w = doJSON(t, h, http.MethodPatch, "/v1/workflows/i/"+rec.Workflow.ID, upd)
	if w.Code != http.StatusOK {
		t.Fatalf("update status=%d", w.Code)
	}
	var updated types.WorkflowRecord
	if err := json.Unmarshal(w.Body.Bytes(), &updated); err != nil {
		t.Fatalf("json: %v", err)
	}
	if updated.Workflow.Name != "txt2img v2" {
		t.Fatalf("name=%q", updated.Workflow.Name)
	}

	if w := doJSON(t, h, http.MethodDelete, "/v1/workflows/i/"+rec.Workflow.ID, nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete status=%d", w.Code)
	}
	if w := doJSON(t, h, http.MethodGet, "/v1/workflows/i/"+rec.Workflow.ID, nil); w.Code != http.StatusNotFound {
		t.Fatalf("get after delete status=%d", w.Code)
	}
}

func TestWorkflowCreateRequiresName(t *testing.T) {
	h, _ := newTestMux(t)
	if w := doJSON(t, h, http.MethodPost, "/v1/workflows", types.Workflow{}); w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestWorkflowsPagination(t *testing.T) {
	h, _ := newTestMux(t)
	for i := 0; i < 12; i++ {
		if w := doJSON(t, h, http.MethodPost, "/v1/workflows", types.Workflow{Name: "wf"}); w.Code != http.StatusCreated {
			t.Fatalf("create %d status=%d", i, w.Code)
		}
	}
	w := doJSON(t, h, http.MethodGet, "/v1/workflows?page=1&per_page=5", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status=%d", w.Code)
	}
	var page types.PaginatedResults[types.WorkflowRecord]
	if err := json.Unmarshal(w.Body.Bytes(), &page); err != nil {
		t.Fatalf("json: %v", err)
	}
	if page.Page != 1 || page.PerPage != 5 || page.Total != 12 || page.Pages != 3 || len(page.Items) != 5 {
		t.Fatalf("unexpected page: %+v", page)
	}
}

func newCachedLinear(t *testing.T) (*modelcache.CachedModelWithPartialLoad, *tensor.SimBackend) {
	t.Helper()
	be := tensor.NewSimBackend()
	m := model.NewModule()
	m.Add("linear1", model.NewLeaf(model.NewLinear(10, 10)))
	return modelcache.NewCachedModelWithPartialLoad(m, be, tensor.Device("cuda:0")), be
}

func TestCacheEndpoints(t *testing.T) {
	h, cache := newTestMux(t)
	be := tensor.NewSimBackend()
	m := model.NewModule()
	m.Add("linear1", model.NewLeaf(model.NewLinear(10, 10)))
	cm := modelcache.NewCachedModelWithPartialLoad(m, be, tensor.Device("cuda:0"))
	if err := cache.Put("sd-1/main/test", cm); err != nil {
		t.Fatalf("put: %v", err)
	}

	w := doJSON(t, h, http.MethodGet, "/v1/cache/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var st types.CacheStatusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(st.Records) != 1 || st.Records[0].Key != "sd-1/main/test" {
		t.Fatalf("unexpected status: %+v", st)
	}

	// Partial load: 200 of 440 total bytes (10x10 weight + 10 bias, f32).
	target := int64(200)
	w = doJSON(t, h, http.MethodPost, "/v1/cache/load/sd-1/main/test", types.CacheLoadRequest{TargetBytes: &target})
	if w.Code != http.StatusOK {
		t.Fatalf("load status=%d body=%s", w.Code, w.Body.String())
	}
	var lr types.CacheLoadResponse
	if err := json.Unmarshal(w.Body.Bytes(), &lr); err != nil {
		t.Fatalf("json: %v", err)
	}
	if lr.LoadedBytes <= 0 {
		t.Fatalf("loaded=%d", lr.LoadedBytes)
	}

	// Full load via empty target.
	w = doJSON(t, h, http.MethodPost, "/v1/cache/load/sd-1/main/test", types.CacheLoadRequest{})
	if w.Code != http.StatusOK {
		t.Fatalf("full load status=%d", w.Code)
	}
	if cm.CurVRAMBytes() != cm.TotalBytes() {
		t.Fatalf("cur=%d total=%d", cm.CurVRAMBytes(), cm.TotalBytes())
	}

	// Unload everything.
	w = doJSON(t, h, http.MethodPost, "/v1/cache/unload/sd-1/main/test", types.CacheUnloadRequest{})
	if w.Code != http.StatusOK {
		t.Fatalf("unload status=%d", w.Code)
	}
	var ur types.CacheUnloadResponse
	if err := json.Unmarshal(w.Body.Bytes(), &ur); err != nil {
		t.Fatalf("json: %v", err)
	}
	if ur.FreedBytes != cm.TotalBytes() {
		t.Fatalf("freed=%d want=%d", ur.FreedBytes, cm.TotalBytes())
	}

	if w := doJSON(t, h, http.MethodDelete, "/v1/cache/i/sd-1/main/test", nil); w.Code != http.StatusNoContent {
		t.Fatalf("drop status=%d", w.Code)
	}
	if w := doJSON(t, h, http.MethodGet, "/v1/cache/status", nil); !strings.Contains(w.Body.String(), `"records":[]`) && !strings.Contains(w.Body.String(), `"records":null`) {
		t.Fatalf("expected empty records, got %s", w.Body.String())
	}
}

func TestCacheLoadUnknownModelReturns404(t *testing.T) {
	h, _ := newTestMux(t)
	w := doJSON(t, h, http.MethodPost, "/v1/cache/load/sd-1/main/nope", types.CacheLoadRequest{})
	if w.Code != http.StatusNotFound {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestCacheDropLockedReturns409(t *testing.T) {
	h, cache := newTestMux(t)
	cm, _ := newCachedLinear(t)
	if err := cache.Put("k", cm); err != nil {
		t.Fatalf("put: %v", err)
	}
	rec, err := cache.Get("k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	rec.Lock()
	defer rec.Unlock()
	if w := doJSON(t, h, http.MethodDelete, "/v1/cache/i/k", nil); w.Code != http.StatusConflict {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestContentTypeRequired(t *testing.T) {
	h, _ := newTestMux(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/workflows", strings.NewReader(`{"name":"x"}`))
	req.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestInvalidJSONReturns400(t *testing.T) {
	h, _ := newTestMux(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/workflows", strings.NewReader(`{"name":`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestHealthAndReady(t *testing.T) {
	h, _ := newTestMux(t)
	if w := doJSON(t, h, http.MethodGet, "/healthz", nil); w.Code != http.StatusOK {
		t.Fatalf("healthz status=%d", w.Code)
	}
	if w := doJSON(t, h, http.MethodGet, "/readyz", nil); w.Code != http.StatusOK {
		t.Fatalf("readyz status=%d", w.Code)
	}
}
