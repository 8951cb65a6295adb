package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/loykin/iconrender/pkg/client"
)

type fakeBackend struct {
	skip    []uuid.UUID
	names   map[uuid.UUID]string
	batches []client.BatchRequest
	busy    bool
}

func (b *fakeBackend) Status() client.Status {
	return client.Status{State: "active", QueueDepth: 3, PendingItems: 1, SkipList: len(b.skip)}
}

func (b *fakeBackend) SkipList(context.Context) ([]uuid.UUID, error) { return b.skip, nil }

func (b *fakeBackend) Skip(_ context.Context, id uuid.UUID, name string) (bool, error) {
	for _, s := range b.skip {
		if s == id {
			return false, nil
		}
	}
	b.skip = append(b.skip, id)
	b.names[id] = name
	return true, nil
}

func (b *fakeBackend) StartBatch(_ context.Context, req client.BatchRequest) error {
	if b.busy {
		return errors.New("a batch is already running")
	}
	b.batches = append(b.batches, req)
	return nil
}

func setupRouter(t *testing.T, base string) (http.Handler, *fakeBackend) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	b := &fakeBackend{names: map[uuid.UUID]string{}}
	return NewRouter(b, base, true).Handler(), b
}

func doReq(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestStatus(t *testing.T) {
	h, _ := setupRouter(t, "/api")
	rec := doReq(t, h, http.MethodGet, "/api/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var st client.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.QueueDepth != 3 || st.PendingItems != 1 || st.State != "active" {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestSkipAddAndList(t *testing.T) {
	h, b := setupRouter(t, "")
	id := uuid.New()
	dashless := strings.ReplaceAll(id.String(), "-", "")

	rec := doReq(t, h, http.MethodPost, "/skiplist", client.SkipRequest{ID: dashless, Name: "Bad\x07 Mesh"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp client.SkipResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if !resp.Added {
		t.Fatalf("expected added")
	}
	if b.names[id] != "Bad Mesh" {
		t.Fatalf("name not cleaned: %q", b.names[id])
	}

	rec = doReq(t, h, http.MethodPost, "/skiplist", client.SkipRequest{ID: id.String()})
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Added {
		t.Fatalf("second add must report not added")
	}

	rec = doReq(t, h, http.MethodGet, "/skiplist", nil)
	var list client.SkipList
	_ = json.Unmarshal(rec.Body.Bytes(), &list)
	if len(list.IDs) != 1 || list.IDs[0] != id.String() {
		t.Fatalf("list = %v", list.IDs)
	}
}

func TestSkipRejectsBadID(t *testing.T) {
	h, _ := setupRouter(t, "")
	for _, id := range []string{"", "not-a-uuid", uuid.Nil.String()} {
		rec := doReq(t, h, http.MethodPost, "/skiplist", client.SkipRequest{ID: id})
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("id %q: expected 400, got %d", id, rec.Code)
		}
	}
	rec := doReq(t, h, http.MethodPost, "/skiplist", "{")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad JSON, got %d", rec.Code)
	}
}

func TestBatch(t *testing.T) {
	h, b := setupRouter(t, "/api")
	rec := doReq(t, h, http.MethodPost, "/api/batch", client.BatchRequest{Mode: "vehicles"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(b.batches) != 1 {
		t.Fatalf("batch not started")
	}
	if b.batches[0].GenerateItems != nil || b.batches[0].GenerateVehicles != nil {
		t.Fatalf("omitted generate flags must stay unset: %+v", b.batches[0])
	}

	rec = doReq(t, h, http.MethodPost, "/api/batch", client.BatchRequest{Mode: "mod"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("mod without publisher: expected 400, got %d", rec.Code)
	}
	rec = doReq(t, h, http.MethodPost, "/api/batch", client.BatchRequest{Mode: "sideways"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown mode: expected 400, got %d", rec.Code)
	}

	b.busy = true
	rec = doReq(t, h, http.MethodPost, "/api/batch", client.BatchRequest{Mode: "all"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("busy: expected 409, got %d", rec.Code)
	}
}

func TestMetricsRoute(t *testing.T) {
	h, _ := setupRouter(t, "/api")
	rec := doReq(t, h, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	gin.SetMode(gin.TestMode)
	h = NewRouter(&fakeBackend{}, "/api", false).Handler()
	rec = doReq(t, h, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("metrics disabled: expected 404, got %d", rec.Code)
	}
}
