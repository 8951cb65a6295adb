package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func resetRegistration(t *testing.T) {
	t.Helper()
	prev := regOK.Load()
	regOK.Store(false)
	t.Cleanup(func() { regOK.Store(prev) })
}

func TestRegisterIdempotentAndCountersWork(t *testing.T) {
	resetRegistration(t)
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := Register(reg); err != nil {
		t.Fatalf("second register: %v", err)
	}

	IncRender("vehicle", "succeeded")
	IncRender("vehicle", "succeeded")
	IncRender("item", "failed")
	ObserveRenderDuration("vehicle", 0.25)
	SetSkipListSize(3)
	IncCrashRecovery()
	SetQueueDepth(7)
	SetPendingItems(2)
	SetBatchActive(true)
	IncBatchCompleted()

	if got := testutil.ToFloat64(renders.WithLabelValues("vehicle", "succeeded")); got < 2 {
		t.Fatalf("renders_total{vehicle,succeeded} = %v, want >= 2", got)
	}
	if got := testutil.ToFloat64(queueDepth); got != 7 {
		t.Fatalf("queue depth = %v, want 7", got)
	}
	if got := testutil.ToFloat64(batchActive); got != 1 {
		t.Fatalf("batch active = %v, want 1", got)
	}

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	wantNames := map[string]bool{
		"iconrender_render_total":                    false,
		"iconrender_render_duration_seconds":         false,
		"iconrender_skiplist_entries":                false,
		"iconrender_skiplist_crash_recoveries_total": false,
		"iconrender_batch_vehicle_queue_depth":       false,
		"iconrender_batch_pending_item_icons":        false,
	}
	for _, mf := range mfs {
		if _, ok := wantNames[mf.GetName()]; ok {
			wantNames[mf.GetName()] = true
		}
	}
	for n, ok := range wantNames {
		if !ok {
			t.Fatalf("expected to find metric %s", n)
		}
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	resetRegistration(t)
	if err := Register(prometheus.DefaultRegisterer); err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	IncRender("item", "succeeded")

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != 200 {
		t.Fatalf("status: %d", resp.StatusCode)
	}
	b, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(b), "iconrender_render_total") {
		t.Fatalf("metrics output missing iconrender_render_total")
	}
}

func TestConcurrentIncrements(t *testing.T) {
	resetRegistration(t)
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatal(err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		i := i
		go func() {
			defer wg.Done()
			IncRender("vehicle", "skipped")
			SetPendingItems(i)
		}()
	}
	wg.Wait()
	if _, err := reg.Gather(); err != nil {
		t.Fatalf("gather: %v", err)
	}
}

func TestMetricsBeforeRegister(t *testing.T) {
	resetRegistration(t)

	IncRender("item", "failed")
	ObserveRenderDuration("item", 1)
	SetSkipListSize(1)
	IncCrashRecovery()
	SetQueueDepth(1)
	SetPendingItems(1)
	SetBatchActive(false)
	IncBatchCompleted()
}

type errorRegisterer struct{}

func (errorRegisterer) Register(prometheus.Collector) error {
	return errors.New("test registration error")
}

func (errorRegisterer) MustRegister(...prometheus.Collector) {}

func (errorRegisterer) Unregister(prometheus.Collector) bool { return false }

func TestRegisterError(t *testing.T) {
	resetRegistration(t)
	err := Register(errorRegisterer{})
	if err == nil || err.Error() != "test registration error" {
		t.Fatalf("unexpected error: %v", err)
	}
	if regOK.Load() {
		t.Fatal("failed registration must not enable helpers")
	}
}
