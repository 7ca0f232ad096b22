package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tidwall/gjson"

	"github.com/verte-zerg/sparcsviz/internal/aggregate"
	"github.com/verte-zerg/sparcsviz/internal/charts"
	"github.com/verte-zerg/sparcsviz/internal/store"
	"github.com/verte-zerg/sparcsviz/internal/telemetry"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	ctx := context.Background()
	st, err := store.OpenTable(ctx, aggregate.DemoSource(), store.Options{})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})
	cat, err := aggregate.Load(ctx, st, aggregate.LoadOptions{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	srv := New(Config{Source: st.Source()}, cat, telemetry.NewMetrics(charts.Kinds()))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func get(t *testing.T, ts *httptest.Server, path string) (int, []byte) {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return resp.StatusCode, body
}

func TestListKinds(t *testing.T) {
	ts := newTestServer(t)
	status, body := get(t, ts, "/charts")
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if n := gjson.GetBytes(body, "kinds.#").Int(); n != int64(len(charts.Kinds())) {
		t.Fatalf("expected %d kinds, got %d", len(charts.Kinds()), n)
	}
	if got := gjson.GetBytes(body, `kinds.#(name=="highlight-bar").params.0`).String(); got != "highlight" {
		t.Fatalf("expected highlight param, got %q", got)
	}
}

func TestGetChart(t *testing.T) {
	ts := newTestServer(t)
	status, body := get(t, ts, "/charts/highlight-bar?highlight=2020")
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", status, body)
	}
	if got := gjson.GetBytes(body, "encoding.color.condition.test.equal").Int(); got != 2020 {
		t.Fatalf("expected 2020 highlighted, got %d", got)
	}

	_, again := get(t, ts, "/charts/highlight-bar?highlight=2020")
	if string(again) != string(body) {
		t.Fatalf("repeated requests returned different documents")
	}

	status, pretty := get(t, ts, "/charts/highlight-bar?highlight=2020&pretty=1")
	if status != http.StatusOK || !strings.Contains(string(pretty), "\n") {
		t.Fatalf("expected pretty document, got %d", status)
	}
}

func TestChartErrors(t *testing.T) {
	ts := newTestServer(t)
	status, body := get(t, ts, "/charts/nope")
	if status != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", status)
	}
	if got := gjson.GetBytes(body, "code").String(); got != "UNKNOWN_CHART_KIND" {
		t.Fatalf("unexpected code %q", got)
	}

	status, body = get(t, ts, "/charts/dropdown-insurance?insurance=Nobody")
	if status != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", status)
	}
	if got := gjson.GetBytes(body, "metadata.param").String(); got != "insurance" {
		t.Fatalf("expected param metadata, got %s", body)
	}
}

func TestTables(t *testing.T) {
	ts := newTestServer(t)
	status, body := get(t, ts, "/tables")
	if status != http.StatusOK || gjson.GetBytes(body, "tables.#").Int() != 5 {
		t.Fatalf("expected 5 tables, got %d: %s", status, body)
	}
	status, body = get(t, ts, "/tables/"+aggregate.TableDischargesByYear)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if n := gjson.GetBytes(body, "rows.#").Int(); n != 4 {
		t.Fatalf("expected 4 rows, got %d", n)
	}
	if got := gjson.GetBytes(body, "columns.0.type").String(); got != "quantitative" {
		t.Fatalf("unexpected year type %q", got)
	}
	status, _ = get(t, ts, "/tables/missing")
	if status != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", status)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)
	status, body := get(t, ts, "/healthz")
	if status != http.StatusOK || gjson.GetBytes(body, "tables").Int() != 5 {
		t.Fatalf("unexpected health %d: %s", status, body)
	}
	get(t, ts, "/charts/bar-trendline")
	_, metrics := get(t, ts, "/metrics")
	if !strings.Contains(string(metrics), `sparcs_chart_builds_total{kind="bar-trendline",outcome="ok"} 1`) {
		t.Fatalf("build not counted:\n%s", metrics)
	}
}
