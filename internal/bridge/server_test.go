package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/colegioprep/prepsync/internal/engine"
	"github.com/colegioprep/prepsync/internal/record"
	"github.com/colegioprep/prepsync/internal/store"
)

// stubGateway is a remote that always reports absent and accepts persists.
type stubGateway struct {
	mu        sync.Mutex
	persisted []string
}

func (g *stubGateway) Fetch(ctx context.Context, key string) (*record.LessonRecord, error) {
	return nil, nil
}

func (g *stubGateway) Persist(ctx context.Context, rec *record.LessonRecord) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.persisted = append(g.persisted, rec.Key)
	return nil
}

func setupServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.InitSchema(); err != nil {
		t.Fatalf("failed to initialize schema: %v", err)
	}

	logger := log.New(io.Discard, "", 0)
	eng := engine.New(st, &stubGateway{}, logger)
	srv := NewServer(eng, &Config{Logger: logger})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s failed: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decoding %s response: %v", url, err)
		}
	}
	return resp
}

func postJSON(t *testing.T, url string, body any, out any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s failed: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decoding %s response: %v", url, err)
		}
	}
	return resp
}

func TestPlanNavigatesAndReturnsCanonicalTriple(t *testing.T) {
	_, ts := setupServer(t)

	var nav engine.Navigation
	resp := getJSON(t, ts.URL+"/api/plan?term=1&class=Infantil+3&week=2025-01-30", &nav)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	// Thursday normalizes to Monday; the triple comes back canonical.
	if nav.WeekStart != "2025-01-27" {
		t.Errorf("WeekStart = %q, want 2025-01-27", nav.WeekStart)
	}
	if nav.Key != "1_2025-01-27_infantil-3" {
		t.Errorf("Key = %q", nav.Key)
	}
	if len(nav.Record.Days) != record.DayCount {
		t.Errorf("record has %d days", len(nav.Record.Days))
	}
}

func TestPlanRejectsBadWeek(t *testing.T) {
	_, ts := setupServer(t)

	resp := getJSON(t, ts.URL+"/api/plan?term=1&class=x&week=30-01-2025", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestEditAndSaveFlow(t *testing.T) {
	srv, ts := setupServer(t)

	getJSON(t, ts.URL+"/api/plan?term=1&class=Infantil+3&week=2025-01-27", nil)

	var editResp struct {
		OK    bool `json:"ok"`
		Dirty int  `json:"dirty"`
	}
	resp := postJSON(t, ts.URL+"/api/plan/edit",
		map[string]any{"row": 2, "field": "content", "text": "Fractions"}, &editResp)
	if resp.StatusCode != http.StatusOK || !editResp.OK {
		t.Fatalf("edit failed: status=%d ok=%v", resp.StatusCode, editResp.OK)
	}
	if editResp.Dirty != 1 {
		t.Errorf("dirty = %d, want 1", editResp.Dirty)
	}

	var saveResp struct {
		OK  bool   `json:"ok"`
		Key string `json:"key"`
	}
	resp = postJSON(t, ts.URL+"/api/plan/save", map[string]any{}, &saveResp)
	if resp.StatusCode != http.StatusOK || !saveResp.OK {
		t.Fatalf("save failed: status=%d ok=%v", resp.StatusCode, saveResp.OK)
	}
	if saveResp.Key != "1_2025-01-27_infantil-3" {
		t.Errorf("saved key = %q", saveResp.Key)
	}

	rec := srv.eng.Active()
	if rec.Days[2].ContentText != "Fractions" {
		t.Errorf("active record content = %q", rec.Days[2].ContentText)
	}
}

func TestEditUnknownFieldIs422(t *testing.T) {
	_, ts := setupServer(t)

	getJSON(t, ts.URL+"/api/plan?term=1&class=x&week=2025-01-27", nil)

	resp := postJSON(t, ts.URL+"/api/plan/edit",
		map[string]any{"row": 9, "field": "content", "text": "x"}, nil)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", resp.StatusCode)
	}
}

func TestWeeksPicker(t *testing.T) {
	_, ts := setupServer(t)

	var out struct {
		Year  int `json:"year"`
		Month int `json:"month"`
		Weeks []struct {
			WeekStart string `json:"weekStart"`
			Label     string `json:"label"`
		} `json:"weeks"`
	}
	resp := getJSON(t, ts.URL+"/api/weeks?year=2025&month=1", &out)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if len(out.Weeks) != 5 {
		t.Fatalf("got %d weeks for January 2025, want 5", len(out.Weeks))
	}
	if out.Weeks[0].WeekStart != "2024-12-30" {
		t.Errorf("first week = %q, want 2024-12-30", out.Weeks[0].WeekStart)
	}
	if out.Weeks[4].Label != "(27 a 31 de Janeiro)" {
		t.Errorf("last label = %q", out.Weeks[4].Label)
	}

	resp = getJSON(t, ts.URL+"/api/weeks?year=2025&month=13", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("month=13 status = %d, want 400", resp.StatusCode)
	}
}

func TestShareLink(t *testing.T) {
	_, ts := setupServer(t)

	// Before navigation there is nothing to share.
	resp := getJSON(t, ts.URL+"/api/share?base=https://example.org/prep/", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", resp.StatusCode)
	}

	getJSON(t, ts.URL+"/api/plan?term=2&class=Infantil+3&week=2025-01-27", nil)

	var out struct {
		Link string `json:"link"`
	}
	resp = getJSON(t, ts.URL+"/api/share?base=https://example.org/prep/", &out)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	want := "https://example.org/prep/view.html?class=Infantil+3&term=2&week=2025-01-27"
	if out.Link != want {
		t.Errorf("link = %q, want %q", out.Link, want)
	}
}

func TestHealth(t *testing.T) {
	_, ts := setupServer(t)

	var out struct {
		Status  string `json:"status"`
		Clients int    `json:"clients"`
	}
	resp := getJSON(t, ts.URL+"/health", &out)
	if resp.StatusCode != http.StatusOK || out.Status != "ok" {
		t.Errorf("health = %d %q", resp.StatusCode, out.Status)
	}
}
