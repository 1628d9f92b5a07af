package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/starford/notionclean/internal/cleaner"
	"github.com/starford/notionclean/internal/cleanservice"
	"github.com/starford/notionclean/internal/testutil"
)

var sampleExport = map[string]string{
	"Home 1a.md":               "# Home\n[Tasks](Home%201a/Tasks%202b.csv) [Lost](Lost%209z.md)\n",
	"Home 1a/Tasks 2b.csv":     "Name,Done\nShip,yes\n",
	"Home 1a/Tasks 2b_all.csv": "Name,Done,Extra\nShip,yes,x\n",
}

// testEnv sets up a temp export, destination, manifest, service and router.
// An empty authToken means auth is disabled.
func testEnv(t *testing.T, authToken string) (*cleanservice.Service, http.Handler) {
	t.Helper()
	return testEnvWithSSE(t, authToken != "", authToken, nil)
}

func testEnvWithSSE(t *testing.T, authEnabled bool, token string, sseHandler http.Handler) (*cleanservice.Service, http.Handler) {
	t.Helper()
	_, src := testutil.TestTree(t, sampleExport)
	_, dst := testutil.TestTree(t, nil)
	db := testutil.TestManifest(t)

	c := cleaner.New(src, dst,
		cleaner.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		cleaner.WithManifest(db))
	svc := cleanservice.NewService(c, db)
	return svc, NewRouter(svc, authEnabled, token, sseHandler)
}

func postJSON(t *testing.T, router http.Handler, path string, v any) *httptest.ResponseRecorder {
	t.Helper()
	body, _ := json.Marshal(v)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestNormalize(t *testing.T) {
	_, router := testEnv(t, "")

	w := postJSON(t, router, "/normalize", map[string]any{
		"paths": []string{"My Page 12345/My file 12345.md", "Db 1.csv"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp NormalizeResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Paths) != 2 {
		t.Fatalf("paths = %+v", resp.Paths)
	}
	if resp.Paths[0].Dest != "My-Page/My-file.md" || resp.Paths[1].Dest != "Db.md" {
		t.Errorf("paths = %+v", resp.Paths)
	}
}

func TestNormalize_Validation(t *testing.T) {
	_, router := testEnv(t, "")

	if w := postJSON(t, router, "/normalize", map[string]any{"paths": []string{}}); w.Code != http.StatusBadRequest {
		t.Errorf("empty paths = %d, want 400", w.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/normalize", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad json = %d, want 400", w.Code)
	}
}

func TestRewrite(t *testing.T) {
	_, router := testEnv(t, "")

	w := postJSON(t, router, "/rewrite", RewriteRequest{Text: "See [notes](My%20Notes%2012ab.md) and [web](https://example.com)."})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp RewriteResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Text != "See [notes](My-Notes.md) and [web](https://example.com)." {
		t.Errorf("text = %q", resp.Text)
	}
}

func TestRunThenReports(t *testing.T) {
	_, router := testEnv(t, "")

	// No run yet.
	req := httptest.NewRequest(http.MethodGet, "/runs/latest", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("latest before run = %d, want 404", w.Code)
	}

	w = postJSON(t, router, "/runs", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("run status = %d, body = %s", w.Code, w.Body.String())
	}
	var sum RunSummary
	_ = json.Unmarshal(w.Body.Bytes(), &sum)
	if sum.Written != 2 || sum.RunID == "" {
		t.Errorf("summary = %+v", sum)
	}

	req = httptest.NewRequest(http.MethodGet, "/runs/latest", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("latest = %d", w.Code)
	}
	var rep RunReport
	_ = json.Unmarshal(w.Body.Bytes(), &rep)
	if rep.Run == nil || rep.Run.ID != sum.RunID || len(rep.Files) != 2 {
		t.Errorf("report = %+v", rep)
	}

	req = httptest.NewRequest(http.MethodGet, "/runs/"+sum.RunID, nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("get run = %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/runs/latest/dangling", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("dangling = %d", w.Code)
	}
	var dr DanglingResponse
	_ = json.Unmarshal(w.Body.Bytes(), &dr)
	// Table rows link to pages the export did not contain.
	if dr.RunID != sum.RunID || len(dr.Dangling) != 2 ||
		dr.Dangling[0].Target != "Lost.md" || dr.Dangling[1].Target != "Tasks/Ship.md" {
		t.Errorf("dangling = %+v", dr)
	}
}

func TestGetRun_NotFound(t *testing.T) {
	_, router := testEnv(t, "")

	req := httptest.NewRequest(http.MethodGet, "/runs/nope", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing run = %d, want 404", w.Code)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	body, _ := json.Marshal(RewriteRequest{Text: "x"})
	req := httptest.NewRequest(http.MethodPost, "/rewrite", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer secret123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("authed rewrite = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/runs/latest", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/runs/latest", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

// SSE endpoint auth tests.

// blockingSSE writes headers and blocks until the request context is done.
var blockingSSE = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	<-r.Context().Done()
})

func TestSSEEvents_AuthProtected(t *testing.T) {
	_, router := testEnvWithSSE(t, true, "secret", blockingSSE)

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	_, router := testEnvWithSSE(t, true, "tok", blockingSSE)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE with valid token should not 401")
	}
}

func TestSSEEvents_NotMountedWithoutHandler(t *testing.T) {
	_, router := testEnv(t, "")

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("events without handler = %d, want 404", w.Code)
	}
}
