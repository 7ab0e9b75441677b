package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/starford/notecanvas/internal/apperr"
	"github.com/starford/notecanvas/internal/gateway"
	"github.com/starford/notecanvas/internal/pageservice"
	"github.com/starford/notecanvas/internal/testutil"
)

type recordedEvents struct {
	mu     sync.Mutex
	events []string
}

func (r *recordedEvents) PublishPageEvent(kind, documentID string, page int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf("%s %s/%d", kind, documentID, page))
}

func (r *recordedEvents) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

type env struct {
	svc    *pageservice.Service
	router http.Handler
	events *recordedEvents
}

// testEnv sets up a temp data dir, SQLite DB, service, and router. An empty
// token means auth is disabled.
func testEnv(t *testing.T, token string) *env {
	t.Helper()
	_, store := testutil.TestStore(t)
	svc := pageservice.NewService(store, testutil.TestDB(t), nil)
	events := &recordedEvents{}

	// Minimal SSE handler stub: writes headers and blocks until context done.
	sseHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-r.Context().Done()
	})
	return &env{
		svc:    svc,
		router: NewRouter(svc, token != "", token, sseHandler, events),
		events: events,
	}
}

func (e *env) do(t *testing.T, method, target string, body any, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, rd)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestPutAndGetPage(t *testing.T) {
	e := testEnv(t, "")
	content := testutil.Snapshot(t, 2)

	w := e.do(t, http.MethodPut, "/notes/doc/pages/1", PutPageRequest{Content: content}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("first put = %d, body = %s", w.Code, w.Body.String())
	}
	w = e.do(t, http.MethodPut, "/notes/doc/pages/1", PutPageRequest{Content: content}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("second put = %d", w.Code)
	}

	w = e.do(t, http.MethodGet, "/notes/doc/pages/1", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get = %d", w.Code)
	}
	var page PageDetail
	if err := json.NewDecoder(w.Body).Decode(&page); err != nil {
		t.Fatal(err)
	}
	if page.Content != content || page.Strokes != 2 || page.Number != 1 {
		t.Errorf("page = %+v", page)
	}
	if etag := w.Header().Get("ETag"); etag != `"`+page.Checksum+`"` {
		t.Errorf("ETag = %q", etag)
	}

	got := e.events.list()
	if len(got) != 2 || got[0] != "created doc/1" || got[1] != "updated doc/1" {
		t.Errorf("events = %v", got)
	}
}

func TestPutPage_IfMatch(t *testing.T) {
	e := testEnv(t, "")
	w := e.do(t, http.MethodPut, "/notes/doc/pages/2", PutPageRequest{Content: testutil.Snapshot(t, 1)}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d", w.Code)
	}
	etag := w.Header().Get("ETag")

	w = e.do(t, http.MethodPut, "/notes/doc/pages/2", PutPageRequest{Content: testutil.Snapshot(t, 2)},
		map[string]string{"If-Match": `"0000"`})
	if w.Code != http.StatusConflict {
		t.Errorf("stale If-Match = %d, want 409", w.Code)
	}

	w = e.do(t, http.MethodPut, "/notes/doc/pages/2", PutPageRequest{Content: testutil.Snapshot(t, 2)},
		map[string]string{"If-Match": etag})
	if w.Code != http.StatusOK {
		t.Errorf("matching If-Match = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestPageRequestValidation(t *testing.T) {
	e := testEnv(t, "")
	cases := []struct {
		name   string
		method string
		target string
		body   any
		want   int
	}{
		{"page zero", http.MethodGet, "/notes/doc/pages/0", nil, http.StatusBadRequest},
		{"page eleven", http.MethodPut, "/notes/doc/pages/11", PutPageRequest{}, http.StatusBadRequest},
		{"page not a number", http.MethodGet, "/notes/doc/pages/two", nil, http.StatusBadRequest},
		{"bad document id", http.MethodGet, "/notes/a.b/pages/1", nil, http.StatusBadRequest},
		{"corrupt content", http.MethodPut, "/notes/doc/pages/1", PutPageRequest{Content: "{oops"}, http.StatusBadRequest},
		{"missing page", http.MethodGet, "/notes/doc/pages/3", nil, http.StatusNotFound},
		{"search without query", http.MethodGet, "/search", nil, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if w := e.do(t, tc.method, tc.target, tc.body, nil); w.Code != tc.want {
				t.Errorf("status = %d, want %d, body = %s", w.Code, tc.want, w.Body.String())
			}
		})
	}
}

func TestListPagesAndDocuments(t *testing.T) {
	e := testEnv(t, "")
	for _, target := range []string{"/notes/doc/pages/1", "/notes/doc/pages/3"} {
		if w := e.do(t, http.MethodPut, target, PutPageRequest{Content: testutil.Snapshot(t, 1)}, nil); w.Code != http.StatusCreated {
			t.Fatalf("put %s = %d", target, w.Code)
		}
	}

	w := e.do(t, http.MethodGet, "/notes/doc/pages", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d", w.Code)
	}
	var list PageListResponse
	if err := json.NewDecoder(w.Body).Decode(&list); err != nil {
		t.Fatal(err)
	}
	if list.Total != 3 || len(list.Pages) != 2 {
		t.Errorf("list = %+v", list)
	}

	w = e.do(t, http.MethodGet, "/documents", nil, nil)
	var docs DocumentListResponse
	if err := json.NewDecoder(w.Body).Decode(&docs); err != nil {
		t.Fatal(err)
	}
	if len(docs.Documents) != 1 || docs.Documents[0].ID != "doc" || docs.Documents[0].Pages != 3 {
		t.Errorf("documents = %+v", docs)
	}
}

func TestTextAndSearch(t *testing.T) {
	e := testEnv(t, "")
	w := e.do(t, http.MethodPut, "/notes/doc/pages/2/text", PutTextRequest{Text: "eigenvalues of a matrix"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("put text = %d", w.Code)
	}

	w = e.do(t, http.MethodGet, "/notes/doc/pages/2/text", nil, nil)
	var text TextResponse
	if err := json.NewDecoder(w.Body).Decode(&text); err != nil {
		t.Fatal(err)
	}
	if text.Text != "eigenvalues of a matrix" {
		t.Errorf("text = %+v", text)
	}

	w = e.do(t, http.MethodGet, "/search?q=eigenvalues", nil, nil)
	var res SearchResponse
	if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
		t.Fatal(err)
	}
	if len(res.Results) != 1 || res.Results[0].Number != 2 {
		t.Errorf("results = %+v", res.Results)
	}

	if got := e.events.list(); len(got) != 1 || got[0] != "text doc/2" {
		t.Errorf("events = %v", got)
	}
}

func TestAuthMiddleware(t *testing.T) {
	e := testEnv(t, "secret123")

	if w := e.do(t, http.MethodGet, "/notes/doc/pages", nil, nil); w.Code != http.StatusUnauthorized {
		t.Errorf("missing token = %d, want 401", w.Code)
	}
	if w := e.do(t, http.MethodGet, "/notes/doc/pages", nil, map[string]string{"Authorization": "Bearer wrong"}); w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
	if w := e.do(t, http.MethodGet, "/notes/doc/pages", nil, map[string]string{"Authorization": "Bearer secret123"}); w.Code != http.StatusOK {
		t.Errorf("valid token = %d, want 200", w.Code)
	}
	if w := e.do(t, http.MethodGet, "/events", nil, nil); w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	e := testEnv(t, "tok")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE with valid token should not 401")
	}
}

func TestGatewayRoundTrip(t *testing.T) {
	e := testEnv(t, "tok")
	srv := httptest.NewServer(e.router)
	defer srv.Close()

	creds := gateway.NewCredentials("tok")
	gw := gateway.New(srv.URL, gateway.WithTokenSource(creds))
	ctx := context.Background()

	content, err := gw.LoadPage(ctx, "doc", 4)
	if err != nil || content != "" {
		t.Fatalf("missing page should load blank: %q, %v", content, err)
	}

	want := testutil.Snapshot(t, 3)
	if err := gw.SavePage(ctx, "doc", 4, want); err != nil {
		t.Fatalf("SavePage: %v", err)
	}
	if got, err := gw.LoadPage(ctx, "doc", 4); err != nil || got != want {
		t.Errorf("LoadPage = %q, %v", got, err)
	}
	if n, err := gw.PageCount(ctx, "doc"); err != nil || n != 4 {
		t.Errorf("PageCount = %d, %v", n, err)
	}
	if err := gw.SaveText(ctx, "doc", 4, "stokes theorem"); err != nil {
		t.Errorf("SaveText: %v", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, 8, 8))); err != nil {
		t.Fatal(err)
	}
	if err := gw.UploadImage(ctx, "doc", 4, buf.Bytes()); err != nil {
		t.Fatalf("UploadImage: %v", err)
	}
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/notes/doc/pages/4/image", nil)
	req.Header.Set("Authorization", "Bearer tok")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	img, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || !bytes.Equal(img, buf.Bytes()) {
		t.Errorf("image = %d, %d bytes", resp.StatusCode, len(img))
	}

	creds.Set("revoked")
	if _, err := gw.LoadPage(ctx, "doc", 4); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Errorf("wrong token: err = %v", err)
	}
}

func TestPutImage_RejectsNonPNG(t *testing.T) {
	e := testEnv(t, "")
	srv := httptest.NewServer(e.router)
	defer srv.Close()

	err := gateway.New(srv.URL).UploadImage(context.Background(), "doc", 1, []byte("not an image"))
	if err == nil {
		t.Fatal("non-png upload should fail")
	}
	if w := e.do(t, http.MethodGet, "/notes/doc/pages/1/image", nil, nil); w.Code != http.StatusNotFound {
		t.Errorf("image after rejected upload = %d, want 404", w.Code)
	}
}
