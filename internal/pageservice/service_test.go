package pageservice

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"testing"

	"github.com/starford/notecanvas/internal/apperr"
	"github.com/starford/notecanvas/internal/checksum"
	"github.com/starford/notecanvas/internal/models"
	"github.com/starford/notecanvas/internal/testutil"
)

func newService(t *testing.T) *Service {
	t.Helper()
	_, store := testutil.TestStore(t)
	return NewService(store, testutil.TestDB(t), nil)
}

func TestPutAndGetPage(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	content := testutil.Snapshot(t, 2)

	detail, created, err := svc.PutPage(ctx, "doc", 1, []byte(content), "")
	if err != nil {
		t.Fatalf("PutPage: %v", err)
	}
	if !created {
		t.Error("first put should create the page")
	}
	if detail.Strokes != 2 || detail.Checksum != checksum.String(content) {
		t.Errorf("detail = %+v", detail)
	}

	got, err := svc.GetPage(ctx, "doc", 1)
	if err != nil {
		t.Fatalf("GetPage: %v", err)
	}
	if got.Content != content {
		t.Errorf("content = %q", got.Content)
	}

	_, created, err = svc.PutPage(ctx, "doc", 1, []byte(testutil.Snapshot(t, 1)), "")
	if err != nil {
		t.Fatalf("second PutPage: %v", err)
	}
	if created {
		t.Error("overwrite reported as created")
	}
}

func TestGetPage_Missing(t *testing.T) {
	svc := newService(t)
	_, err := svc.GetPage(context.Background(), "doc", 4)
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestPutPage_Validation(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	if _, _, err := svc.PutPage(ctx, "../etc", 1, nil, ""); !errors.Is(err, ErrInvalidDocument) {
		t.Errorf("bad id: err = %v", err)
	}
	if _, _, err := svc.PutPage(ctx, "doc", 11, nil, ""); !errors.Is(err, apperr.ErrInvalidPage) {
		t.Errorf("page 11: err = %v", err)
	}
	if _, _, err := svc.PutPage(ctx, "doc", 1, []byte("{not json"), ""); !errors.Is(err, apperr.ErrCorruptSnapshot) {
		t.Errorf("corrupt: err = %v", err)
	}
	if _, _, err := svc.PutPage(ctx, "doc", 1, nil, ""); err != nil {
		t.Errorf("empty content is a blank page: %v", err)
	}
}

func TestPutPage_IfMatch(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	if _, _, err := svc.PutPage(ctx, "doc", 1, []byte(testutil.Snapshot(t, 1)), "deadbeef"); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("If-Match on missing page: err = %v", err)
	}

	first, _, err := svc.PutPage(ctx, "doc", 1, []byte(testutil.Snapshot(t, 1)), "")
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := svc.PutPage(ctx, "doc", 1, []byte(testutil.Snapshot(t, 2)), "stale"); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("stale If-Match: err = %v", err)
	}
	if _, _, err := svc.PutPage(ctx, "doc", 1, []byte(testutil.Snapshot(t, 2)), first.Checksum); err != nil {
		t.Errorf("matching If-Match: %v", err)
	}
}

func TestListPagesAndDocuments(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	for _, n := range []int{1, 4} {
		if _, _, err := svc.PutPage(ctx, "doc", n, []byte(testutil.Snapshot(t, n)), ""); err != nil {
			t.Fatal(err)
		}
	}
	if _, _, err := svc.PutPage(ctx, "other", 2, nil, ""); err != nil {
		t.Fatal(err)
	}

	list, err := svc.ListPages(ctx, "doc")
	if err != nil {
		t.Fatalf("ListPages: %v", err)
	}
	if list.Total != 4 || len(list.Pages) != 2 {
		t.Fatalf("list = %+v", list)
	}
	if list.Pages[1].Number != 4 || list.Pages[1].Strokes != 4 {
		t.Errorf("page 4 item = %+v", list.Pages[1])
	}

	empty, err := svc.ListPages(ctx, "unknown")
	if err != nil || empty.Total != 0 || len(empty.Pages) != 0 {
		t.Errorf("unknown document: %+v, %v", empty, err)
	}

	docs, err := svc.Documents(ctx)
	if err != nil {
		t.Fatalf("Documents: %v", err)
	}
	if len(docs) != 2 {
		t.Errorf("documents = %+v", docs)
	}
}

func TestTextAndSearch(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	if err := svc.SetText(ctx, "doc", 2, "  integrals by parts \n"); err != nil {
		t.Fatalf("SetText: %v", err)
	}
	text, err := svc.GetText(ctx, "doc", 2)
	if err != nil || text != "integrals by parts" {
		t.Errorf("GetText = %q, %v", text, err)
	}

	hits, err := svc.Search(ctx, "integrals", 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].DocumentID != "doc" || hits[0].Number != 2 {
		t.Errorf("hits = %+v", hits)
	}

	if _, _, err := svc.PutPage(ctx, "doc", 2, []byte(testutil.Snapshot(t, 1)), ""); err != nil {
		t.Fatal(err)
	}
	detail, err := svc.GetPage(ctx, "doc", 2)
	if err != nil {
		t.Fatal(err)
	}
	if detail.Text != "integrals by parts" {
		t.Errorf("detail text = %q", detail.Text)
	}
}

func TestImageRoundTrip(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatal(err)
	}
	if err := svc.PutImage(ctx, "doc", 3, buf.Bytes()); err != nil {
		t.Fatalf("PutImage: %v", err)
	}
	got, err := svc.GetImage(ctx, "doc", 3)
	if err != nil || !bytes.Equal(got, buf.Bytes()) {
		t.Errorf("GetImage = %d bytes, %v", len(got), err)
	}

	if err := svc.PutImage(ctx, "doc", 3, []byte("GIF89a")); !errors.Is(err, ErrInvalidImage) {
		t.Errorf("non-png: err = %v", err)
	}
	if _, err := svc.GetImage(ctx, "doc", 5); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing image: err = %v", err)
	}

	list, err := svc.ListPages(ctx, "doc")
	if err != nil || len(list.Pages) != 0 {
		t.Errorf("exports must not be listed as pages: %+v, %v", list, err)
	}
}

func TestRenderPage(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	if _, _, err := svc.PutPage(ctx, "doc", 1, []byte(testutil.Snapshot(t, 3)), ""); err != nil {
		t.Fatal(err)
	}

	data, err := svc.RenderPage(ctx, "doc", 1)
	if err != nil {
		t.Fatalf("RenderPage: %v", err)
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("rendered page is not a png: %v", err)
	}
	if cfg.Width != 100 || cfg.Height != 100 {
		t.Errorf("size = %dx%d, want 100x100", cfg.Width, cfg.Height)
	}
	stored, err := svc.GetImage(ctx, "doc", 1)
	if err != nil || !bytes.Equal(stored, data) {
		t.Errorf("rendered image not stored: %v", err)
	}

	if _, err := svc.RenderPage(ctx, "doc", 2); err != nil {
		t.Errorf("blank page should render: %v", err)
	}
}

func TestOversizedCanvasRejected(t *testing.T) {
	_, store := testutil.TestStore(t)
	svc := NewService(store, testutil.TestDB(t), nil)
	ctx := context.Background()
	huge := `{"version":1,"width":3000000000,"height":3000000000,"background":"#ffffffff","strokes":[]}`

	if _, _, err := svc.PutPage(ctx, "doc", 1, []byte(huge), ""); !errors.Is(err, apperr.ErrCorruptSnapshot) {
		t.Errorf("PutPage: err = %v, want ErrCorruptSnapshot", err)
	}

	// A file written behind the service's back must not crash rendering.
	if err := store.Write(models.PagePath("doc", 2), []byte(huge)); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.RenderPage(ctx, "doc", 2); !errors.Is(err, apperr.ErrCorruptSnapshot) {
		t.Errorf("RenderPage: err = %v, want ErrCorruptSnapshot", err)
	}
}
