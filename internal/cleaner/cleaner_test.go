package cleaner

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/starford/notionclean/internal/models"
	"github.com/starford/notionclean/internal/testutil"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

var exportFiles = map[string]string{
	"Workspace 1a/Page 2b.md": "# Page\n" +
		"See [Child](Page%202b/Child%203c.md) and [db](Page%202b/Tasks%204d.csv).\n" +
		"External [web](https://example.com).",
	"Workspace 1a/Page 2b/Child 3c.md":             "# Child\nback to [Page](../Page%202b.md)\n",
	"Workspace 1a/Page 2b/Tasks 4d.csv":            "Name,Status\nDo thing,Done\n",
	"Workspace 1a/Page 2b/Tasks 4d_all.csv":        "Name,Status,Hidden\nDo thing,Done,x\n",
	"Workspace 1a/Page 2b/Tasks 4d/Do thing 5e.md": "# Do thing\n",
	"Workspace 1a/Page 2b/diagram.png":             "\x89PNG\r\n",
	".DS_Store":                                    "junk",
}

func TestRun_CleansExport(t *testing.T) {
	_, src := testutil.TestTree(t, exportFiles)
	dstDir, dst := testutil.TestTree(t, nil)
	db := testutil.TestManifest(t)

	c := New(src, dst, WithLogger(quietLogger), WithManifest(db), WithWorkers(2))
	sum, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Written != 5 || sum.Skipped != 0 || sum.Failed != 0 {
		t.Errorf("summary = %+v", sum)
	}
	if sum.ByKind[models.KindDocument] != 3 || sum.ByKind[models.KindTable] != 1 || sum.ByKind[models.KindAsset] != 1 {
		t.Errorf("by kind = %v", sum.ByKind)
	}

	page := testutil.ReadFile(t, dstDir, "Workspace/Page.md")
	wantPage := "# Page\n" +
		"See [Child](Page/Child.md) and [db](Page/Tasks.md).\n" +
		"External [web](https://example.com)."
	if page != wantPage {
		t.Errorf("Page.md =\n%s\nwant\n%s", page, wantPage)
	}
	if got := testutil.ReadFile(t, dstDir, "Workspace/Page/Child.md"); got != "# Child\nback to [Page](../Page.md)\n" {
		t.Errorf("Child.md = %q", got)
	}
	wantTable := "| Name | Status |\n| --- | --- |\n| [Do thing](Tasks/Do-thing.md) | Done |\n"
	if got := testutil.ReadFile(t, dstDir, "Workspace/Page/Tasks.md"); got != wantTable {
		t.Errorf("Tasks.md = %q", got)
	}
	if got := testutil.ReadFile(t, dstDir, "Workspace/Page/Tasks/Do-thing.md"); got != "# Do thing\n" {
		t.Errorf("Do-thing.md = %q", got)
	}
	if got := testutil.ReadFile(t, dstDir, "Workspace/Page/diagram.png"); got != "\x89PNG\r\n" {
		t.Errorf("diagram.png = %q", got)
	}
	if _, err := os.Stat(filepath.Join(dstDir, ".DS_Store")); !os.IsNotExist(err) {
		t.Error(".DS_Store should be skipped")
	}

	files, err := db.Files(sum.RunID)
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	if len(files) != 5 {
		t.Errorf("manifest files = %d, want 5", len(files))
	}
	dangling, err := db.DanglingLinks(sum.RunID)
	if err != nil {
		t.Fatalf("DanglingLinks: %v", err)
	}
	if len(dangling) != 0 {
		t.Errorf("dangling = %+v", dangling)
	}
	run, err := db.GetRun(sum.RunID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Written != 5 || run.FinishedAt == nil {
		t.Errorf("run = %+v", run)
	}
}

func TestRun_CollisionLastWins(t *testing.T) {
	_, src := testutil.TestTree(t, map[string]string{
		"Tasks 1.csv": "Name\nA\n",
		"Tasks 1.md":  "first",
		"Tasks 2.md":  "second",
	})
	dstDir, dst := testutil.TestTree(t, nil)

	sum, err := New(src, dst, WithLogger(quietLogger)).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Written != 1 || sum.Skipped != 2 {
		t.Errorf("summary = %+v", sum)
	}
	if len(sum.Collisions) != 1 {
		t.Fatalf("collisions = %+v", sum.Collisions)
	}
	col := sum.Collisions[0]
	if col.Dest != "Tasks.md" || col.Winner != "Tasks 2.md" || len(col.Losers) != 2 ||
		col.Losers[0] != "Tasks 1.csv" || col.Losers[1] != "Tasks 1.md" {
		t.Errorf("collision = %+v", col)
	}
	if got := testutil.ReadFile(t, dstDir, "Tasks.md"); got != "second" {
		t.Errorf("Tasks.md = %q, want second", got)
	}
}

func TestRun_OneFailureDoesNotAbort(t *testing.T) {
	_, src := testutil.TestTree(t, map[string]string{
		"€€€":       "unnameable",
		"Good 1.md": "ok",
	})
	dstDir, dst := testutil.TestTree(t, nil)

	var mu sync.Mutex
	events := map[string]int{}
	c := New(src, dst, WithLogger(quietLogger), WithEventCallback(func(kind string, _ models.FileRecord) {
		mu.Lock()
		events[kind]++
		mu.Unlock()
	}))
	sum, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Written != 1 || sum.Failed != 1 || !sum.HasFailures() || sum.Total() != 2 {
		t.Errorf("summary = %+v", sum)
	}
	if got := testutil.ReadFile(t, dstDir, "Good.md"); got != "ok" {
		t.Errorf("Good.md = %q", got)
	}
	if events[EventCleaned] != 1 || events[EventFailed] != 1 {
		t.Errorf("events = %v", events)
	}
}

func TestRun_Cancelled(t *testing.T) {
	_, src := testutil.TestTree(t, map[string]string{"a 1.md": "a"})
	dstDir, dst := testutil.TestTree(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sum, err := New(src, dst, WithLogger(quietLogger)).Run(ctx)
	if err == nil {
		t.Fatal("expected context error")
	}
	if sum.Written != 0 {
		t.Errorf("written = %d, want 0", sum.Written)
	}
	if _, err := os.Stat(filepath.Join(dstDir, "a.md")); !os.IsNotExist(err) {
		t.Error("nothing should be written after cancellation")
	}
}

func TestProcessFileAndRemoveFile(t *testing.T) {
	_, src := testutil.TestTree(t, map[string]string{
		"Page 1a.md":     "[x](Page%201a/Sub%202b.md)",
		"Page 1a_all.csv": "x",
	})
	dstDir, dst := testutil.TestTree(t, nil)
	c := New(src, dst, WithLogger(quietLogger))

	rec, err := c.ProcessFile(context.Background(), "Page 1a.md")
	if err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}
	if rec.Dest != "Page.md" || rec.Status != models.StatusWritten || len(rec.Links) != 1 || rec.Links[0] != "Page/Sub.md" {
		t.Errorf("rec = %+v", rec)
	}
	if got := testutil.ReadFile(t, dstDir, "Page.md"); got != "[x](Page/Sub.md)" {
		t.Errorf("Page.md = %q", got)
	}

	skipped, err := c.ProcessFile(context.Background(), "Page 1a_all.csv")
	if err != nil || skipped.Status != models.StatusSkipped {
		t.Errorf("skipped = %+v, %v", skipped, err)
	}

	if _, err := c.RemoveFile("Page 1a.md"); err != nil {
		t.Fatalf("RemoveFile: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dstDir, "Page.md")); !os.IsNotExist(err) {
		t.Error("Page.md should be removed")
	}
	if _, err := c.RemoveFile("Page 1a.md"); err != nil {
		t.Errorf("second RemoveFile should be a no-op: %v", err)
	}
}
