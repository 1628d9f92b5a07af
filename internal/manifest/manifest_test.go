package manifest

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/starford/notionclean/internal/apperr"
	"github.com/starford/notionclean/internal/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "manifest.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	for _, table := range []string{"runs", "files", "links", "collisions"} {
		var count int
		if err := db.conn.QueryRow(`SELECT count(*) FROM ` + table).Scan(&count); err != nil {
			t.Fatalf("%s table missing: %v", table, err)
		}
	}
}

func TestLatestRun_Empty(t *testing.T) {
	db := testDB(t)
	if _, err := db.LatestRun(); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestRunLifecycle(t *testing.T) {
	db := testDB(t)
	id, err := db.BeginRun("/export", "/clean")
	if err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	if id == "" {
		t.Fatal("empty run id")
	}

	run, err := db.GetRun(id)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.FinishedAt != nil {
		t.Error("unfinished run should have nil FinishedAt")
	}

	if err := db.RecordFile(id, models.FileRecord{
		Source: "Page 1a.md", Dest: "Page.md", Kind: models.KindDocument,
		Checksum: "abc", Status: models.StatusWritten, Title: "Page",
		Links: []string{"Page/Child.md", "Missing.md"},
	}); err != nil {
		t.Fatalf("RecordFile: %v", err)
	}
	if err := db.RecordFile(id, models.FileRecord{
		Source: "Page 1a/Child 2b.md", Dest: "Page/Child.md", Kind: models.KindDocument,
		Status: models.StatusWritten, Links: []string{"../Page.md"},
	}); err != nil {
		t.Fatalf("RecordFile: %v", err)
	}
	if err := db.RecordFile(id, models.FileRecord{
		Source: "broken.png", Dest: "broken.png", Kind: models.KindAsset,
		Status: models.StatusFailed, Error: "permission denied",
	}); err != nil {
		t.Fatalf("RecordFile: %v", err)
	}
	if err := db.FinishRun(id, 2, 0, 1); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	latest, err := db.LatestRun()
	if err != nil {
		t.Fatalf("LatestRun: %v", err)
	}
	if latest.ID != id || latest.Written != 2 || latest.Failed != 1 || latest.FinishedAt == nil {
		t.Errorf("latest = %+v", latest)
	}

	files, err := db.Files(id)
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	if len(files) != 3 || files[0].Source != "Page 1a.md" || files[2].Error != "permission denied" {
		t.Errorf("files = %+v", files)
	}

	dangling, err := db.DanglingLinks(id)
	if err != nil {
		t.Fatalf("DanglingLinks: %v", err)
	}
	if len(dangling) != 1 || dangling[0].Source != "Page.md" || dangling[0].Target != "Missing.md" {
		t.Errorf("dangling = %+v", dangling)
	}
}

func TestRecordFile_ReplacesOnRerecord(t *testing.T) {
	db := testDB(t)
	id, _ := db.BeginRun("a", "b")
	rec := models.FileRecord{Source: "x.md", Dest: "x.md", Kind: models.KindDocument, Status: models.StatusWritten, Links: []string{"gone.md"}}
	_ = db.RecordFile(id, rec)
	rec.Links = nil
	if err := db.RecordFile(id, rec); err != nil {
		t.Fatalf("RecordFile: %v", err)
	}
	dangling, _ := db.DanglingLinks(id)
	if len(dangling) != 0 {
		t.Errorf("stale links kept: %v", dangling)
	}
}

func TestRecordFile_RerecordKeepsOnlyNewLinks(t *testing.T) {
	db := testDB(t)
	id, _ := db.BeginRun("a", "b")
	rec := models.FileRecord{Source: "x 1.md", Dest: "x.md", Kind: models.KindDocument, Status: models.StatusWritten, Links: []string{"old-a.md", "old-b.md"}}
	if err := db.RecordFile(id, rec); err != nil {
		t.Fatalf("RecordFile: %v", err)
	}
	rec.Links = []string{"new.md"}
	if err := db.RecordFile(id, rec); err != nil {
		t.Fatalf("RecordFile: %v", err)
	}

	dangling, err := db.DanglingLinks(id)
	if err != nil {
		t.Fatalf("DanglingLinks: %v", err)
	}
	if len(dangling) != 1 || dangling[0].Source != "x.md" || dangling[0].Target != "new.md" {
		t.Errorf("dangling = %+v, want only x.md -> new.md", dangling)
	}
}

func TestRecordFile_ClearLinksFailureRollsBack(t *testing.T) {
	db := testDB(t)
	id, _ := db.BeginRun("a", "b")
	if _, err := db.conn.Exec(`DROP TABLE links`); err != nil {
		t.Fatalf("drop links: %v", err)
	}
	rec := models.FileRecord{Source: "x 1.md", Dest: "x.md", Kind: models.KindDocument, Status: models.StatusWritten, Links: []string{"y.md"}}
	if err := db.RecordFile(id, rec); err == nil {
		t.Fatal("RecordFile succeeded without a links table")
	}
	files, err := db.Files(id)
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	if len(files) != 0 {
		t.Errorf("files = %+v, want the failed record rolled back", files)
	}
}

func TestCollisions(t *testing.T) {
	db := testDB(t)
	id, _ := db.BeginRun("a", "b")
	in := []models.Collision{{Dest: "Tasks.md", Winner: "Tasks 1.md", Losers: []string{"Tasks 1.csv"}}}
	if err := db.RecordCollisions(id, in); err != nil {
		t.Fatalf("RecordCollisions: %v", err)
	}
	got, err := db.Collisions(id)
	if err != nil {
		t.Fatalf("Collisions: %v", err)
	}
	if len(got) != 1 || got[0].Winner != "Tasks 1.md" || len(got[0].Losers) != 1 || got[0].Losers[0] != "Tasks 1.csv" {
		t.Errorf("collisions = %+v", got)
	}
}

func TestFinishRun_Unknown(t *testing.T) {
	db := testDB(t)
	if err := db.FinishRun("nope", 0, 0, 0); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestResolve(t *testing.T) {
	cases := []struct{ dest, target, want string }{
		{"Page.md", "Page/Child.md", "Page/Child.md"},
		{"Page/Child.md", "../Page.md", "Page.md"},
		{"a/b/c.md", "/x/y.md", "x/y.md"},
		{"a/b.md", "./c.md", "a/c.md"},
	}
	for _, tc := range cases {
		if got := Resolve(tc.dest, tc.target); got != tc.want {
			t.Errorf("Resolve(%q, %q) = %q, want %q", tc.dest, tc.target, got, tc.want)
		}
	}
}
