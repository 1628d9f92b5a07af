package cleaner

import (
	"strings"
	"testing"

	"github.com/starford/notionclean/internal/models"
)

func TestClassify(t *testing.T) {
	cases := map[string]models.Kind{
		"a/Page 1.md":  models.KindDocument,
		"Table 2.csv":  models.KindTable,
		"img.png":      models.KindAsset,
		"README":       models.KindAsset,
		"notes.md.bak": models.KindAsset,
	}
	for in, want := range cases {
		if got := Classify(in); got != want {
			t.Errorf("Classify(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestResolveOrder(t *testing.T) {
	tasks := []Task{
		NewTask("z.png"),
		NewTask("b 1.md"),
		NewTask("a 1.csv"),
		NewTask("c 2.md"),
	}
	out, collisions := resolve(tasks)
	if len(collisions) != 0 {
		t.Fatalf("unexpected collisions %+v", collisions)
	}
	var got []string
	for _, task := range out {
		got = append(got, task.Source)
	}
	if strings.Join(got, ",") != "a 1.csv,b 1.md,c 2.md,z.png" {
		t.Errorf("order = %v", got)
	}
}

func TestMatchesAny(t *testing.T) {
	if !matchesAny(DefaultSkip, "deep/dir/.DS_Store") {
		t.Error(".DS_Store should match")
	}
	if !matchesAny(DefaultSkip, "Tasks 1a_all.csv") {
		t.Error("_all.csv should match")
	}
	if matchesAny(DefaultSkip, "Tasks 1a.csv") {
		t.Error("plain csv should not match")
	}
	if !matchesAny([]string{"private/*"}, "private/x.md") {
		t.Error("full-path pattern should match")
	}
}

func TestValidDest(t *testing.T) {
	for in, want := range map[string]bool{"": false, "a/": false, "a/..": false, "a.md": true, ".md": true} {
		if got := validDest(in); got != want {
			t.Errorf("validDest(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestTableName(t *testing.T) {
	if got := TableName("Workspace/Page/Tasks.md"); got != "Tasks" {
		t.Errorf("TableName = %q", got)
	}
}

func TestTransformLines(t *testing.T) {
	upper := func(s string) string { return strings.ToUpper(s) }
	suffix := func(s string) string { return s + "!" }
	got := string(TransformLines([]byte("a\r\nb\n"), upper, suffix))
	if got != "A\r!\nB!\n!" {
		t.Errorf("got %q", got)
	}
	if got := string(TransformLines([]byte("same"))); got != "same" {
		t.Errorf("no transforms: %q", got)
	}
}

func TestTransformLines_Links(t *testing.T) {
	in := "# T\n\n[a](A 1.md) text [b](B%202.csv)\n"
	got := string(TransformLines([]byte(in), DefaultTransforms...))
	if got != "# T\n\n[a](A.md) text [b](B.md)\n" {
		t.Errorf("got %q", got)
	}
}
