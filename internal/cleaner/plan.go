package cleaner

import (
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/starford/notionclean/internal/models"
	"github.com/starford/notionclean/internal/pathclean"
)

// DefaultSkip lists base-name patterns that are never carried over:
// Finder metadata and the "_all" duplicate that exports write next to
// every database table.
var DefaultSkip = []string{".DS_Store", "*_all.csv"}

// Task is one planned file operation.
type Task struct {
	Source string
	Dest   string
	Kind   models.Kind
}

// Classify returns how a file is carried over, by its extension.
func Classify(p string) models.Kind {
	switch filepath.Ext(p) {
	case ".md":
		return models.KindDocument
	case ".csv":
		return models.KindTable
	default:
		return models.KindAsset
	}
}

// NewTask builds the task for a source path.
func NewTask(source string) Task {
	return Task{
		Source: source,
		Dest:   pathclean.Clean(source),
		Kind:   Classify(source),
	}
}

// TableName is the name row pages of a converted table live under: the
// destination base name without its extension.
func TableName(dest string) string {
	return strings.TrimSuffix(path.Base(dest), path.Ext(dest))
}

// kindRank orders kinds the way the export is carried over; within a
// destination the task processed last wins.
func kindRank(k models.Kind) int {
	switch k {
	case models.KindTable:
		return 0
	case models.KindDocument:
		return 1
	default:
		return 2
	}
}

// resolve sorts tasks into processing order and drops every task whose
// destination is claimed again later in that order.
func resolve(tasks []Task) ([]Task, []models.Collision) {
	sort.SliceStable(tasks, func(i, j int) bool {
		ri, rj := kindRank(tasks[i].Kind), kindRank(tasks[j].Kind)
		if ri != rj {
			return ri < rj
		}
		return tasks[i].Source < tasks[j].Source
	})

	last := make(map[string]int, len(tasks))
	for i, t := range tasks {
		last[t.Dest] = i
	}

	losers := make(map[string][]string)
	out := make([]Task, 0, len(last))
	for i, t := range tasks {
		if last[t.Dest] != i {
			losers[t.Dest] = append(losers[t.Dest], t.Source)
			continue
		}
		out = append(out, t)
	}

	var collisions []models.Collision
	for dest, ls := range losers {
		collisions = append(collisions, models.Collision{
			Dest:   dest,
			Winner: tasks[last[dest]].Source,
			Losers: ls,
		})
	}
	sort.Slice(collisions, func(i, j int) bool { return collisions[i].Dest < collisions[j].Dest })
	return out, collisions
}

func matchesAny(patterns []string, rel string) bool {
	base := path.Base(rel)
	for _, p := range patterns {
		if ok, _ := path.Match(p, base); ok {
			return true
		}
		if ok, _ := path.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// validDest reports whether dest still names a file after cleaning.
func validDest(dest string) bool {
	if dest == "" || strings.HasSuffix(dest, "/") {
		return false
	}
	switch path.Base(dest) {
	case ".", "..":
		return false
	}
	return true
}
