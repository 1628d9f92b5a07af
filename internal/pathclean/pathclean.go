// Package pathclean converts paths from a Notion-style export into portable,
// dash-separated paths with the export identifiers removed.
//
// Export tools append an opaque identifier to every page and database name,
// separated by a single space ("My Page 834fa2b19c7d4e2e"). The identifier is
// always the last space-separated token of a segment, so the last space before
// a "/" or the end of the path is kept intact until the identifiers have been
// cut off, and only then folded into a dash with everything else.
package pathclean

import (
	"regexp"
	"strings"
	"unicode"
)

const (
	extMarkdown = ".md"
	extTable    = ".csv"
)

var (
	illegalRe = regexp.MustCompile(`[^a-zA-Z0-9\-/.]`)
	dashRunRe = regexp.MustCompile(`-{2,}`)
)

// Clean returns the portable form of an exported path. It never fails and
// the same input always yields the same output.
func Clean(path string) string {
	p := strings.TrimSpace(path)
	p = strings.ReplaceAll(p, "%20", " ")
	p = foldInnerSpaces(p)
	p = stripDocumentID(p)
	p = stripSegmentIDs(p)
	p = strings.ReplaceAll(p, " ", "-")
	p = illegalRe.ReplaceAllString(p, "")
	return dashRunRe.ReplaceAllString(p, "-")
}

// foldInnerSpaces turns every space into a dash except boundary whitespace:
// whitespace whose following run of non-space runes reaches a "/" or the end
// of the path. Boundary whitespace becomes a plain space.
func foldInnerSpaces(p string) string {
	runes := []rune(p)
	out := make([]rune, len(runes))
	// reaches reports whether the non-space run starting right after the
	// current position ends at a "/" or at the end of the path.
	reaches := true
	for i := len(runes) - 1; i >= 0; i-- {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			if reaches {
				out[i] = ' '
			} else if r == ' ' {
				out[i] = '-'
			} else {
				out[i] = r
			}
			reaches = false
		case r == '/':
			out[i] = r
			reaches = true
		default:
			out[i] = r
		}
	}
	return string(out)
}

// stripDocumentID removes the "<space><id>" token in front of a .md or .csv
// extension of the final segment, and maps .csv to .md. Any other extension
// is left alone.
func stripDocumentID(p string) string {
	var ext string
	switch {
	case strings.HasSuffix(p, extMarkdown):
		ext = extMarkdown
	case strings.HasSuffix(p, extTable):
		ext = extTable
	default:
		return p
	}

	stem := strings.TrimSuffix(p, ext)
	if i := strings.LastIndexByte(stem, ' '); i >= 0 {
		id := stem[i+1:]
		if !strings.Contains(id, "/") && !strings.ContainsFunc(id, unicode.IsSpace) {
			stem = stem[:i]
		}
	}
	return stem + extMarkdown
}

// stripSegmentIDs cuts "<name> <id>" down to "<name>" for every segment that
// is followed by a "/". The final segment is never touched here.
func stripSegmentIDs(p string) string {
	if !strings.Contains(p, "/") {
		return p
	}
	segs := strings.Split(p, "/")
	for i := 0; i < len(segs)-1; i++ {
		seg := segs[i]
		if len(seg) < 3 {
			continue
		}
		// Both the name and the id must be non-empty.
		if k := strings.LastIndexByte(seg[:len(seg)-1], ' '); k >= 1 {
			segs[i] = seg[:k]
		}
	}
	return strings.Join(segs, "/")
}
