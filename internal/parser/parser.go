// Package parser finds Markdown references in exported documents and
// retargets them at cleaned paths.
package parser

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/starford/notionclean/internal/pathclean"
)

var (
	// referenceRe matches [display](target); neither part may contain brackets.
	referenceRe = regexp.MustCompile(`\[([^\[\]]*)\]\(([^\[\]]*)\)`)
	schemeRe    = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.\-]*:`)
)

// Link is one [Text](Target) reference found in a document.
type Link struct {
	Text   string
	Target string
}

// Result holds what the cleaner records about a document.
type Result struct {
	Title string
	Links []Link
}

// RewriteLinks replaces the target of every reference on the line with its
// cleaned form. Display text and everything outside a reference are copied
// unchanged; a line without references is returned as is.
func RewriteLinks(line string) string {
	matches := referenceRe.FindAllStringSubmatchIndex(line, -1)
	if len(matches) == 0 {
		return line
	}
	var b strings.Builder
	b.Grow(len(line))
	last := 0
	for _, m := range matches {
		// m[4]:m[5] spans the target group.
		b.WriteString(line[last:m[4]])
		b.WriteString(retarget(line[m[4]:m[5]]))
		last = m[5]
	}
	b.WriteString(line[last:])
	return b.String()
}

// IsExternal reports whether target is an absolute URL such as
// https://example.com or mailto:someone@example.com. Export paths always
// carry a space before their identifier, so a scheme prefix on a target
// without whitespace is never an exported file.
func IsExternal(target string) bool {
	return schemeRe.MatchString(target) && !strings.ContainsFunc(target, unicode.IsSpace)
}

func retarget(target string) string {
	if IsExternal(target) {
		return target
	}
	return pathclean.Clean(target)
}

// Parse extracts the title and the local references of a document.
func Parse(data []byte) *Result {
	body := string(data)
	return &Result{
		Title: deriveTitle(body),
		Links: ExtractLinks(body),
	}
}

// ExtractLinks returns the references in body whose targets point inside the
// export, deduplicated by target in order of first appearance.
func ExtractLinks(body string) []Link {
	matches := referenceRe.FindAllStringSubmatch(body, -1)
	seen := make(map[string]struct{}, len(matches))
	var out []Link
	for _, m := range matches {
		target := strings.TrimSpace(m[2])
		if target == "" || IsExternal(target) {
			continue
		}
		if _, ok := seen[target]; ok {
			continue
		}
		seen[target] = struct{}{}
		out = append(out, Link{Text: m[1], Target: target})
	}
	return out
}

// deriveTitle returns the first H1 heading, or "" when there is none.
func deriveTitle(body string) string {
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}
