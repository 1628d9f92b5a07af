package cleaner

import (
	"strings"

	"github.com/starford/notionclean/internal/parser"
)

// LineTransform rewrites one line of a document.
type LineTransform func(line string) string

// DefaultTransforms are applied to every document line.
var DefaultTransforms = []LineTransform{parser.RewriteLinks}

// TransformLines splits data on "\n", runs every transform over each line
// in order and joins the result with "\n". Line endings are otherwise kept
// as they are, so "\r\n" input keeps its "\r".
func TransformLines(data []byte, transforms ...LineTransform) []byte {
	if len(transforms) == 0 {
		return data
	}
	lines := strings.Split(string(data), "\n")
	for i, line := range lines {
		for _, fn := range transforms {
			line = fn(line)
		}
		lines[i] = line
	}
	return []byte(strings.Join(lines, "\n"))
}
