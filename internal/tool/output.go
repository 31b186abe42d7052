package tool

import (
	"strconv"
	"strings"
)

// DefaultMaxOutput caps tool output returned to the model, in bytes.
const DefaultMaxOutput = 16 * 1024

// truncateTail keeps the last limit bytes of s, cut at a line boundary when
// possible, and notes how much was dropped.
func truncateTail(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	cut := s[len(s)-limit:]
	if i := strings.IndexByte(cut, '\n'); i >= 0 && i < len(cut)-1 {
		cut = cut[i+1:]
	}
	return "[... " + strconv.Itoa(len(s)-len(cut)) + " bytes truncated ...]\n" + cut
}
