package agent

import "github.com/gosuda/helpdesk/internal/domain"

// windowHistory keeps at most limit trailing turns. The window always starts
// at a user turn so an assistant tool call is never separated from its
// results. If the current exchange alone exceeds limit, it is kept whole.
// A non-positive limit disables trimming.
func windowHistory(turns []domain.Turn, limit int) []domain.Turn {
	if limit <= 0 || len(turns) <= limit {
		return turns
	}

	start := len(turns) - limit
	for i := start; i < len(turns); i++ {
		if turns[i].Role == domain.RoleUser {
			return turns[i:]
		}
	}

	for i := start - 1; i >= 0; i-- {
		if turns[i].Role == domain.RoleUser {
			return turns[i:]
		}
	}
	return turns
}
