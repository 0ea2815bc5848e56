// Package memory defines the memory collaborator the planner reads from and
// writes plan summaries to, with an in-process and a SQLite implementation.
package memory

import (
	"context"
	"sort"
	"strings"
	"time"
	"unicode"
)

// Entry is one remembered item. Metadata is free-form; the planner looks for
// a "topic" key.
type Entry struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"created_at"`
}

// Topic returns metadata["topic"] when it is a non-empty string.
func (e Entry) Topic() string {
	if e.Metadata == nil {
		return ""
	}
	s, _ := e.Metadata["topic"].(string)
	return strings.TrimSpace(s)
}

type Store interface {
	Record(ctx context.Context, content string, metadata map[string]any) (Entry, error)
	// Recent returns up to n entries, oldest first and newest last.
	Recent(ctx context.Context, n int) ([]Entry, error)
	// Similar returns up to k entries ranked by relevance to query.
	Similar(ctx context.Context, query string, k int) ([]Entry, error)
}

// rankSimilar scores entries by the share of query tokens present in content
// and metadata values. Ties keep the newer entry first. Zero-score entries
// are dropped.
func rankSimilar(entries []Entry, query string, k int) []Entry {
	if k <= 0 {
		return nil
	}
	qTokens := tokenize(query)
	if len(qTokens) == 0 {
		return nil
	}

	type scored struct {
		entry Entry
		score float64
		index int
	}
	var ranked []scored
	for i, e := range entries {
		have := tokenize(e.Content + " " + metadataText(e.Metadata))
		hits := 0
		for tok := range qTokens {
			if have[tok] {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		ranked = append(ranked, scored{entry: e, score: float64(hits) / float64(len(qTokens)), index: i})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].index > ranked[j].index
	})

	if len(ranked) > k {
		ranked = ranked[:k]
	}
	out := make([]Entry, len(ranked))
	for i, r := range ranked {
		out[i] = r.entry
	}
	return out
}

func tokenize(s string) map[string]bool {
	tokens := make(map[string]bool)
	for _, f := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len(f) > 1 {
			tokens[f] = true
		}
	}
	return tokens
}

func metadataText(md map[string]any) string {
	var sb strings.Builder
	for _, v := range md {
		if s, ok := v.(string); ok {
			sb.WriteString(s)
			sb.WriteByte(' ')
		}
	}
	return sb.String()
}

func lastN(entries []Entry, n int) []Entry {
	if n <= 0 {
		return nil
	}
	if n > len(entries) {
		n = len(entries)
	}
	out := make([]Entry, n)
	copy(out, entries[len(entries)-n:])
	return out
}
