// Package contextwindow keeps a token-budgeted rolling window of step outputs.
//
// Items survive pruning by importance, then recency. Retrieval favours high
// importance and recent items and never returns more tokens than the budget
// unless pruning already had to fall back to keeping the newest items.
package contextwindow

import (
	"cmp"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/Gurpartap/promptchain/chain"
)

const (
	// DefaultBudget is used when a window is created with a non-positive budget.
	DefaultBudget = 2000
	// fallbackKeep is how many of the newest items survive when dropping low
	// and medium items is not enough.
	fallbackKeep = 5
)

// Item is one step output held by the window.
type Item struct {
	Step       string
	Text       string
	Importance chain.Importance
	Tokens     int
	Tags       []string

	seq uint64
}

// Window is the context manager of a single run. It is not safe for
// concurrent use; chains add to it sequentially.
type Window struct {
	budget int
	items  []Item
	seq    uint64
}

var _ chain.ContextWindow = (*Window)(nil)

// New returns an empty window; a non-positive budget uses DefaultBudget.
func New(budget int) *Window {
	if budget <= 0 {
		budget = DefaultBudget
	}
	return &Window{budget: budget}
}

// EstimateTokens approximates tokens as one per four characters, minimum one.
func EstimateTokens(text string) int {
	return max(1, utf8.RuneCountInString(text)/4)
}

func (w *Window) Budget() int {
	return w.budget
}

// Items returns the retained items, oldest first.
func (w *Window) Items() []Item {
	out := make([]Item, len(w.items))
	for i, item := range w.items {
		out[i] = item
		out[i].Tags = slices.Clone(item.Tags)
	}
	return out
}

func (w *Window) TotalTokens() int {
	return sumTokens(w.items)
}

// Add appends a step output and prunes if the budget is exceeded.
func (w *Window) Add(step, text string, importance chain.Importance, tags []string) {
	w.seq++
	w.items = append(w.items, Item{
		Step:       step,
		Text:       text,
		Importance: importance,
		Tokens:     EstimateTokens(text),
		Tags:       slices.Clone(tags),
		seq:        w.seq,
	})
	w.prune()
}

func (w *Window) prune() {
	if sumTokens(w.items) <= w.budget {
		return
	}

	withoutLow := slices.DeleteFunc(slices.Clone(w.items), func(item Item) bool {
		return item.Importance.Rank() <= chain.ImportanceLow.Rank()
	})
	if sumTokens(withoutLow) <= w.budget {
		w.items = withoutLow
		return
	}

	highOnly := slices.DeleteFunc(withoutLow, func(item Item) bool {
		return item.Importance.Rank() <= chain.ImportanceMedium.Rank()
	})
	if sumTokens(highOnly) <= w.budget {
		w.items = highOnly
		return
	}

	if len(w.items) > fallbackKeep {
		w.items = slices.Clone(w.items[len(w.items)-fallbackKeep:])
	}
}

// RelevantContext selects items matching the filter, ordered by importance
// then recency, and concatenates those that fit in the budget. Items that
// would overflow are skipped rather than truncated.
func (w *Window) RelevantContext(filter chain.ContextFilter) string {
	candidates := make([]Item, 0, len(w.items))
	for _, item := range w.items {
		if matches(item, filter) {
			candidates = append(candidates, item)
		}
	}
	if len(candidates) == 0 {
		candidates = slices.Clone(w.items)
	}

	slices.SortStableFunc(candidates, func(a, b Item) int {
		if byRank := cmp.Compare(b.Importance.Rank(), a.Importance.Rank()); byRank != 0 {
			return byRank
		}
		return cmp.Compare(b.seq, a.seq)
	})

	parts := make([]string, 0, len(candidates))
	used := 0
	for _, item := range candidates {
		if used+item.Tokens > w.budget {
			continue
		}
		parts = append(parts, "["+item.Step+"]:\n"+item.Text+"\n")
		used += item.Tokens
	}
	return strings.Join(parts, "\n")
}

func matches(item Item, filter chain.ContextFilter) bool {
	if len(filter.Steps) > 0 && !slices.Contains(filter.Steps, item.Step) {
		return false
	}
	if len(filter.Tags) > 0 && !slices.ContainsFunc(item.Tags, func(tag string) bool {
		return slices.Contains(filter.Tags, tag)
	}) {
		return false
	}
	return true
}

func sumTokens(items []Item) int {
	total := 0
	for _, item := range items {
		total += item.Tokens
	}
	return total
}
