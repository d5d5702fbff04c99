package stats

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/dshills/docstore-mcp/pkg/types"
)

// UserStatistic is one ranked row of a Table
type UserStatistic struct {
	Rank     int // 1-based position after sorting
	Username string
	Spoken   int // Documents where the user is a speaker
	Mentions int // Documents where the user is mentioned
}

// Table is a ranked statistics table with column widths for fixed-width rendering
type Table struct {
	Rows          []UserStatistic
	UsernameWidth int
	SpokenWidth   int
	MentionWidth  int
}

// Builder accumulates per-user counts. It is not safe for concurrent use.
type Builder struct {
	order []string
	users map[string]*UserStatistic
}

// NewBuilder creates an empty Builder
func NewBuilder() *Builder {
	return &Builder{users: make(map[string]*UserStatistic)}
}

// Add records count documents of the given kind for username.
// Kinds other than speaker and mention are ignored.
func (b *Builder) Add(username, kind string, count int) {
	var field func(*UserStatistic) *int
	switch kind {
	case types.KindSpeaker:
		field = func(u *UserStatistic) *int { return &u.Spoken }
	case types.KindMention:
		field = func(u *UserStatistic) *int { return &u.Mentions }
	default:
		return
	}

	u, ok := b.users[username]
	if !ok {
		u = &UserStatistic{Username: username}
		b.users[username] = u
		b.order = append(b.order, username)
	}
	*field(u) += count
}

// Len returns the number of distinct users added
func (b *Builder) Len() int {
	return len(b.order)
}

// Build ranks the accumulated users by spoken count then mention count,
// both descending. The sort is stable, so ties keep encounter order.
func (b *Builder) Build() *Table {
	rows := make([]UserStatistic, len(b.order))
	for i, name := range b.order {
		rows[i] = *b.users[name]
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Spoken != rows[j].Spoken {
			return rows[i].Spoken > rows[j].Spoken
		}
		return rows[i].Mentions > rows[j].Mentions
	})

	table := &Table{Rows: rows}
	for i := range rows {
		rows[i].Rank = i + 1
		table.UsernameWidth = max(table.UsernameWidth, len(rows[i].Username))
		table.SpokenWidth = max(table.SpokenWidth, len(strconv.Itoa(rows[i].Spoken)))
		table.MentionWidth = max(table.MentionWidth, len(strconv.Itoa(rows[i].Mentions)))
	}
	return table
}

// Lines renders each row as "rank. username  spoken  mentions" with aligned columns
func (t *Table) Lines() []string {
	rankWidth := len(strconv.Itoa(len(t.Rows)))
	lines := make([]string, len(t.Rows))
	for i, r := range t.Rows {
		lines[i] = fmt.Sprintf("%*d. %-*s  %*d  %*d",
			rankWidth, r.Rank,
			t.UsernameWidth, r.Username,
			t.SpokenWidth, r.Spoken,
			t.MentionWidth, r.Mentions)
	}
	return lines
}
