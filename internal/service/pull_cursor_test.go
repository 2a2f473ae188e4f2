package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextPosition(t *testing.T) {
	readAt := time.Date(2026, 3, 2, 9, 0, 10, 0, time.UTC)
	at := func(sec int, id string) *Position {
		return &Position{At: readAt.Add(time.Duration(sec) * time.Second), ID: id}
	}

	cases := []struct {
		name   string
		from   *Position
		last   *Position
		full   bool
		settle time.Duration
		want   Position
	}{
		{name: "first poll of an empty feed", want: Position{}},
		{name: "nothing new keeps from", from: at(-5, "a"), want: *at(-5, "a")},
		{name: "resumes after newest record", from: at(-5, "a"), last: at(-1, "c"), want: *at(-1, "c")},
		{name: "full page ignores settle", from: at(-5, "a"), last: at(-1, "c"), full: true, settle: 3 * time.Second, want: *at(-1, "c")},
		{name: "settle holds cursor back", from: at(-5, "a"), last: at(-1, "c"), settle: 3 * time.Second, want: Position{At: readAt.Add(-3 * time.Second)}},
		{name: "settle never moves behind from", from: at(-2, "b"), last: at(-1, "c"), settle: 3 * time.Second, want: *at(-2, "b")},
		{name: "old records pass settle", from: at(-9, "a"), last: at(-8, "c"), settle: 3 * time.Second, want: *at(-8, "c")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := nextPosition(tc.from, tc.last, tc.full, readAt, tc.settle)
			assert.True(t, tc.want.At.Equal(got.At), "at: want %s got %s", tc.want.At, got.At)
			assert.Equal(t, tc.want.ID, got.ID)
		})
	}
}

func TestPosition_EmptyIDCoversInstant(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	whole := Position{At: now}
	assert.True(t, whole.beyond(Position{At: now, ID: "zz"}))
	assert.False(t, Position{At: now, ID: "zz"}.beyond(whole))
	assert.True(t, Position{At: now, ID: "b"}.beyond(Position{At: now, ID: "a"}))
	assert.True(t, Position{At: now.Add(time.Nanosecond)}.beyond(whole))
}
