package service

import "time"

// Position is a point in a pull feed ordered by (time, id). Everything at or
// before it has been delivered; an empty ID covers every record at At.
type Position struct {
	At time.Time `json:"at"`
	ID string    `json:"id,omitempty"`
}

// beyond reports whether p lies strictly after q.
func (p Position) beyond(q Position) bool {
	if !p.At.Equal(q.At) {
		return p.At.After(q.At)
	}
	if p.ID == q.ID {
		return false
	}
	if p.ID == "" {
		return true
	}
	if q.ID == "" {
		return false
	}
	return p.ID > q.ID
}

// nextPosition picks the cursor handed back after a page. A full page
// resumes right after its last record. Otherwise the cursor is the newest
// record seen, held back to readAt-settle so a row stamped before the read
// but committed after it is returned by the next poll. The cursor never
// moves behind from.
func nextPosition(from *Position, last *Position, full bool, readAt time.Time, settle time.Duration) Position {
	var next Position
	if from != nil {
		next = *from
	}
	if last != nil && last.beyond(next) {
		next = *last
	}
	if full || settle <= 0 {
		return next
	}
	bound := Position{At: readAt.Add(-settle)}
	if !next.beyond(bound) {
		return next
	}
	if from != nil && from.beyond(bound) {
		return *from
	}
	return bound
}
