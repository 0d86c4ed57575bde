package domain

import "time"

// Note is a short structured text record: a stable integer id plus
// ordered text fields. Notes are owned by the note store; the engine
// reads them and never mutates them.
type Note struct {
	// ID is the stable note identifier.
	ID int64

	// Fields are the ordered text fields.
	Fields []string

	// UpdatedAt is when the note was last modified.
	UpdatedAt time.Time
}

// FirstField returns the first field, or "" for an empty note.
// Conventionally the title or front of the note.
func (n Note) FirstField() string {
	if len(n.Fields) == 0 {
		return ""
	}
	return n.Fields[0]
}

// LastField returns the last field, or "" for an empty note.
// Conventionally the body or back of the note.
func (n Note) LastField() string {
	if len(n.Fields) == 0 {
		return ""
	}
	return n.Fields[len(n.Fields)-1]
}
