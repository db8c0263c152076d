package tailer

import (
	"bytes"
	"strings"

	"github.com/sszokoly/sbctail/internal/model"
)

// trailerMin is the minimum length of the dash run that ends a record.
const trailerMin = 5

// Framer cuts a continuous byte stream into discrete multi-line records.
// A record opens at a line starting with '[' (the bracketed timestamp
// marker) and closes at a trailer line of at least trailerMin dashes.
// Lines seen outside an open record are dropped.
//
// The framer is chunk-boundary agnostic: any partition of the same byte
// stream into chunks yields the identical record sequence.
type Framer struct {
	pending []byte   // trailing partial line carried across chunks
	lines   []string // accumulated lines of the open record
	open    bool
}

// NewFramer returns an empty Framer.
func NewFramer() *Framer {
	return &Framer{}
}

// Feed appends a chunk to the framer and returns the records completed by
// it, with the given source path attached. May return nil.
func (f *Framer) Feed(chunk []byte, source string) []model.RawRecord {
	f.pending = append(f.pending, chunk...)

	var records []model.RawRecord
	for {
		i := bytes.IndexByte(f.pending, '\n')
		if i < 0 {
			break
		}
		line := string(f.pending[:i])
		f.pending = f.pending[i+1:]
		if rec, ok := f.feedLine(line, source); ok {
			records = append(records, rec)
		}
	}
	return records
}

// feedLine advances the framing state machine by one complete line.
func (f *Framer) feedLine(line, source string) (model.RawRecord, bool) {
	line = strings.TrimRight(line, "\r")

	if isTrailer(line) {
		if !f.open {
			return model.RawRecord{}, false
		}
		rec := model.RawRecord{Lines: f.lines, Source: source}
		f.lines = nil
		f.open = false
		return rec, true
	}

	if !f.open {
		if !strings.HasPrefix(line, "[") {
			return model.RawRecord{}, false
		}
		f.open = true
	}
	f.lines = append(f.lines, line)
	return model.RawRecord{}, false
}

// Reset discards any buffered partial line and incomplete record. The
// reader calls it on every file switch: a record torn apart by rotation is
// dropped, never stitched together from two files.
func (f *Framer) Reset() {
	f.pending = nil
	f.lines = nil
	f.open = false
}

// isTrailer reports whether line is a run of at least trailerMin dashes.
func isTrailer(line string) bool {
	s := strings.TrimSpace(line)
	if len(s) < trailerMin {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] != '-' {
			return false
		}
	}
	return true
}
