package reader

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/spf13/afero"
	"github.com/sszokoly/sbctail/internal/locator"
	"github.com/sszokoly/sbctail/internal/model"
	"github.com/sszokoly/sbctail/internal/parser"
	"github.com/sszokoly/sbctail/internal/tailer"
)

// chunkSize is how many bytes are pulled from the cursor per read cycle.
const chunkSize = 8192

// ErrNoData is returned by Next in follow mode when nothing is currently
// available; the caller should wait and retry.
var ErrNoData = errors.New("reader: no data available")

// Reader wires cursor, framer and parser into a message stream. It exposes
// a pull-based Next for bounded replay and a push-based Follow loop for
// live tailing.
type Reader struct {
	cursor *tailer.Cursor
	framer *tailer.Framer
	parser *parser.Parser
	wake   <-chan struct{}

	buf      []byte
	queue    []model.Message
	lastPath string
	total    int
	done     bool
}

// NewReplay returns a Reader over an explicit ordered file list.
func NewReplay(fs afero.Fs, files []string, p *parser.Parser) *Reader {
	return &Reader{
		cursor: tailer.NewReplay(fs, files),
		framer: tailer.NewFramer(),
		parser: p,
		buf:    make([]byte, chunkSize),
		total:  len(files),
	}
}

// NewFollow returns a Reader that tracks the locator's latest file.
func NewFollow(fs afero.Fs, loc *locator.Locator, p *parser.Parser) *Reader {
	return &Reader{
		cursor: tailer.NewFollow(fs, loc),
		framer: tailer.NewFramer(),
		parser: p,
		buf:    make([]byte, chunkSize),
	}
}

// SetWake installs a channel whose receives let the Follow loop poll
// immediately instead of waiting out the full interval. The ticker remains
// the fallback; a wake can only shorten a wait.
func (r *Reader) SetWake(ch <-chan struct{}) {
	r.wake = ch
}

// Next returns the next Message. In replay mode it blocks on file I/O and
// reports tailer.ErrEndOfStream once the file list is exhausted. In follow
// mode it returns ErrNoData when the stream has nothing new.
func (r *Reader) Next() (model.Message, error) {
	for {
		if len(r.queue) > 0 {
			msg := r.queue[0]
			r.queue = r.queue[1:]
			return msg, nil
		}
		if r.done {
			return model.Message{}, tailer.ErrEndOfStream
		}

		n, err := r.cursor.Read(r.buf)
		if errors.Is(err, tailer.ErrEndOfStream) {
			r.done = true
			continue
		}
		if err != nil {
			return model.Message{}, err
		}
		if n == 0 {
			return model.Message{}, ErrNoData
		}

		// A path change means the cursor switched files; any record left
		// incomplete in the old file is discarded, never stitched across
		// the rotation boundary.
		if path := r.cursor.Path(); path != r.lastPath {
			r.framer.Reset()
			r.lastPath = path
		}

		for _, rec := range r.framer.Feed(r.buf[:n], r.lastPath) {
			if msg, ok := r.parser.Parse(rec); ok {
				r.queue = append(r.queue, msg)
			}
		}
	}
}

// Follow runs the single-threaded live-tail loop: it drains available
// messages through fn and suspends for the poll interval when the cursor
// has nothing. Cancellation is checked at every suspension point; the open
// stream is closed on unwind. Follow returns nil if the stream ends, the
// context error on cancellation, or fn's error if it rejects a message.
func (r *Reader) Follow(ctx context.Context, interval time.Duration, fn func(model.Message) error) error {
	defer r.Close()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		msg, err := r.Next()
		switch {
		case err == nil:
			if err := fn(msg); err != nil {
				return err
			}
			continue
		case errors.Is(err, ErrNoData):
		case errors.Is(err, tailer.ErrEndOfStream):
			return nil
		default:
			// Transient, e.g. the directory briefly unreadable.
			log.Printf("reader: %v", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-r.wake:
		}
	}
}

// Progress returns the percentage of replay files fully processed.
func (r *Reader) Progress() int {
	if r.total == 0 || r.done {
		return 100
	}
	processed := r.total - r.cursor.Remaining()
	if r.cursor.Path() != "" {
		processed--
	}
	if processed < 0 {
		processed = 0
	}
	return processed * 100 / r.total
}

// Close releases the underlying stream.
func (r *Reader) Close() error {
	return r.cursor.Close()
}
