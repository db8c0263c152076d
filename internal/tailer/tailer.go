package tailer

import (
	"errors"
	"io"
	"log"

	"github.com/spf13/afero"
	"github.com/sszokoly/sbctail/internal/locator"
)

// ErrEndOfStream is returned by Read in replay mode once the last queued
// file has been fully consumed. It is a terminal signal, not a failure.
var ErrEndOfStream = errors.New("tailer: end of stream")

// Cursor owns the currently open trace file stream and its read offset.
// It detects rotation and decides where to resume reading.
//
// The mode is fixed at construction. In replay mode the caller supplies an
// explicit ordered file list and every file is read from offset 0. In
// follow mode the cursor tracks whichever file the Locator reports as the
// latest: the first file observed is opened at its end (backlog is never
// replayed), every later rotation is opened at offset 0.
type Cursor struct {
	fs     afero.Fs
	loc    *locator.Locator
	queue  []string
	replay bool

	path   string
	stream Stream
	offset int64
	opened bool // at least one file has been opened since construction

	// Resume point after a transient read error in follow mode: reopening
	// the same live file continues at this offset instead of rewinding.
	resumePath   string
	resumeOffset int64
}

// NewReplay returns a cursor that reads the given files strictly in order.
func NewReplay(fs afero.Fs, files []string) *Cursor {
	queue := make([]string, len(files))
	copy(queue, files)
	return &Cursor{fs: fs, queue: queue, replay: true}
}

// NewFollow returns a cursor that always tracks the locator's latest file.
func NewFollow(fs afero.Fs, loc *locator.Locator) *Cursor {
	return &Cursor{fs: fs, loc: loc}
}

// Path returns the path of the currently open file, or "" when closed.
// The reader compares it across calls to detect file switches.
func (c *Cursor) Path() string {
	return c.path
}

// Offset returns the byte offset within the current file.
func (c *Cursor) Offset() int64 {
	return c.offset
}

// Remaining returns the number of queued replay files not yet opened.
func (c *Cursor) Remaining() int {
	return len(c.queue)
}

// Read fills p with the next bytes of the stream. A zero count with a nil
// error means no data is currently available and the caller should wait
// and retry. In replay mode exhausting the final file returns
// ErrEndOfStream.
func (c *Cursor) Read(p []byte) (int, error) {
	if c.replay {
		return c.readReplay(p)
	}
	return c.readFollow(p)
}

func (c *Cursor) readReplay(p []byte) (int, error) {
	for {
		if c.stream == nil {
			if len(c.queue) == 0 {
				return 0, ErrEndOfStream
			}
			path := c.queue[0]
			c.queue = c.queue[1:]
			if err := c.open(path); err != nil {
				// Transient or corrupt file: skip it and keep going.
				log.Printf("tailer: skipping %s: %v", path, err)
				continue
			}
		}

		n, err := c.stream.Read(p)
		if n > 0 {
			c.offset += int64(n)
			return n, nil
		}
		switch {
		case err == nil || errors.Is(err, io.EOF):
			// Current file exhausted, move on to the next one.
			c.closeStream()
		default:
			// Decompression or read failure: fatal for this file only.
			log.Printf("tailer: abandoning %s: %v", c.path, err)
			c.closeStream()
		}
	}
}

func (c *Cursor) readFollow(p []byte) (int, error) {
	// Rotation detection runs once per read cycle.
	latest, err := c.loc.Latest()
	if err != nil {
		return 0, err
	}
	if latest == "" || locator.Compressed(latest) {
		if latest != "" {
			// A compressed latest is a finished file: whatever rotates
			// in next is new traffic, not startup backlog, so it must
			// be read from offset 0.
			c.opened = true
		}
		// No live file right now; wait for the next rotation.
		return 0, nil
	}

	if latest != c.path {
		first := !c.opened
		c.closeStream()
		if err := c.open(latest); err != nil {
			// File may have vanished between listing and opening.
			log.Printf("tailer: cannot open %s: %v", latest, err)
			return 0, nil
		}
		switch {
		case first:
			if err := c.seekEnd(); err != nil {
				c.closeStream()
				return 0, err
			}
		case latest == c.resumePath:
			// Reopening the live file after a transient read error:
			// continue where delivery stopped, never re-deliver.
			if err := c.seekTo(c.resumeOffset); err != nil {
				c.closeStream()
				return 0, err
			}
		}
		c.resumePath, c.resumeOffset = "", 0
	}

	n, err := c.stream.Read(p)
	if n > 0 {
		c.offset += int64(n)
		return n, nil
	}
	if err != nil && !errors.Is(err, io.EOF) {
		log.Printf("tailer: read %s: %v", c.path, err)
		c.resumePath, c.resumeOffset = c.path, c.offset
		c.closeStream()
	}
	return 0, nil
}

func (c *Cursor) open(path string) error {
	s, err := Open(c.fs, path)
	if err != nil {
		return err
	}
	c.stream = s
	c.path = path
	c.offset = 0
	c.opened = true
	return nil
}

// seekEnd skips the backlog of the first file seen in follow mode.
func (c *Cursor) seekEnd() error {
	seeker, ok := c.stream.(io.Seeker)
	if !ok {
		return nil
	}
	pos, err := seeker.Seek(0, io.SeekEnd)
	if err != nil {
		return err
	}
	c.offset = pos
	return nil
}

// seekTo restores the read position after the live file is reopened.
func (c *Cursor) seekTo(off int64) error {
	seeker, ok := c.stream.(io.Seeker)
	if !ok {
		return nil
	}
	pos, err := seeker.Seek(off, io.SeekStart)
	if err != nil {
		return err
	}
	c.offset = pos
	return nil
}

func (c *Cursor) closeStream() {
	if c.stream != nil {
		c.stream.Close()
		c.stream = nil
	}
	c.path = ""
	c.offset = 0
}

// Close releases the open stream, if any.
func (c *Cursor) Close() error {
	c.closeStream()
	return nil
}
