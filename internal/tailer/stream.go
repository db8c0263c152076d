package tailer

import (
	"compress/bzip2"
	"compress/gzip"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/afero"
)

// Stream is a readable byte stream over one trace file, regardless of how
// the file is stored on disk.
type Stream interface {
	io.ReadCloser
}

// Opener turns a file path into a Stream.
type Opener func(fs afero.Fs, path string) (Stream, error)

// openers maps file extensions to their storage scheme.
var openers = map[string]Opener{
	".gz":  openGzip,
	".bz2": openBzip2,
}

// Open dispatches on the file extension and returns a byte stream for the
// file. Missing, unreadable or compression-corrupt files return an error;
// the caller decides whether to retry or skip.
func Open(fs afero.Fs, path string) (Stream, error) {
	for ext, open := range openers {
		if strings.HasSuffix(path, ext) {
			return open(fs, path)
		}
	}
	return openPlain(fs, path)
}

// plainStream exposes the underlying file so the cursor can seek to the end
// of a live file when follow mode starts.
type plainStream struct {
	afero.File
}

func openPlain(fs afero.Fs, path string) (Stream, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	return &plainStream{File: f}, nil
}

type gzipStream struct {
	zr *gzip.Reader
	f  afero.File
}

func openGzip(fs afero.Fs, path string) (Stream, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	zr, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("gzip %s: %w", path, err)
	}
	return &gzipStream{zr: zr, f: f}, nil
}

func (s *gzipStream) Read(p []byte) (int, error) { return s.zr.Read(p) }

func (s *gzipStream) Close() error {
	err := s.zr.Close()
	if cerr := s.f.Close(); err == nil {
		err = cerr
	}
	return err
}

type bzip2Stream struct {
	r io.Reader
	f afero.File
}

func openBzip2(fs afero.Fs, path string) (Stream, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	// bzip2 has no header check at open time; corruption surfaces on Read.
	return &bzip2Stream{r: bzip2.NewReader(f), f: f}, nil
}

func (s *bzip2Stream) Read(p []byte) (int, error) { return s.r.Read(p) }

func (s *bzip2Stream) Close() error { return s.f.Close() }
