package reader

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sszokoly/sbctail/internal/locator"
	"github.com/sszokoly/sbctail/internal/model"
	"github.com/sszokoly/sbctail/internal/parser"
	"github.com/sszokoly/sbctail/internal/tailer"
)

// traceRecord renders one well-formed trace log record.
func traceRecord(stamp, method string) string {
	return fmt.Sprintf(
		"[%s]\n"+
			"IN: 10.10.48.58:5060 --> 10.10.32.60:5060 (UDP)\n"+
			"%s sip:bob@example.com SIP/2.0\n"+
			"CSeq: 1 %s\n"+
			"--------------------\n",
		stamp, method, method)
}

func writeFile(t *testing.T, fs afero.Fs, path, content string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0644))
}

func writeGzipFile(t *testing.T, fs afero.Fs, path, content string) {
	t.Helper()
	f, err := fs.Create(path)
	require.NoError(t, err)
	zw := gzip.NewWriter(f)
	_, err = zw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

func appendFile(t *testing.T, fs afero.Fs, path, content string) {
	t.Helper()
	f, err := fs.OpenFile(path, os.O_RDWR, 0644)
	require.NoError(t, err)
	_, err = f.Seek(0, io.SeekEnd)
	require.NoError(t, err)
	_, err = f.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

// flakyFs injects read failures on one file to mimic transient I/O errors
// on a live trace file.
type flakyFs struct {
	afero.Fs
	target string
	fail   int
}

func (f *flakyFs) Open(name string) (afero.File, error) {
	file, err := f.Fs.Open(name)
	if err != nil || name != f.target {
		return file, err
	}
	return &flakyFile{File: file, owner: f}, nil
}

type flakyFile struct {
	afero.File
	owner *flakyFs
}

func (f *flakyFile) Read(p []byte) (int, error) {
	if f.owner.fail > 0 {
		f.owner.fail--
		return 0, errors.New("transient device error")
	}
	return f.File.Read(p)
}

// drainReplay pulls messages until the end-of-stream signal.
func drainReplay(t *testing.T, r *Reader) []model.Message {
	t.Helper()
	var msgs []model.Message
	for {
		msg, err := r.Next()
		if errors.Is(err, tailer.ErrEndOfStream) {
			return msgs
		}
		require.NoError(t, err)
		msgs = append(msgs, msg)
	}
}

func TestReplayRotationOrdering(t *testing.T) {
	fs := afero.NewMemMapFs()
	// File A holds 3 records, file B (compressed) holds 2.
	writeFile(t, fs, "/log/tracesbc_sip_1747386600",
		traceRecord("01-15-2024:13:45:01:000001", "INVITE")+
			traceRecord("01-15-2024:13:45:02:000002", "ACK")+
			traceRecord("01-15-2024:13:45:03:000003", "BYE"))
	writeGzipFile(t, fs, "/log/tracesbc_sip_1747390200.gz",
		traceRecord("01-15-2024:14:45:01:000001", "REGISTER")+
			traceRecord("01-15-2024:14:45:02:000002", "OPTIONS"))

	r := NewReplay(fs, []string{
		"/log/tracesbc_sip_1747386600",
		"/log/tracesbc_sip_1747390200.gz",
	}, parser.New(nil, false))
	defer r.Close()

	msgs := drainReplay(t, r)
	require.Len(t, msgs, 5)

	var methods []string
	for _, m := range msgs {
		methods = append(methods, m.Method)
	}
	assert.Equal(t, []string{"INVITE", "ACK", "BYE", "REGISTER", "OPTIONS"}, methods)

	assert.Equal(t, "/log/tracesbc_sip_1747386600", msgs[0].Source)
	assert.Equal(t, "/log/tracesbc_sip_1747390200.gz", msgs[4].Source)
	assert.Equal(t, 100, r.Progress())
}

func TestReplayMethodFilter(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/log/tracesbc_sip_1747386600",
		traceRecord("01-15-2024:13:45:01:000001", "INVITE")+
			traceRecord("01-15-2024:13:45:02:000002", "OPTIONS")+
			traceRecord("01-15-2024:13:45:03:000003", "BYE"))

	r := NewReplay(fs, []string{"/log/tracesbc_sip_1747386600"},
		parser.New([]string{"INVITE"}, false))
	defer r.Close()

	msgs := drainReplay(t, r)
	require.Len(t, msgs, 1)
	assert.Equal(t, "INVITE", msgs[0].Method)
}

func TestReplayDiscardsRecordTornByRotation(t *testing.T) {
	fs := afero.NewMemMapFs()
	// File A ends mid-record: the trailer never arrives.
	writeFile(t, fs, "/log/tracesbc_sip_1747386600",
		traceRecord("01-15-2024:13:45:01:000001", "INVITE")+
			"[01-15-2024:13:45:02:000002]\n"+
			"IN: 10.10.48.58:5060 --> 10.10.32.60:5060 (UDP)\n"+
			"CANCEL sip:bob@example.com SIP/2.0\n")
	// File B opens with unrelated content before its first record.
	writeFile(t, fs, "/log/tracesbc_sip_1747390200",
		"unrelated preamble line\n"+
			"-----\n"+
			traceRecord("01-15-2024:14:45:01:000001", "BYE"))

	r := NewReplay(fs, []string{
		"/log/tracesbc_sip_1747386600",
		"/log/tracesbc_sip_1747390200",
	}, parser.New(nil, false))
	defer r.Close()

	msgs := drainReplay(t, r)
	require.Len(t, msgs, 2, "the torn CANCEL record must be dropped, not stitched")
	assert.Equal(t, "INVITE", msgs[0].Method)
	assert.Equal(t, "BYE", msgs[1].Method)
	assert.NotContains(t, msgs[1].Body, "CANCEL")
}

func TestFollowBacklogSkip(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/log/tracesbc_sip_1747386600",
		traceRecord("01-15-2024:13:45:01:000001", "INVITE")+
			traceRecord("01-15-2024:13:45:02:000002", "ACK")+
			traceRecord("01-15-2024:13:45:03:000003", "BYE"))

	loc := locator.New(fs, "/log", "")
	r := NewFollow(fs, loc, parser.New(nil, false))
	defer r.Close()

	// The 3 pre-existing records are never emitted.
	_, err := r.Next()
	assert.ErrorIs(t, err, ErrNoData)

	// A rotated-in file is read from offset 0.
	writeFile(t, fs, "/log/tracesbc_sip_1747390200",
		traceRecord("01-15-2024:14:45:01:000001", "REGISTER")+
			traceRecord("01-15-2024:14:45:02:000002", "OPTIONS"))

	m1, err := r.Next()
	require.NoError(t, err)
	m2, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "REGISTER", m1.Method)
	assert.Equal(t, "OPTIONS", m2.Method)

	_, err = r.Next()
	assert.ErrorIs(t, err, ErrNoData)
}

func TestFollowFramingSurvivesReadError(t *testing.T) {
	mem := afero.NewMemMapFs()
	path := "/log/tracesbc_sip_1747386600"
	writeFile(t, mem, path, "backlog\n")

	fs := &flakyFs{Fs: mem, target: path}
	r := NewFollow(fs, locator.New(fs, "/log", ""), parser.New(nil, false))
	defer r.Close()

	_, err := r.Next()
	require.ErrorIs(t, err, ErrNoData) // backlog skipped

	// Half a record arrives, then a read fails, then the rest arrives.
	rec := traceRecord("01-15-2024:13:45:01:000001", "INVITE")
	half := len(rec) / 2
	appendFile(t, mem, path, rec[:half])

	_, err = r.Next()
	require.ErrorIs(t, err, ErrNoData) // incomplete record frames nothing

	fs.fail = 1
	_, err = r.Next()
	require.ErrorIs(t, err, ErrNoData)

	appendFile(t, mem, path, rec[half:])

	// The buffered half must join its second half into one record; a
	// rewind or a framer reset here would lose or corrupt it.
	msg, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "INVITE", msg.Method)

	_, err = r.Next()
	assert.ErrorIs(t, err, ErrNoData, "no duplicate after the retry")
}

func TestFollowLoopOverBoundedStream(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/log/tracesbc_sip_1747386600",
		traceRecord("01-15-2024:13:45:01:000001", "INVITE")+
			traceRecord("01-15-2024:13:45:02:000002", "BYE"))

	r := NewReplay(fs, []string{"/log/tracesbc_sip_1747386600"}, parser.New(nil, false))

	var got []string
	err := r.Follow(context.Background(), time.Millisecond, func(m model.Message) error {
		got = append(got, m.Method)
		return nil
	})
	require.NoError(t, err, "end of stream terminates the loop cleanly")
	assert.Equal(t, []string{"INVITE", "BYE"}, got)
}

func TestFollowCancellation(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/log", 0755))

	r := NewFollow(fs, locator.New(fs, "/log", ""), parser.New(nil, false))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := r.Follow(ctx, 5*time.Millisecond, func(model.Message) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestProgress(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/log/tracesbc_sip_1747386600",
		traceRecord("01-15-2024:13:45:01:000001", "INVITE"))
	writeFile(t, fs, "/log/tracesbc_sip_1747390200",
		traceRecord("01-15-2024:14:45:01:000001", "BYE"))

	r := NewReplay(fs, []string{
		"/log/tracesbc_sip_1747386600",
		"/log/tracesbc_sip_1747390200",
	}, parser.New(nil, false))
	defer r.Close()

	assert.Equal(t, 0, r.Progress())

	m1, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "INVITE", m1.Method)
	assert.Equal(t, 0, r.Progress(), "first file is open, not finished")

	m2, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "BYE", m2.Method)
	assert.Equal(t, 50, r.Progress(), "first file done, second in flight")

	_, err = r.Next()
	assert.ErrorIs(t, err, tailer.ErrEndOfStream)
	assert.Equal(t, 100, r.Progress())
}

func TestProgressCountsSkippedFiles(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/log/tracesbc_sip_1747386600",
		traceRecord("01-15-2024:13:45:01:000001", "INVITE"))
	// The middle file is never created.
	writeFile(t, fs, "/log/tracesbc_sip_1747393800",
		traceRecord("01-15-2024:15:45:01:000001", "BYE"))

	r := NewReplay(fs, []string{
		"/log/tracesbc_sip_1747386600",
		"/log/tracesbc_sip_1747390200",
		"/log/tracesbc_sip_1747393800",
	}, parser.New(nil, false))
	defer r.Close()

	m1, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "INVITE", m1.Method)
	assert.Equal(t, 0, r.Progress())

	// Skipping the missing file counts it as processed.
	m2, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "BYE", m2.Method)
	assert.Equal(t, 66, r.Progress())

	_, err = r.Next()
	assert.ErrorIs(t, err, tailer.ErrEndOfStream)
	assert.Equal(t, 100, r.Progress())
}
