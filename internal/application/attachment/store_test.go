package attachment

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

// delayedReader 让完成顺序与输入顺序不同
type delayedReader struct {
	io.Reader
	delay time.Duration
}

func (d *delayedReader) Read(p []byte) (int, error) {
	if d.delay > 0 {
		time.Sleep(d.delay)
		d.delay = 0
	}
	return d.Reader.Read(p)
}

func (d *delayedReader) Close() error { return nil }

func pngFile(name string, delay time.Duration) File {
	data := append(append([]byte(nil), pngHeader...), []byte(name)...)
	return File{
		Name:        name,
		Size:        int64(len(data)),
		ContentType: "image/png",
		Open: func() (io.ReadCloser, error) {
			return &delayedReader{Reader: bytes.NewReader(data), delay: delay}, nil
		},
	}
}

func textFile(name string) File {
	data := []byte("just some notes")
	return File{
		Name:        name,
		Size:        int64(len(data)),
		ContentType: "text/plain",
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

func names(slots []Slot) []string {
	out := make([]string, len(slots))
	for i, s := range slots {
		out[i] = s.Name
	}
	return out
}

func TestIngest_FiveFilesKeepsFirstFourInOrder(t *testing.T) {
	var changes atomic.Int32
	s := NewStore(4, DefaultMaxFileSize, func() { changes.Add(1) })

	files := []File{
		pngFile("a", 40*time.Millisecond),
		pngFile("b", 0),
		pngFile("c", 20*time.Millisecond),
		pngFile("d", 5*time.Millisecond),
		pngFile("e", 0),
	}
	report := s.Ingest(context.Background(), files)

	assert.Equal(t, IngestReport{Accepted: 4, Ignored: 1}, report)
	slots := s.List()
	assert.Equal(t, []string{"a", "b", "c", "d"}, names(slots))
	assert.True(t, slots[0].Base)
	for _, slot := range slots[1:] {
		assert.False(t, slot.Base)
	}
	assert.True(t, strings.HasPrefix(slots[0].DataURI, "data:image/png;base64,"))
	assert.Equal(t, int32(1), changes.Load(), "one atomic commit")
}

func TestIngest_RespectsRemainingSlots(t *testing.T) {
	s := NewStore(4, DefaultMaxFileSize, nil)
	s.Ingest(context.Background(), []File{pngFile("a", 0), pngFile("b", 0), pngFile("c", 0)})

	report := s.Ingest(context.Background(), []File{pngFile("d", 0), pngFile("e", 0)})

	assert.Equal(t, 1, report.Accepted)
	assert.Equal(t, 1, report.Ignored)
	assert.Equal(t, []string{"a", "b", "c", "d"}, names(s.List()))
}

func TestIngest_DropsInvalidWithoutAbortingSiblings(t *testing.T) {
	s := NewStore(4, 64, nil)

	big := pngFile("big", 0)
	big.Size = 1 << 20

	lying := pngFile("lying", 0)
	lying.Size = 1
	lying.Open = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(append(append([]byte(nil), pngHeader...), make([]byte, 128)...))), nil
	}

	disguised := textFile("notes.png")
	disguised.ContentType = "image/png"

	report := s.Ingest(context.Background(), []File{
		textFile("notes.txt"), big, pngFile("ok1", 0), lying, disguised, pngFile("ok2", 0),
	})

	assert.Equal(t, []string{"ok1", "ok2"}, names(s.List()))
	assert.Equal(t, IngestReport{Accepted: 2, Rejected: 4}, report)
}

func TestIngest_OpenFailureIsDropped(t *testing.T) {
	s := NewStore(4, DefaultMaxFileSize, nil)

	broken := pngFile("broken", 0)
	broken.Open = func() (io.ReadCloser, error) { return nil, errors.New("read failed") }

	report := s.Ingest(context.Background(), []File{broken, pngFile("ok", 0)})

	assert.Equal(t, IngestReport{Accepted: 1, Rejected: 1}, report)
	assert.Equal(t, []string{"ok"}, names(s.List()))
}

func TestCountNeverExceedsMax(t *testing.T) {
	s := NewStore(4, DefaultMaxFileSize, nil)
	for round := 0; round < 6; round++ {
		batch := make([]File, round+1)
		for i := range batch {
			batch[i] = pngFile(fmt.Sprintf("r%d-%d", round, i), 0)
		}
		s.Ingest(context.Background(), batch)
		require.LessOrEqual(t, s.Count(), 4)
		if round%2 == 1 {
			require.NoError(t, s.Remove(0))
		}
	}
}

func TestNewStore_ClampsSlotLimit(t *testing.T) {
	for _, limit := range []int{-1, 0, 6, 100} {
		s := NewStore(limit, 0, nil)
		assert.Equal(t, DefaultMaxFiles, s.MaxFiles(), limit)

		batch := make([]File, 6)
		for i := range batch {
			batch[i] = pngFile(fmt.Sprintf("f%d", i), 0)
		}
		report := s.Ingest(context.Background(), batch)
		assert.Equal(t, 4, s.Count(), limit)
		assert.Equal(t, 4, report.Accepted)
		assert.Equal(t, 2, report.Ignored)
	}

	assert.Equal(t, 2, NewStore(2, 0, nil).MaxFiles())
}

func TestRemoveAndClear(t *testing.T) {
	s := NewStore(4, DefaultMaxFileSize, nil)
	s.Ingest(context.Background(), []File{pngFile("a", 0), pngFile("b", 0), pngFile("c", 0)})

	require.NoError(t, s.Remove(0))
	slots := s.List()
	assert.Equal(t, []string{"b", "c"}, names(slots))
	assert.True(t, slots[0].Base)

	assert.Error(t, s.Remove(5))

	s.Clear()
	assert.Equal(t, 0, s.Count())
}

func TestTakeEmptiesStore(t *testing.T) {
	s := NewStore(4, DefaultMaxFileSize, nil)
	s.Ingest(context.Background(), []File{pngFile("a", 0), pngFile("b", 0)})

	taken := s.Take()
	assert.Len(t, taken, 2)
	assert.Len(t, DataURIs(taken), 2)
	assert.Equal(t, 0, s.Count())
}
