// Package stream provides the tiffrw.Seekable adapters the engine
// reads and writes tile bytes through: a plain local file, and a
// read-only ranged stream over github.com/airbusgeo/osio for remote
// (GCS, HTTP) sources — the same library the teacher used to stream
// source strips out of object storage (see tiler.go's use of
// *osio.Reader).
package stream

import (
	"context"
	"fmt"
	"io"
	"os"

	"cloud.google.com/go/storage"

	"github.com/airbusgeo/osio"
	"github.com/airbusgeo/osio/gcs"
)

// FileStream is a tiffrw.Seekable backed by a local *os.File.
type FileStream struct {
	f *os.File
}

// OpenFile opens path for reading and writing, creating it if it does
// not exist.
func OpenFile(path string) (*FileStream, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("stream: open %s: %w", path, err)
	}
	return &FileStream{f: f}, nil
}

func (s *FileStream) Seek(offset uint64) error {
	_, err := s.f.Seek(int64(offset), io.SeekStart)
	return err
}

func (s *FileStream) Read(p []byte) (int, error) { return s.f.Read(p) }

func (s *FileStream) Write(p []byte) (int, error) { return s.f.Write(p) }

func (s *FileStream) Length() (uint64, error) {
	info, err := s.f.Stat()
	if err != nil {
		return 0, err
	}
	return uint64(info.Size()), nil
}

func (s *FileStream) SetLength(n uint64) error { return s.f.Truncate(int64(n)) }

// Close releases the underlying file handle.
func (s *FileStream) Close() error { return s.f.Close() }

// RemoteStream is a read-only tiffrw.Seekable over an osio.Reader,
// for TIFFs kept in object storage rather than on local disk. Writes
// always fail: random-access rewriting a remote object is out of
// scope (see DESIGN.md), matching spec.md's read-only remote-stream
// non-goal.
type RemoteStream struct {
	r      *osio.Reader
	offset int64
	size   int64
}

// NewRemoteStream wraps an already-opened osio.Reader (built by the
// caller against whichever backend — gcs.Handle, http, ... — the
// pack's osio sub-packages provide) along with its known total size.
func NewRemoteStream(r *osio.Reader, size int64) *RemoteStream {
	return &RemoteStream{r: r, size: size}
}

func (s *RemoteStream) Seek(offset uint64) error {
	s.offset = int64(offset)
	return nil
}

func (s *RemoteStream) Read(p []byte) (int, error) {
	n, err := s.r.ReadAt(p, s.offset)
	s.offset += int64(n)
	return n, err
}

func (s *RemoteStream) Write([]byte) (int, error) {
	return 0, fmt.Errorf("stream: remote streams are read-only")
}

func (s *RemoteStream) Length() (uint64, error) { return uint64(s.size), nil }

func (s *RemoteStream) SetLength(uint64) error {
	return fmt.Errorf("stream: remote streams are read-only")
}

// OpenGCSRemoteStream opens a GCS object as a RemoteStream, bridging
// cloud.google.com/go/storage to osio's ranged-read adapter the same
// way the teacher's tiler command set up its own GCS source: a
// storage.Client, wrapped in an osio/gcs.Handle, wrapped in an
// osio.Adapter that does the actual block caching.
func OpenGCSRemoteStream(ctx context.Context, bucket, object string, blockSize, numCachedBlocks int) (*RemoteStream, error) {
	cl, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("stream: storage.NewClient: %w", err)
	}
	gcsh, err := gcs.Handle(ctx, gcs.GCSClient(cl))
	if err != nil {
		return nil, fmt.Errorf("stream: gcs.Handle: %w", err)
	}
	adapter, err := osio.NewAdapter(gcsh, osio.BlockSize(blockSize), osio.NumCachedBlocks(numCachedBlocks))
	if err != nil {
		return nil, fmt.Errorf("stream: osio.NewAdapter: %w", err)
	}
	key := bucket + "/" + object
	r, err := adapter.Reader(key)
	if err != nil {
		return nil, fmt.Errorf("stream: open %s: %w", key, err)
	}
	attrs, err := cl.Bucket(bucket).Object(object).Attrs(ctx)
	if err != nil {
		return nil, fmt.Errorf("stream: stat %s: %w", key, err)
	}
	return NewRemoteStream(r, attrs.Size), nil
}
