// Package recorder writes flight telemetry to compact replay files: a
// msgpack header followed by msgpack frames, all in one zstd stream.
package recorder

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
	"github.com/yegors/co-flight/internal/geo"
	"github.com/yegors/co-flight/internal/physics"
	"github.com/yegors/co-flight/pkg/logger"
)

// FormatVersion is bumped on incompatible frame changes
const FormatVersion = 1

// Header opens every recording
type Header struct {
	Version   int       `msgpack:"v"`
	SessionID string    `msgpack:"session"`
	Aircraft  string    `msgpack:"aircraft"`
	StartedAt time.Time `msgpack:"started_at"`
}

// Frame is one recorded tick
type Frame struct {
	Tick        uint64     `msgpack:"n"`
	Time        time.Time  `msgpack:"t"`
	Aircraft    string     `msgpack:"ac"`
	Longitude   float64    `msgpack:"lon"`
	Latitude    float64    `msgpack:"lat"`
	Height      float64    `msgpack:"h"`
	Orientation [4]float64 `msgpack:"q"` // w, x, y, z in ECEF
	Speed       float64    `msgpack:"spd"`
	Throttle    float64    `msgpack:"thr"`
	Stalled     bool       `msgpack:"stall,omitempty"`
	Supersonic  bool       `msgpack:"ss,omitempty"`
	Crashed     bool       `msgpack:"crash,omitempty"`
	Waypoint    int        `msgpack:"wp"` // active waypoint index, -1 when idle
}

// NewFrame flattens a physics state into a frame
func NewFrame(tick uint64, at time.Time, aircraft string, state physics.State, waypoint int) Frame {
	c := geo.ToCartographic(state.Position)
	q := state.Orientation
	return Frame{
		Tick:        tick,
		Time:        at,
		Aircraft:    aircraft,
		Longitude:   c.Longitude,
		Latitude:    c.Latitude,
		Height:      c.Height,
		Orientation: [4]float64{q.W, q.V[0], q.V[1], q.V[2]},
		Speed:       state.Speed,
		Throttle:    state.Throttle,
		Stalled:     state.Status.IsStalled,
		Supersonic:  state.Status.IsSupersonic,
		Crashed:     state.Status.IsCrashed,
		Waypoint:    waypoint,
	}
}

// Writer appends frames to a recording. It is safe for concurrent use.
type Writer struct {
	mu     sync.Mutex
	zw     *zstd.Encoder
	enc    *msgpack.Encoder
	closer io.Closer
	every  uint64
	seen   uint64
	frames uint64
	closed bool
}

// NewWriter starts a recording on w keeping one frame in every.
// every <= 1 keeps all frames.
func NewWriter(w io.Writer, header Header, every int) (*Writer, error) {
	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd writer: %w", err)
	}

	enc := msgpack.NewEncoder(zw)
	if header.Version == 0 {
		header.Version = FormatVersion
	}
	if err := enc.Encode(&header); err != nil {
		zw.Close()
		return nil, fmt.Errorf("failed to encode recording header: %w", err)
	}

	if every < 1 {
		every = 1
	}
	return &Writer{zw: zw, enc: enc, every: uint64(every)}, nil
}

// Create starts a recording file named after the session inside dir
func Create(dir string, header Header, every int, log *logger.Logger) (*Writer, string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, "", fmt.Errorf("failed to create recording directory: %w", err)
	}

	name := fmt.Sprintf("%s_%s.msgpack.zst", header.StartedAt.UTC().Format("20060102T150405Z"), header.SessionID)
	path := filepath.Join(dir, name)

	f, err := os.Create(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create recording file: %w", err)
	}

	w, err := NewWriter(f, header, every)
	if err != nil {
		f.Close()
		return nil, "", err
	}
	w.closer = f

	log.Named("recorder").Info("Recording flight",
		logger.String("path", path),
		logger.String("session", header.SessionID))

	return w, path, nil
}

// Append records f if it falls on the sampling interval
func (w *Writer) Append(f Frame) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return errors.New("recorder is closed")
	}

	w.seen++
	if (w.seen-1)%w.every != 0 {
		return nil
	}

	if err := w.enc.Encode(&f); err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}
	w.frames++
	return nil
}

// Frames returns the number of frames written
func (w *Writer) Frames() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.frames
}

// Close flushes the stream and closes the underlying file, if any
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	err := w.zw.Close()
	if w.closer != nil {
		if cerr := w.closer.Close(); err == nil {
			err = cerr
		}
	}
	if err != nil {
		return fmt.Errorf("failed to close recording: %w", err)
	}
	return nil
}

// Reader replays a recording
type Reader struct {
	Header Header

	zr  *zstd.Decoder
	dec *msgpack.Decoder
}

// NewReader opens a recording and decodes its header
func NewReader(r io.Reader) (*Reader, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd reader: %w", err)
	}

	rd := &Reader{zr: zr, dec: msgpack.NewDecoder(zr)}
	if err := rd.dec.Decode(&rd.Header); err != nil {
		zr.Close()
		return nil, fmt.Errorf("failed to decode recording header: %w", err)
	}
	if rd.Header.Version != FormatVersion {
		zr.Close()
		return nil, fmt.Errorf("unsupported recording version %d", rd.Header.Version)
	}
	return rd, nil
}

// Next returns the next frame or io.EOF at the end of the recording
func (r *Reader) Next() (Frame, error) {
	var f Frame
	if err := r.dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return Frame{}, io.EOF
		}
		return Frame{}, fmt.Errorf("failed to decode frame: %w", err)
	}
	return f, nil
}

// Close releases the decoder
func (r *Reader) Close() {
	r.zr.Close()
}
