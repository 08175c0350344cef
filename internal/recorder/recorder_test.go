package recorder

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/yegors/co-flight/internal/geo"
	"github.com/yegors/co-flight/internal/physics"
	"github.com/yegors/co-flight/pkg/logger"
)

func testState(lon float64) physics.State {
	p := geo.FromDegrees(lon, 45, 3000)
	return physics.State{
		Position:    p,
		Orientation: geo.HeadingPitchRollQuaternion(p, geo.HeadingPitchRoll{Heading: 0.3}),
		Speed:       180,
		Throttle:    0.6,
		Status:      physics.Status{IsStalled: lon > 1},
	}
}

func TestRoundTrip(t *testing.T) {
	started := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	header := Header{SessionID: "abc", Aircraft: "F22", StartedAt: started}

	var buf bytes.Buffer
	w, err := NewWriter(&buf, header, 1)
	if err != nil {
		t.Fatalf("NewWriter error = %v", err)
	}

	var want []Frame
	for i := 0; i < 3; i++ {
		f := NewFrame(uint64(i), started.Add(time.Duration(i)*time.Second), "F22", testState(float64(i)), i-1)
		want = append(want, f)
		if err := w.Append(f); err != nil {
			t.Fatalf("Append error = %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close error = %v", err)
	}

	r, err := NewReader(&buf)
	if err != nil {
		t.Fatalf("NewReader error = %v", err)
	}
	defer r.Close()

	if r.Header.SessionID != "abc" || r.Header.Version != FormatVersion || !r.Header.StartedAt.Equal(started) {
		t.Errorf("header = %+v", r.Header)
	}

	var got []Frame
	for {
		f, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next error = %v", err)
		}
		got = append(got, f)
	}

	opts := cmp.Options{
		cmp.Comparer(func(a, b time.Time) bool { return a.Equal(b) }),
		cmpopts.EquateApprox(0, 1e-12),
	}
	if diff := cmp.Diff(want, got, opts); diff != "" {
		t.Errorf("frames mismatch (-want +got):\n%s", diff)
	}
}

func TestSampling(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, Header{SessionID: "s"}, 3)
	if err != nil {
		t.Fatalf("NewWriter error = %v", err)
	}
	for i := 0; i < 7; i++ {
		if err := w.Append(Frame{Tick: uint64(i)}); err != nil {
			t.Fatalf("Append error = %v", err)
		}
	}
	if w.Frames() != 3 {
		t.Errorf("Frames() = %d, want 3", w.Frames())
	}
	w.Close()

	if err := w.Append(Frame{}); err == nil {
		t.Error("Append after Close succeeded")
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close error = %v", err)
	}
}

func TestCreate(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "recordings")
	header := Header{SessionID: "xyz", StartedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}

	w, path, err := Create(dir, header, 1, logger.NewNop())
	if err != nil {
		t.Fatalf("Create error = %v", err)
	}
	if err := w.Append(Frame{Tick: 7}); err != nil {
		t.Fatalf("Append error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close error = %v", err)
	}

	if filepath.Base(path) != "20250601T120000Z_xyz.msgpack.zst" {
		t.Errorf("path = %s", path)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open recording: %v", err)
	}
	defer f.Close()

	r, err := NewReader(f)
	if err != nil {
		t.Fatalf("NewReader error = %v", err)
	}
	defer r.Close()
	frame, err := r.Next()
	if err != nil || frame.Tick != 7 {
		t.Errorf("Next() = %+v, %v", frame, err)
	}
}
