package audio

import (
	"math"
	"sync"

	"github.com/yegors/co-flight/internal/physics"
	"github.com/yegors/co-flight/pkg/logger"
)

// Sound names a clip the client has loaded
type Sound string

const (
	SoundEngine       Sound = "engine"
	SoundCrash        Sound = "crash"
	SoundStallWarning Sound = "stall-warning"
	SoundSonicBoom    Sound = "sonic-boom"
)

const (
	WarningVolume = 0.3 // stall warning and sonic boom
	EngineVolume  = 1.0
	CrashVolume   = 1.0
)

// Sink plays sounds. Loops keyed by name play at most once at a time.
type Sink interface {
	Play(sound Sound, loop bool, volume float64)
	Stop(sound Sound)
	StopAll()
	SetEngine(volume, rate float64)
}

// Discard is a Sink that drops every command
type Discard struct{}

func (Discard) Play(Sound, bool, float64)  {}
func (Discard) Stop(Sound)                 {}
func (Discard) StopAll()                   {}
func (Discard) SetEngine(float64, float64) {}

// EngineParams maps speed to engine loop volume and playback rate
func EngineParams(speed float64, params physics.Params) (volume, rate float64) {
	ratio := math.Max(0, math.Min(1, speed/params.MaxSpeed))
	if speed < params.StallSpeed {
		volume = 0.3
	} else {
		volume = 0.5 + ratio*0.5
	}
	return volume * EngineVolume, 0.8 + ratio*0.7
}

// Feedback turns flight status transitions into sink commands. Each
// edge fires once; steady states only refresh the engine loop.
type Feedback struct {
	sink   Sink
	logger *logger.Logger

	mu       sync.Mutex
	unlocked bool
	prev     physics.Status
}

// NewFeedback creates a transition detector that drives sink
func NewFeedback(sink Sink, logger *logger.Logger) *Feedback {
	return &Feedback{
		sink:   sink,
		logger: logger.Named("audio"),
	}
}

// Unlock enables playback after the first user gesture. Returns false if
// it was already unlocked.
func (f *Feedback) Unlock() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unlocked {
		return false
	}
	f.unlocked = true
	f.logger.Info("Audio unlocked")
	return true
}

// Unlocked reports whether playback is enabled
func (f *Feedback) Unlocked() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unlocked
}

// Resume starts the engine loop when playback is enabled
func (f *Feedback) Resume() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unlocked && !f.prev.IsCrashed {
		f.sink.Play(SoundEngine, true, EngineVolume)
	}
}

// StopAll silences every sound
func (f *Feedback) StopAll() {
	f.sink.StopAll()
}

// Reset replaces the reference status after a relocation. A stall
// warning still sounding is stopped. It reports whether the aircraft left
// a crash, in which case the caller restarts the engine with Resume.
func (f *Feedback) Reset(status physics.Status) (recovered bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	prev := f.prev
	f.prev = status
	if f.unlocked && prev.IsStalled && !status.IsStalled && !prev.IsCrashed {
		f.sink.Stop(SoundStallWarning)
	}
	return prev.IsCrashed && !status.IsCrashed
}

// Update compares status with the previous tick and issues commands
func (f *Feedback) Update(status physics.Status, speed float64, params physics.Params) {
	f.mu.Lock()
	defer f.mu.Unlock()

	prev := f.prev
	f.prev = status

	if status.IsCrashed && !prev.IsCrashed {
		f.sink.StopAll()
		if f.unlocked {
			f.sink.Play(SoundCrash, false, CrashVolume)
		}
		return
	}

	if !f.unlocked {
		return
	}

	if !status.IsCrashed && prev.IsCrashed {
		f.sink.Play(SoundEngine, true, EngineVolume)
	}

	if status.IsCrashed {
		return
	}

	f.sink.SetEngine(EngineParams(speed, params))

	if status.IsStalled && !prev.IsStalled {
		f.sink.Play(SoundStallWarning, true, WarningVolume)
	} else if !status.IsStalled && prev.IsStalled {
		f.sink.Stop(SoundStallWarning)
	}

	if status.IsSupersonic && !prev.IsSupersonic {
		f.sink.Play(SoundSonicBoom, false, WarningVolume)
	}
}
