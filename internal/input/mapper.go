package input

import (
	"strings"

	"github.com/yegors/co-flight/internal/physics"
)

// Bindings maps each axis direction to the keys that drive it. Keys are
// matched case-insensitively.
type Bindings struct {
	PitchUp      []string `toml:"pitch_up"`
	PitchDown    []string `toml:"pitch_down"`
	RollLeft     []string `toml:"roll_left"`
	RollRight    []string `toml:"roll_right"`
	YawLeft      []string `toml:"yaw_left"`
	YawRight     []string `toml:"yaw_right"`
	ThrottleUp   []string `toml:"throttle_up"`
	ThrottleDown []string `toml:"throttle_down"`
}

// DefaultBindings returns the standard keyboard layout
func DefaultBindings() Bindings {
	return Bindings{
		PitchUp:      []string{"w"},
		PitchDown:    []string{"s"},
		RollLeft:     []string{"a"},
		RollRight:    []string{"d"},
		YawLeft:      []string{"q"},
		YawRight:     []string{"e"},
		ThrottleUp:   []string{"shift"},
		ThrottleDown: []string{"control"},
	}
}

// withDefaults fills every empty direction from the default layout
func (b Bindings) withDefaults() Bindings {
	d := DefaultBindings()
	fill := func(dst *[]string, src []string) {
		if len(*dst) == 0 {
			*dst = src
		}
	}
	fill(&b.PitchUp, d.PitchUp)
	fill(&b.PitchDown, d.PitchDown)
	fill(&b.RollLeft, d.RollLeft)
	fill(&b.RollRight, d.RollRight)
	fill(&b.YawLeft, d.YawLeft)
	fill(&b.YawRight, d.YawRight)
	fill(&b.ThrottleUp, d.ThrottleUp)
	fill(&b.ThrottleDown, d.ThrottleDown)
	return b
}

// Mapper turns discrete key state into a continuous control vector. It is not
// safe for concurrent use; the simulator owns it.
type Mapper struct {
	bindings Bindings
	pressed  map[string]bool
	controls physics.Controls
}

// NewMapper creates a mapper; empty directions fall back to DefaultBindings
func NewMapper(bindings Bindings) *Mapper {
	return &Mapper{
		bindings: bindings.withDefaults(),
		pressed:  make(map[string]bool),
	}
}

// SetKey records a key transition and returns the recomputed controls
func (m *Mapper) SetKey(key string, pressed bool) physics.Controls {
	key = strings.ToLower(key)
	if pressed {
		m.pressed[key] = true
	} else {
		delete(m.pressed, key)
	}
	m.recompute()
	return m.controls
}

// Controls returns the current control vector
func (m *Mapper) Controls() physics.Controls {
	return m.controls
}

// Reset releases every key
func (m *Mapper) Reset() {
	clear(m.pressed)
	m.controls = physics.Controls{}
}

func (m *Mapper) recompute() {
	b := m.bindings
	m.controls = physics.Controls{
		Pitch:    m.axis(b.PitchUp, b.PitchDown),
		Roll:     m.axis(b.RollRight, b.RollLeft),
		Yaw:      m.axis(b.YawRight, b.YawLeft),
		Throttle: m.axis(b.ThrottleUp, b.ThrottleDown),
	}
}

func (m *Mapper) axis(positive, negative []string) float64 {
	var v float64
	if m.anyPressed(positive) {
		v++
	}
	if m.anyPressed(negative) {
		v--
	}
	return v
}

func (m *Mapper) anyPressed(keys []string) bool {
	for _, k := range keys {
		if m.pressed[strings.ToLower(k)] {
			return true
		}
	}
	return false
}
