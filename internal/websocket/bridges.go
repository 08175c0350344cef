package websocket

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/yegors/co-flight/internal/audio"
	"github.com/yegors/co-flight/internal/camera"
	"github.com/yegors/co-flight/internal/navigation"
	"github.com/yegors/co-flight/internal/simulation"
)

// Broadcaster queues a message for every connected client
type Broadcaster interface {
	Broadcast(message *Message)
}

// Scene actions
const (
	SceneActionCamera         = "camera"
	SceneActionViewMode       = "view_mode"
	SceneActionFlyTo          = "fly_to"
	SceneActionShowWaypoint   = "show_waypoint"
	SceneActionRemoveWaypoint = "remove_waypoint"
	SceneActionSetPath        = "set_path"
	SceneActionSetLeg         = "set_leg"
)

// SceneCommand is the payload of a scene message
type SceneCommand struct {
	Action   string               `json:"action"`
	Pose     *camera.Pose         `json:"pose,omitempty"`
	Mode     simulation.ViewMode  `json:"mode,omitempty"`
	Target   *mgl64.Vec3          `json:"target,omitempty"`
	Duration float64              `json:"duration,omitempty"` // seconds
	Waypoint *navigation.Waypoint `json:"waypoint,omitempty"`
	ID       string               `json:"id,omitempty"`
	Path     *[]mgl64.Vec3        `json:"path,omitempty"` // set_path and set_leg; [] clears
}

// SceneBridge forwards renderer commands to browsers as scene messages.
// It serves both the simulator and the waypoint manager.
type SceneBridge struct {
	out Broadcaster
}

// NewSceneBridge creates a scene bridge
func NewSceneBridge(out Broadcaster) *SceneBridge {
	return &SceneBridge{out: out}
}

func (b *SceneBridge) emit(cmd SceneCommand) {
	b.out.Broadcast(&Message{Type: MessageTypeScene, Data: cmd})
}

// SetCamera moves the chase camera
func (b *SceneBridge) SetCamera(pose camera.Pose) {
	b.emit(SceneCommand{Action: SceneActionCamera, Pose: &pose})
}

// SetViewMode toggles the aircraft model and globe icon
func (b *SceneBridge) SetViewMode(mode simulation.ViewMode) {
	b.emit(SceneCommand{Action: SceneActionViewMode, Mode: mode})
}

// FlyTo animates the camera to a point
func (b *SceneBridge) FlyTo(fly camera.FlyTo) {
	b.emit(SceneCommand{Action: SceneActionFlyTo, Target: &fly.Destination, Duration: fly.Duration.Seconds()})
}

// ShowWaypoint draws a waypoint marker
func (b *SceneBridge) ShowWaypoint(wp navigation.Waypoint) {
	b.emit(SceneCommand{Action: SceneActionShowWaypoint, Waypoint: &wp})
}

// RemoveWaypoint erases a waypoint marker
func (b *SceneBridge) RemoveWaypoint(id string) {
	b.emit(SceneCommand{Action: SceneActionRemoveWaypoint, ID: id})
}

// SetPath redraws the route polyline. An empty path clears it.
func (b *SceneBridge) SetPath(points []mgl64.Vec3) {
	b.emit(SceneCommand{Action: SceneActionSetPath, Path: line(points)})
}

// SetLeg redraws the line from the aircraft to the active waypoint
func (b *SceneBridge) SetLeg(points []mgl64.Vec3) {
	b.emit(SceneCommand{Action: SceneActionSetLeg, Path: line(points)})
}

func line(points []mgl64.Vec3) *[]mgl64.Vec3 {
	if points == nil {
		points = []mgl64.Vec3{}
	}
	return &points
}

// Audio actions
const (
	AudioActionPlay    = "play"
	AudioActionStop    = "stop"
	AudioActionStopAll = "stop_all"
	AudioActionEngine  = "engine"
)

// AudioCommand is the payload of an audio message
type AudioCommand struct {
	Action string      `json:"action"`
	Sound  audio.Sound `json:"sound,omitempty"`
	Loop   bool        `json:"loop,omitempty"`
	Volume float64     `json:"volume,omitempty"`
	Rate   float64     `json:"rate,omitempty"`
}

// AudioBridge is an audio.Sink that plays sounds in the browser
type AudioBridge struct {
	out Broadcaster
}

// NewAudioBridge creates an audio bridge
func NewAudioBridge(out Broadcaster) *AudioBridge {
	return &AudioBridge{out: out}
}

func (b *AudioBridge) emit(cmd AudioCommand) {
	b.out.Broadcast(&Message{Type: MessageTypeAudio, Data: cmd})
}

func (b *AudioBridge) Play(sound audio.Sound, loop bool, volume float64) {
	b.emit(AudioCommand{Action: AudioActionPlay, Sound: sound, Loop: loop, Volume: volume})
}

func (b *AudioBridge) Stop(sound audio.Sound) {
	b.emit(AudioCommand{Action: AudioActionStop, Sound: sound})
}

func (b *AudioBridge) StopAll() {
	b.emit(AudioCommand{Action: AudioActionStopAll})
}

func (b *AudioBridge) SetEngine(volume, rate float64) {
	b.emit(AudioCommand{Action: AudioActionEngine, Sound: audio.SoundEngine, Volume: volume, Rate: rate})
}

// TelemetryBroadcaster sends one telemetry message per tick
type TelemetryBroadcaster struct {
	out Broadcaster
}

// NewTelemetryBroadcaster creates a telemetry broadcaster
func NewTelemetryBroadcaster(out Broadcaster) *TelemetryBroadcaster {
	return &TelemetryBroadcaster{out: out}
}

// BroadcastTelemetry implements simulation.Broadcaster
func (b *TelemetryBroadcaster) BroadcastTelemetry(t simulation.Telemetry) {
	b.out.Broadcast(&Message{Type: MessageTypeTelemetry, Data: t})
}

// NavigationEvent is the payload of a navigation_event message
type NavigationEvent struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// NavigationEvents returns a navigation subscriber that forwards each event
func NavigationEvents(out Broadcaster) func(navigation.Event) {
	return func(ev navigation.Event) {
		data := any(ev)
		if done, ok := ev.(navigation.NavigationCompleted); ok {
			data = map[string]float64{"total_time": done.TotalTime.Seconds()}
		}
		out.Broadcast(&Message{
			Type: MessageTypeNavigationEvent,
			Data: NavigationEvent{Event: ev.EventType(), Data: data},
		})
	}
}
