package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/yegors/co-flight/internal/simulation"
)

// InputSink receives raw user input. *simulation.Simulator implements it.
type InputSink interface {
	SetKey(ctx context.Context, key string, pressed bool) error
	PointerDown(ctx context.Context, x, y float64) error
	PointerMove(ctx context.Context, x, y float64) error
	PointerUp(ctx context.Context) error
	Wheel(ctx context.Context, delta float64) error
	SetViewMode(ctx context.Context, mode simulation.ViewMode) error
	UnlockAudio(ctx context.Context) error
}

// InputHandler routes incoming client messages to the simulator
type InputHandler struct {
	sink    InputSink
	timeout time.Duration
}

// NewInputHandler creates an input handler. timeout bounds each command
// while the simulation loop is busy.
func NewInputHandler(sink InputSink, timeout time.Duration) *InputHandler {
	if timeout <= 0 {
		timeout = time.Second
	}
	return &InputHandler{sink: sink, timeout: timeout}
}

type keyInput struct {
	Key string `json:"key"`
}

type pointerInput struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type wheelInput struct {
	Delta float64 `json:"delta"`
}

type viewModeInput struct {
	Mode string `json:"mode"`
}

// HandleMessage implements MessageHandler
func (h *InputHandler) HandleMessage(client *Client, messageType string, data json.RawMessage) error {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	switch messageType {
	case MessageTypeKeyDown, MessageTypeKeyUp:
		var in keyInput
		if err := decode(data, &in); err != nil {
			return err
		}
		if in.Key == "" {
			return fmt.Errorf("%s: missing key", messageType)
		}
		return h.sink.SetKey(ctx, in.Key, messageType == MessageTypeKeyDown)

	case MessageTypePointerDown, MessageTypePointerMove:
		var in pointerInput
		if err := decode(data, &in); err != nil {
			return err
		}
		if messageType == MessageTypePointerDown {
			return h.sink.PointerDown(ctx, in.X, in.Y)
		}
		return h.sink.PointerMove(ctx, in.X, in.Y)

	case MessageTypePointerUp:
		return h.sink.PointerUp(ctx)

	case MessageTypeWheel:
		var in wheelInput
		if err := decode(data, &in); err != nil {
			return err
		}
		return h.sink.Wheel(ctx, in.Delta)

	case MessageTypeViewMode:
		var in viewModeInput
		if err := decode(data, &in); err != nil {
			return err
		}
		mode, err := simulation.ParseViewMode(in.Mode)
		if err != nil {
			return err
		}
		return h.sink.SetViewMode(ctx, mode)

	case MessageTypeAudioUnlock:
		return h.sink.UnlockAudio(ctx)

	default:
		return fmt.Errorf("unknown message type %q", messageType)
	}
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("missing message data")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("invalid message data: %w", err)
	}
	return nil
}
