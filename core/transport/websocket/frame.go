package websocket

import (
	"errors"
	"fmt"
	"time"

	"github.com/koscakluka/ema-transcript/core/events"
)

var ErrUnknownFrameType = errors.New("unknown frame type")

// Frame is the JSON encoding of a single speech event on the wire. Type is
// the event kind.
type Frame struct {
	Type      string     `json:"type"`
	Text      string     `json:"text,omitempty"`
	FinalText *string    `json:"final_text,omitempty"`
	Source    string     `json:"source,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// Event decodes the frame into the typed event. Frames without a timestamp
// are stamped with the time of decoding.
func (f Frame) Event() (events.Event, error) {
	var opts []events.BaseOption
	if f.Timestamp != nil {
		opts = append(opts, events.WithTimestamp(*f.Timestamp))
	}

	switch events.Kind(f.Type) {
	case events.KindUserUtteranceCommitted:
		return events.NewUserUtteranceCommitted(f.Text, opts...), nil
	case events.KindAgentUtteranceCommitted:
		return events.NewAgentUtteranceCommitted(f.Text, f.Source, opts...), nil
	case events.KindDirectMessage:
		return events.NewDirectMessage(f.Text, opts...), nil
	case events.KindAgentSpeechStarted:
		return events.NewAgentSpeechStarted(opts...), nil
	case events.KindAgentSpeechInterrupted:
		return events.NewAgentSpeechInterrupted(opts...), nil
	case events.KindAgentSpeechStopped:
		if f.FinalText == nil {
			return events.NewAgentSpeechStoppedWithoutText(opts...), nil
		}
		return events.NewAgentSpeechStopped(*f.FinalText, opts...), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFrameType, f.Type)
	}
}

// NewFrame encodes an event for the wire.
func NewFrame(event events.Event) (Frame, error) {
	timestamp := event.Timestamp()
	frame := Frame{Type: string(event.Kind()), Timestamp: &timestamp}

	switch e := event.(type) {
	case events.UserUtteranceCommitted:
		frame.Text = e.Text
	case events.AgentUtteranceCommitted:
		frame.Text = e.Text
		frame.Source = e.Source
	case events.DirectMessage:
		frame.Text = e.Text
	case events.AgentSpeechStopped:
		frame.FinalText = e.FinalText
	case events.AgentSpeechStarted, events.AgentSpeechInterrupted:
	default:
		return Frame{}, fmt.Errorf("%w: %q", ErrUnknownFrameType, event.Kind())
	}
	return frame, nil
}
