package broker

import (
	"github.com/sshbroker/engine/pkg/transfer"
)

// Event is the uniform envelope for everything broadcast on the event
// channel: `ssh:data:<shellId>`, `ssh:close:<shellId>`, the upload/download
// progress/completed/error/cancelled family, tagged by whichever of
// taskId/shellId/connectionId applies.
type Event struct {
	Channel      string `cbor:"channel"`
	TaskID       string `cbor:"taskId,omitempty"`
	ShellID      string `cbor:"shellId,omitempty"`
	ConnectionID string `cbor:"connectionId,omitempty"`
	Data         any    `cbor:"data,omitempty"`
}

// progressPayload, completedPayload and errorPayload mirror the documented
// event payload shapes for the progress, completed and error transfer
// lifecycle events; the cancelled event carries no payload.
type progressPayload struct {
	Transferred    int64   `cbor:"transferred"`
	Total          int64   `cbor:"total"`
	Percentage     float64 `cbor:"percentage"`
	SpeedBytesSec  float64 `cbor:"speedBytesSec"`
	RemainingSecs  float64 `cbor:"remainingSecs"`
	Phase          string  `cbor:"phase"`
	CurrentFile    string  `cbor:"currentFile,omitempty"`
	FilesCompleted int     `cbor:"filesCompleted"`
}

type completedPayload struct {
	ArtifactPath string `cbor:"artifactPath"`
}

type errorPayload struct {
	Error string `cbor:"error"`
}

// EventBus is the broadcast half of C9: every publish is a non-blocking
// send into a bounded channel so a slow or absent consumer never stalls a
// transfer worker or shell read loop.
type EventBus struct {
	events chan Event
}

// NewEventBus constructs an EventBus with the given broadcast buffer depth.
func NewEventBus(buffer int) *EventBus {
	return &EventBus{events: make(chan Event, buffer)}
}

// Subscribe returns the channel events are broadcast on. There is exactly
// one consumer channel; fan-out to multiple external listeners is the
// caller's responsibility.
func (b *EventBus) Subscribe() <-chan Event {
	return b.events
}

func (b *EventBus) publish(ev Event) {
	select {
	case b.events <- ev:
	default:
		// consumer too slow or absent; drop rather than block a worker
	}
}

func directionChannel(d transfer.Direction, suffix string) string {
	if d == transfer.DirectionUpload {
		return "upload-" + suffix
	}

	return "download-" + suffix
}

// PublishProgress implements transfer.Publisher.
func (b *EventBus) PublishProgress(ev transfer.ProgressEvent) {
	b.publish(Event{
		Channel: directionChannel(ev.Direction, "progress"),
		TaskID:  ev.TaskID,
		Data: progressPayload{
			Transferred:    ev.Transferred,
			Total:          ev.Total,
			Percentage:     ev.Percentage,
			SpeedBytesSec:  ev.SpeedBytesSec,
			RemainingSecs:  ev.RemainingSecs,
			Phase:          string(ev.Phase),
			CurrentFile:    ev.CurrentFile,
			FilesCompleted: ev.FilesCompleted,
		},
	})
}

// PublishCompleted implements transfer.Publisher.
func (b *EventBus) PublishCompleted(ev transfer.CompletedEvent) {
	b.publish(Event{
		Channel: directionChannel(ev.Direction, "completed"),
		TaskID:  ev.TaskID,
		Data:    completedPayload{ArtifactPath: ev.ArtifactPath},
	})
}

// PublishError implements transfer.Publisher.
func (b *EventBus) PublishError(ev transfer.ErrorEvent) {
	msg := ""
	if ev.Err != nil {
		msg = ev.Err.Error()
	}

	b.publish(Event{
		Channel: directionChannel(ev.Direction, "error"),
		TaskID:  ev.TaskID,
		Data:    errorPayload{Error: msg},
	})
}

// PublishCancelled implements transfer.Publisher.
func (b *EventBus) PublishCancelled(ev transfer.CancelledEvent) {
	b.publish(Event{Channel: directionChannel(ev.Direction, "cancelled"), TaskID: ev.TaskID})
}

// PublishShellData forwards a shell's raw output bytes on its dedicated
// per-shell channel.
func (b *EventBus) PublishShellData(shellID string, data []byte) {
	b.publish(Event{Channel: "ssh:data:" + shellID, ShellID: shellID, Data: data})
}

// PublishShellClosed announces that shellID's stream has ended.
func (b *EventBus) PublishShellClosed(shellID string) {
	b.publish(Event{Channel: "ssh:close:" + shellID, ShellID: shellID})
}
