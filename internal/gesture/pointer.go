package gesture

import "time"

// Kind is the normalized pointer phase. Mouse, touch and pen input are all
// mapped onto these four by the host.
type Kind string

const (
	Down   Kind = "down"
	Move   Kind = "move"
	Up     Kind = "up"
	Cancel Kind = "cancel"
)

// TargetKind says what the pointer went down on.
type TargetKind string

const (
	TargetGrid         TargetKind = "grid"
	TargetEventBody    TargetKind = "event"
	TargetHandleTop    TargetKind = "handle-top"
	TargetHandleBottom TargetKind = "handle-bottom"
)

// Target identifies the day column and, for event presses, the event.
type Target struct {
	Kind    TargetKind `json:"kind"`
	EventID string     `json:"event_id,omitempty"`
	Date    string     `json:"date"`
}

func (t Target) onEvent() bool {
	switch t.Kind {
	case TargetEventBody, TargetHandleTop, TargetHandleBottom:
		return t.EventID != ""
	default:
		return false
	}
}

// PointerEvent is one normalized input sample. X is viewport-relative; Y is
// the grid content coordinate (scroll offset already applied), so Y maps
// directly onto minutes since midnight.
type PointerEvent struct {
	Kind      Kind
	PointerID int
	X, Y      float64
	At        time.Time
	Target    Target
}

// SheetMode is how the edit sheet should be presented for a new draft.
type SheetMode string

const (
	// SheetPreview is the collapsed sheet shown after a long-press.
	SheetPreview SheetMode = "preview"
	// SheetOpen is the full sheet shown after a tap or an explicit request.
	SheetOpen SheetMode = "open"
)
