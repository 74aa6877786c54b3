package protocol

import "github.com/teslashibe/go-jellyfish/pkg/tracking"

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// SlotStates converts tracker slots into their dashboard view.
// Inactive slots are zeroed the same way the OSC payload zeroes them.
func SlotStates(slots []tracking.Slot) []SlotState {
	states := make([]SlotState, len(slots))
	for i, s := range slots {
		states[i] = SlotState{Index: i}
		if !s.Active {
			continue
		}
		states[i] = SlotState{
			Index:     i,
			Active:    true,
			X:         s.Position.X,
			Y:         s.Position.Y,
			Z:         s.Depth(),
			Size:      s.Size,
			Energy:    s.Energy,
			MissCount: s.MissCount,
		}
	}
	return states
}

// NewSlotsMessage creates a slot snapshot message
func NewSlotsMessage(frame uint64, slots []tracking.Slot) (*Message, error) {
	return NewMessage(TypeSlots, SlotsData{
		Frame: frame,
		Slots: SlotStates(slots),
	})
}

// NewStatusMessage creates a status message
func NewStatusMessage(status StatusData) (*Message, error) {
	return NewMessage(TypeStatus, status)
}

// NewFrameMessage creates a frame metadata message
func NewFrameMessage(width, height int, frameID uint64) (*Message, error) {
	return NewMessage(TypeFrame, FrameData{
		Width:   width,
		Height:  height,
		Format:  "jpeg",
		FrameID: frameID,
	})
}

// =============================================================================
// Helper functions for parsing messages
// =============================================================================

// GetSlotsData extracts a slot snapshot from a message
func (m *Message) GetSlotsData() (*SlotsData, error) {
	var data SlotsData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetStatusData extracts status counters from a message
func (m *Message) GetStatusData() (*StatusData, error) {
	var data StatusData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetFrameData extracts frame metadata from a message
func (m *Message) GetFrameData() (*FrameData, error) {
	var data FrameData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}
