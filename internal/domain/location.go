package domain

// Kind is the message category on the location feed.
type Kind string

const (
	KindModule Kind = "module"
	KindClient Kind = "client"
	KindRemove Kind = "remove"
)

// ModuleParticipantID is the reserved participant id of the device feed.
// Viewers may still pick it; their messages are then indistinguishable
// from the device.
const ModuleParticipantID = "module"

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindModule, KindClient, KindRemove:
		return true
	default:
		return false
	}
}

// LocationMessage is one unit on the location feed.
// Remove messages carry only ParticipantID.
type LocationMessage struct {
	Kind          Kind
	ParticipantID string
	DisplayName   string
	Latitude      float64
	Longitude     float64
}

// HasPosition reports whether the message carries a latitude/longitude pair.
func (m LocationMessage) HasPosition() bool {
	return m.Kind == KindModule || m.Kind == KindClient
}

// Identity is what a viewer claims about itself in its client messages.
type Identity struct {
	ParticipantID string
	DisplayName   string
}
