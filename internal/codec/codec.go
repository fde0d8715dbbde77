// Package codec encodes and decodes location feed messages.
//
// The wire shape is a JSON object with the fields the viewer page reads:
//
//	{"type":"client","id":"c1","name":"Alice","lat":10,"lng":20}
//
// "type" is the message kind, "id" the participant, "name" the optional
// display name. Remove messages carry only "type" and "id".
package codec

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pscheid92/gpsrelay/internal/domain"
)

var (
	ErrMalformed          = errors.New("payload is not a JSON object")
	ErrMissingKind        = errors.New("missing message type")
	ErrUnknownKind        = errors.New("unknown message type")
	ErrMissingParticipant = errors.New("client message without id")
)

// DecodeError reports an inbound payload that could not be turned into a
// LocationMessage. The payload must be dropped; the connection stays open.
type DecodeError struct {
	Cause error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode location message: %v", e.Cause)
}

func (e *DecodeError) Unwrap() error {
	return e.Cause
}

type wireMessage struct {
	Type string   `json:"type"`
	ID   string   `json:"id"`
	Name string   `json:"name,omitempty"`
	Lat  *float64 `json:"lat,omitempty"`
	Lng  *float64 `json:"lng,omitempty"`
}

// Encode serializes msg. Module and client messages always carry lat/lng,
// zero included; remove messages never do.
func Encode(msg domain.LocationMessage) ([]byte, error) {
	if !msg.Kind.Valid() {
		return nil, fmt.Errorf("encode location message: %w: %q", ErrUnknownKind, msg.Kind)
	}

	w := wireMessage{
		Type: string(msg.Kind),
		ID:   msg.ParticipantID,
	}
	if msg.HasPosition() {
		lat, lng := msg.Latitude, msg.Longitude
		w.Name = msg.DisplayName
		w.Lat = &lat
		w.Lng = &lng
	}

	data, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("encode location message: %w", err)
	}
	return data, nil
}

// Decode parses an inbound payload. Unknown fields are ignored.
// Every failure is a *DecodeError.
func Decode(data []byte) (domain.LocationMessage, error) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return domain.LocationMessage{}, &DecodeError{Cause: fmt.Errorf("%w: %v", ErrMalformed, err)}
	}

	if w.Type == "" {
		return domain.LocationMessage{}, &DecodeError{Cause: ErrMissingKind}
	}

	kind := domain.Kind(w.Type)
	if !kind.Valid() {
		return domain.LocationMessage{}, &DecodeError{Cause: fmt.Errorf("%w: %q", ErrUnknownKind, w.Type)}
	}

	if kind == domain.KindClient && w.ID == "" {
		return domain.LocationMessage{}, &DecodeError{Cause: ErrMissingParticipant}
	}

	msg := domain.LocationMessage{
		Kind:          kind,
		ParticipantID: w.ID,
		DisplayName:   w.Name,
	}
	if w.Lat != nil {
		msg.Latitude = *w.Lat
	}
	if w.Lng != nil {
		msg.Longitude = *w.Lng
	}
	return msg, nil
}

// RemoveMessage builds the removal notice for a departed participant.
func RemoveMessage(participantID string) domain.LocationMessage {
	return domain.LocationMessage{Kind: domain.KindRemove, ParticipantID: participantID}
}
