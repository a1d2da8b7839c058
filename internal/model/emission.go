package model

// EmissionKind identifies the backend primitive an emission is sent with
type EmissionKind string

const (
	EmissionEvent EmissionKind = "event"
	EmissionCount EmissionKind = "count"
	EmissionGauge EmissionKind = "gauge"
)

// Emission is one fully composed backend call waiting to be delivered.
// Name, Value and Tags are used by counts and gauges; Event by events.
type Emission struct {
	Kind  EmissionKind `json:"kind"`
	Name  string       `json:"name,omitempty"`
	Value float64      `json:"value,omitempty"`
	Tags  []string     `json:"tags,omitempty"`
	Event *Event       `json:"event,omitempty"`
}
