package models

import (
	"strings"
	"time"
)

// ParkingSpace is one physical bay. SessionID is set only while an ACTIVE session holds it.
type ParkingSpace struct {
	ID             int64        `json:"id"`
	Label          string       `json:"label"`
	Class          VehicleClass `json:"vehicle_class"`
	State          SpaceState   `json:"state"`
	SessionID      *int64       `json:"session_id,omitempty"`
	SensorChannel  int          `json:"sensor_channel"`
	LastSensorAt   *time.Time   `json:"last_sensor_at,omitempty"`
	SensorOccupied *bool        `json:"sensor_occupied,omitempty"`
}

// Assignable reports whether the space may be handed to a new session.
func (s ParkingSpace) Assignable() bool {
	return s.State == SpaceAvailable && s.SessionID == nil
}

// LabelLess orders space labels by their letter prefix, then by the number that follows it,
// so "A2" sorts before "A10". Ties fall back to byte order of the whole label.
func LabelLess(a, b string) bool {
	pa, na := splitLabel(a)
	pb, nb := splitLabel(b)
	if pa != pb {
		return pa < pb
	}
	if len(na) != len(nb) {
		return len(na) < len(nb)
	}
	if na != nb {
		return na < nb
	}
	return a < b
}

// splitLabel returns the leading non-digit prefix and the following digit run without leading zeros.
func splitLabel(label string) (string, string) {
	i := strings.IndexFunc(label, isDigit)
	if i < 0 {
		return label, ""
	}
	rest := label[i:]
	j := strings.IndexFunc(rest, func(r rune) bool { return !isDigit(r) })
	if j < 0 {
		j = len(rest)
	}
	return label[:i], strings.TrimLeft(rest[:j], "0")
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}
