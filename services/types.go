package services

import (
	"time"

	"github.com/mbocsi/qnob/bridge"
)

// StateInfo is the bridge state as presented to adapters.
type StateInfo struct {
	Volume      bridge.VolumeState     `json:"volume"`
	Playback    bridge.PlaybackState   `json:"playback"`
	LastSent    *int                   `json:"last_sent,omitempty"`
	Suppressing bool                   `json:"suppressing"`
	Session     bridge.SessionSnapshot `json:"session"`
}

// TransportInfo describes one channel of the bridge.
type TransportInfo struct {
	Kind        string    `json:"kind"`
	Status      string    `json:"status"`
	Label       string    `json:"label,omitempty"`
	Address     string    `json:"address,omitempty"`
	ConnectedAt time.Time `json:"connected_at,omitempty"`
}

// MQTTRequest carries broker settings as typed by the operator. Port stays a
// string so it is validated here rather than by the decoder.
type MQTTRequest struct {
	Broker   string `json:"broker"`
	Port     string `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type StaticIPRequest struct {
	IP      string `json:"ip"`
	Gateway string `json:"gateway"`
	Subnet  string `json:"subnet"`
	DNS1    string `json:"dns1"`
	DNS2    string `json:"dns2"`
}

type SoundMQTTRequest struct {
	URL      string `json:"url"`
	Port     string `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// ServiceError represents structured service layer errors
type ServiceError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e ServiceError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e ServiceError) Unwrap() error { return e.Cause }

// Common error codes
const (
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeTimeout      = "TIMEOUT"
	ErrCodeConflict     = "CONFLICT"
	ErrCodeUnavailable  = "UNAVAILABLE"
	ErrCodeInternal     = "INTERNAL_ERROR"
)
