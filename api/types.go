// File: api/types.go
// Author: momentics <momentics@gmail.com>
//
// Shared API-level type declarations, DTOs, and constants.

package api

// EndpointState enumerates the lifecycle of a socket endpoint.
type EndpointState string

const (
	EndpointOpen    EndpointState = "open"
	EndpointClosing EndpointState = "closing"
	EndpointClosed  EndpointState = "closed"
)

func (s EndpointState) String() string { return string(s) }

// EndpointRole is fixed at construction.
type EndpointRole string

const (
	RoleConsumer EndpointRole = "consumer"
	RoleProducer EndpointRole = "producer"
)

// TransportStats is the per-transport counter snapshot reported by dumps.
type TransportStats struct {
	FramesReceived uint64 `json:"framesReceived"`
	FramesSent     uint64 `json:"framesSent"`
	BytesReceived  uint64 `json:"bytesReceived"`
	BytesSent      uint64 `json:"bytesSent"`
	DecodeErrors   uint64 `json:"decodeErrors"`
	ProtocolErrors uint64 `json:"protocolErrors"`
}
