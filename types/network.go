package types

import "fmt"

// TransportKind tags which concrete Transport variant is in use (spec §3,
// §6 "Transport URIs").
type TransportKind int

const (
	TransportUnix TransportKind = iota
	TransportTCP
	TransportVsock
)

// Transport addresses one endpoint of the host↔guest control plane. Exactly
// one field group applies, selected by Kind.
type Transport struct {
	Kind TransportKind

	SocketPath string // Unix

	Host string // TCP
	Port int    // TCP, Vsock

	CID uint32 // Vsock
}

// URI renders the transport as the wire-format URI from spec §6.
func (t Transport) URI() string {
	switch t.Kind {
	case TransportUnix:
		return "unix://" + t.SocketPath
	case TransportTCP:
		return fmt.Sprintf("tcp://%s:%d", t.Host, t.Port)
	case TransportVsock:
		return fmt.Sprintf("vsock://%d:%d", t.CID, t.Port)
	default:
		return ""
	}
}

// ConnectionType is the socket semantics a NetworkBackendEndpoint exposes.
type ConnectionType int

const (
	ConnUnixStream ConnectionType = iota
	ConnUnixDgram
)

// NetworkBackendEndpoint is the handle a NetworkBackend hands to the shim
// (spec §3).
type NetworkBackendEndpoint struct {
	SocketPath string         `json:"socket_path"`
	Connection ConnectionType `json:"connection_type"`
	MAC        [6]byte        `json:"mac_address"`
}

// MACString renders MAC in colon-hex form, e.g. "52:54:00:12:34:56".
func (e NetworkBackendEndpoint) MACString() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x",
		e.MAC[0], e.MAC[1], e.MAC[2], e.MAC[3], e.MAC[4], e.MAC[5])
}

// PortProtocol is a transport-layer protocol for a published port mapping.
type PortProtocol string

const (
	ProtoTCP PortProtocol = "tcp"
	ProtoUDP PortProtocol = "udp"
)

// PortMapping pairs a guest-exposed port with an optional host override
// (spec §6 BoxOptions.ports).
type PortMapping struct {
	HostPort  int          `json:"host_port,omitempty"`
	GuestPort int          `json:"guest_port"`
	Protocol  PortProtocol `json:"protocol"`
	HostIP    string       `json:"host_ip,omitempty"`
}

// NetworkBackendConfig is the only structure callers of NetworkBackend need
// to know about — which concrete userspace network process eventually
// serves the box's traffic is hidden behind it (spec glossary
// "NetworkBackend").
type NetworkBackendConfig struct {
	PortMappings []PortMapping `json:"port_mappings"`
}
