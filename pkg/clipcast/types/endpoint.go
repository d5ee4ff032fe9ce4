package types

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Endpoint is an IPv4 address and TCP port. It serializes as the string
// "A.B.C.D:P" so it may be used as a map key in JSON, and is ordered
// lexicographically by (ip, port). Being a plain comparable struct, unlike
// net.IP's backing byte slice, it also works directly as a Go map key for
// the connected-peer registry.
type Endpoint struct {
	IP   [4]byte
	Port uint16
}

// PeerID identifies a peer by its overlay endpoint.
type PeerID = Endpoint

// NewEndpoint builds an Endpoint from an IPv4 address and port.
func NewEndpoint(ip net.IP, port uint16) Endpoint {
	var e Endpoint
	copy(e.IP[:], ip.To4())
	e.Port = port
	return e
}

// String renders the endpoint as "ip:port".
func (e Endpoint) String() string {
	return fmt.Sprintf("%d.%d.%d.%d:%d", e.IP[0], e.IP[1], e.IP[2], e.IP[3], e.Port)
}

// MarshalText implements encoding.TextMarshaler so an Endpoint can be used as
// a JSON object key or bare string value.
func (e Endpoint) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (e *Endpoint) UnmarshalText(text []byte) error {
	parsed, err := ParseEndpoint(string(text))
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}

// ParseEndpoint parses the "A.B.C.D:P" textual form.
func ParseEndpoint(s string) (Endpoint, error) {
	idx := strings.LastIndex(s, ":")
	if idx < 0 {
		return Endpoint{}, fmt.Errorf("clipcast/types: invalid endpoint %q: missing port", s)
	}
	host, portStr := s[:idx], s[idx+1:]
	ip := net.ParseIP(host)
	if ip == nil || ip.To4() == nil {
		return Endpoint{}, fmt.Errorf("clipcast/types: invalid endpoint %q: not an IPv4 address", s)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return Endpoint{}, fmt.Errorf("clipcast/types: invalid endpoint %q: %w", s, err)
	}
	return NewEndpoint(ip, uint16(port)), nil
}

// Less orders endpoints lexicographically by the IP octets followed by the
// port.
func (e Endpoint) Less(other Endpoint) bool {
	for i := 0; i < 4; i++ {
		if e.IP[i] != other.IP[i] {
			return e.IP[i] < other.IP[i]
		}
	}
	return e.Port < other.Port
}

// Equal reports whether e and other name the same endpoint.
func (e Endpoint) Equal(other Endpoint) bool {
	return e == other
}
