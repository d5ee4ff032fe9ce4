package transport

import "errors"

// ErrWrongDirection is a direction-violation programming fault: e.g. calling
// ReadMessage on an incoming JoinConnection, or Respond on an outgoing one.
// It signals a bug in the caller, not a transport failure.
var ErrWrongDirection = errors.New("clipcast/transport: operation not permitted for this connection's direction")

// ErrMisroutedResponse describes a JoinResponse that names a target other
// than the local node, indicating misrouted reverse-path traffic. No function
// in clipcast returns it: PerformJoin logs such a response and drops that
// bootstrap connection.
var ErrMisroutedResponse = errors.New("clipcast/transport: join response targeted a different node")

// ErrUnexpectedMessageType is a protocol error: a message variant arrived
// that the connection kind or state does not permit.
var ErrUnexpectedMessageType = errors.New("clipcast/transport: unexpected message type for this connection")
