package bridge

import "errors"

// Bridge-level failures. These surface as Go errors to callers; tool-reported
// failures do not, they come back as result text prefixed with "Error: ".
var (
	// ErrConnection indicates the tool server subprocess could not be
	// started or the session handshake failed.
	ErrConnection = errors.New("bridge: connection failed")

	// ErrDiscovery indicates tool listing failed or a listed tool carries
	// a schema the bridge cannot represent.
	ErrDiscovery = errors.New("bridge: tool discovery failed")

	// ErrArgument indicates a tool invocation was rejected before leaving
	// the process: unknown tool, missing required argument, or an argument
	// the tool does not declare.
	ErrArgument = errors.New("bridge: invalid tool arguments")

	// ErrIO indicates the transport failed mid-invocation.
	ErrIO = errors.New("bridge: transport failed")
)
