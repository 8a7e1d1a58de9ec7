// Package hold implements the connection hold protocol: a CI job stays
// alive while a remote debugging party is connected, and shuts down once
// the party disconnects or never shows up.
//
// Clients connect over TCP and send newline-delimited UTF-8 messages. The
// only reply in the protocol is the environment dump sent in response to
// MsgEnvStateRequested; every other message is fire-and-forget.
package hold

// Wire messages understood by the hold server.
const (
	// MsgConnectionEstablished announces a remote party. It refreshes
	// the heartbeat and widens the inactivity timeout for the rest of
	// the hold.
	MsgConnectionEstablished = "connection_established"

	// MsgKeepAlive refreshes the heartbeat.
	MsgKeepAlive = "keep_alive"

	// MsgConnectionClosed asks the hold to shut down promptly.
	MsgConnectionClosed = "connection_closed"

	// MsgEnvStateRequested asks for a one-line JSON dump of the job's
	// current filtered environment. The server replies and closes the
	// connection so the client can read to EOF.
	MsgEnvStateRequested = "env_state_requested"
)
