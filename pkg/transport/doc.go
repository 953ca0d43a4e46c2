// Package transport provides the length-prefixed TCP transport used by the
// Plankton control server and client.
//
// Every message is sent as one frame: a 4-byte big-endian length followed by
// the payload. Frames carry JSON-RPC documents, but the transport itself is
// payload-agnostic.
//
//	+--------+--------+--------+--------+--------  ...  --------+
//	|         length (uint32, BE)       |       payload         |
//	+--------+--------+--------+--------+--------  ...  --------+
//
// The Server accepts connections and hands received frames to a callback;
// replies are written with ServerConn.Send. The Client side is a single
// blocking connection with read deadlines.
package transport
