// Package protocol implements the chat wire format.
//
// Inbound frames are JSON objects discriminated by a "type" field:
//   - {"type":"typing"}
//   - {"type":"chunk","content":"..."}
//   - {"type":"complete"}
//   - {"type":"error","message":"..."}
//
// Outbound frames carry the user text and a stable client identifier:
//   - {"message":"...","user_id":"..."}
//
// Decode maps a frame to one of the Event variants. Well-formed frames with a type this
// package does not know decode to Unknown so that newer servers do not break older clients.
package protocol
