// Package relay implements the chat relay between anonymous visitors and
// operator (admin) connections.
//
// # Components
//
//   - Hub: the connection lifecycle manager. Every transport event
//     (connect, register, message, disconnect) enters here and runs under a
//     single mutex, so registry mutations, history appends and the resulting
//     fan-out never interleave between events.
//   - Router: visitor messages go to every admin and to the notification
//     sink; admin replies go to one connection. Both are filed in history.
//   - Broadcaster: pushes the visitor roster to each admin after any visitor
//     joins or leaves, and to an admin when it registers.
//
// # Connection States
//
//	Unregistered --registerVisitor--> Visitor --disconnect--> Closed
//	Unregistered --registerAdmin----> Admin   --disconnect--> Closed
//
// A connection holds one role for its lifetime. Registering the other role
// is refused with a registrationError frame.
//
// # Delivery
//
// Peers accept frames without blocking and drop them when their outbound
// queue is full. Delivery is best effort; there is no acknowledgement.
package relay
