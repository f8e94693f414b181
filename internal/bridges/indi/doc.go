// Package indi implements the upstream link to an INDI server.
//
// INDI (Instrument-Neutral Distributed Interface) is an XML protocol for
// astronomical hardware. An INDI server streams a sequence of top-level XML
// elements over TCP, one property definition or update at a time, with no
// enclosing document element.
//
// # Architecture
//
//	┌─────────────┐  Publisher   ┌─────────────┐   TCP/XML   ┌─────────────┐
//	│   gateway   │◄─────────────│    Link     │◄───────────►│ indiserver  │
//	│     Hub     │   commands   │ (this pkg)  │             │  + drivers  │
//	└─────────────┘─────────────►└─────────────┘             └─────────────┘
//
// # Key Responsibilities
//
//   - Connect to the INDI server and request every property (getProperties)
//   - Reassemble top-level elements from arbitrarily chunked input (Parser)
//   - Classify complete elements into messages, number and switch updates
//   - Auto-connect every device that reports CONNECTION in the Idle state
//   - Encode newSwitchVector / newNumberVector commands from clients
//   - Reconnect forever with a fixed delay after any failure
//
// # Offline behaviour
//
// While no connection is held, SendSwitch and SendNumber fail with
// ErrNotConnected. Commands are never queued.
//
// # Thread Safety
//
// Link is safe for concurrent use. Parser is not; each connection owns one.
package indi
