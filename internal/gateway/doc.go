// Package gateway holds the device model and fans it out to clients.
//
// The Store is the last known value of every INDI property, keyed by device
// and property name, plus the reserved proxy/CONNECTION property that mirrors
// the upstream link. The Hub owns the Store and the set of subscribed client
// sessions. A single goroutine (Hub.Run) applies every change, so the Store
// and the subscriber set are only ever touched from one place:
//
//	indi.Link ──Publish/Connected/Disconnected──► events ──► Hub.Run
//	api session ──Subscribe/Unsubscribe/Snapshot──►  │        │
//	                                                 └────────┴─► Store, subscribers, sinks
//
// A subscriber receives the whole snapshot in one delivery, queued ahead of
// any later update, so every client sees snapshot-then-live with nothing
// missing or repeated.
package gateway
