// Package api implements the client-facing side of the gateway.
//
// This package provides:
//   - The proxy listener: a websocket session on any path, plus a small REST
//     surface (health, metrics, device snapshot, command log)
//   - The web UI listener: a static file server for the browser UI
//   - The client session protocol: layout and snapshot on connect, live
//     property updates, and switch/number/config commands from the client
//
// # Session protocol
//
// Server to client, one JSON object per websocket text message:
//
//	{"devices": {...}}                                    stored layout, always first
//	{"device": "...", "name": "...", "state": "Ok", "keys": [{"key": "...", "value": ...}]}
//
// Client to server:
//
//	{"cmd": "switch", "device": "...", "name": "...", "keys": [{"key": "CONNECT", "value": true}]}
//	{"cmd": "number", "device": "...", "name": "...", "keys": [{"key": "FOCUS", "value": 42.5}]}
//	{"cmd": "config", "config": {"devices": {...}}}
//
// A command that cannot be carried out is answered on the same session with a
// proxy COMMAND_RESULT property in state Alert. A message that is not JSON or
// lacks a required field ends the session with close code 1003.
package api
