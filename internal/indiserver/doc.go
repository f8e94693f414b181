// Package indiserver supervises a local indiserver process.
//
// When the gateway runs on the same machine as the drivers, it can start
// indiserver itself instead of relying on a system service:
//
//	sup := indiserver.New(indiserver.Config{
//	    Binary:  "indiserver",
//	    Port:    7624,
//	    Drivers: []string{"indi_simulator_ccd", "indi_simulator_telescope"},
//	}, logger)
//
//	err := sup.Run(ctx) // returns when ctx is cancelled
//
// Features:
//   - Restart after a fixed delay when indiserver exits
//   - SIGTERM to the process group on shutdown, SIGKILL after a grace period
//   - indiserver stdout/stderr forwarded to the logger line by line
//
// The upstream link does not depend on the supervisor: it keeps retrying
// until the server accepts connections.
package indiserver
