// Package config handles loading and validating astroconsole configuration.
//
// This package manages:
//   - Loading configuration from a JSON file (decoded with the YAML decoder)
//   - Overriding with ASTROCONSOLE_* environment variables
//   - Validation of listener ports, upstream settings and optional sinks
//   - Default value handling when the file does not exist
//
// The same file also stores the web UI layout (the "devices" map and friends),
// which this package ignores; see package layout.
//
// Usage:
//
//	cfg, err := config.Load(config.DefaultPath)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.INDI.Address())
package config
