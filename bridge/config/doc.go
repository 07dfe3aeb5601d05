// Package config provides the acceptor configuration for the bridge.
//
// The config package handles:
//   - Loading bind address, port and idle timeout from JSON or YAML files
//   - Validation of the loaded values
//   - Freezing validated values into an immutable Config
//
// Configuration Format:
//
//	bind_address: 0.0.0.0
//	port: 9999
//	idle_timeout_seconds: 180
//	max_connections: 0
//
// Values missing from the file fall back to the defaults. Command-line flags and
// environment variables are layered on top of the file by the caller before
// New is invoked; once built, a Config never changes.
//
// Usage:
//
//	opts, err := config.LoadOptions("bridge.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//	opts.Port = 10001
//
//	cfg, err := config.New(opts)
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(cfg.Addr())
package config
