// Command validate checks bridge configuration files before they are deployed.
// Files are given as arguments; with none it scans ../configs for *.json,
// *.yaml and *.yml files. For each file it checks:
//   - The file exists and parses as JSON or YAML
//   - bind_address, port, idle_timeout_seconds and max_connections are usable
//   - Optionally (-check-port) that the configured port can be bound on this host
package main

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/wricardo/bridge/bridge/config"
)

// ValidationResult captures the outcome of validating a single file.
// If Valid is true, Errors contains informational messages; otherwise it
// accumulates the validation errors that were found.
type ValidationResult struct {
	File   string
	Valid  bool
	Errors []string
}

// validateConfig loads and validates a single configuration file. When
// checkPort is set it also tries to bind the configured address.
func validateConfig(filePath string, checkPort bool) ValidationResult {
	result := ValidationResult{
		File:   filepath.Base(filePath),
		Valid:  true,
		Errors: []string{},
	}

	if _, err := os.Stat(filePath); err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf("Failed to read file: %v", err))
		return result
	}

	opts, err := config.LoadOptions(filePath)
	if err != nil {
		result.Valid = false
		if errors.Is(err, config.ErrUnsupportedFormat) {
			result.Errors = append(result.Errors, fmt.Sprintf("Unsupported format: %s", filepath.Ext(filePath)))
		} else {
			result.Errors = append(result.Errors, fmt.Sprintf("Invalid config: %v", err))
		}
		return result
	}

	if err := opts.Validate(); err != nil {
		result.Valid = false
		msg := strings.TrimPrefix(err.Error(), config.ErrInvalidConfig.Error()+": ")
		for _, problem := range strings.Split(msg, "; ") {
			result.Errors = append(result.Errors, problem)
		}
		return result
	}

	result.Errors = append(result.Errors,
		fmt.Sprintf("✓ Listen address: %s:%d", opts.BindAddress, opts.Port),
		fmt.Sprintf("✓ Idle timeout: %ds", opts.IdleTimeoutSeconds),
	)
	if opts.MaxConnections == 0 {
		result.Errors = append(result.Errors, "✓ Max connections: unlimited")
	} else {
		result.Errors = append(result.Errors, fmt.Sprintf("✓ Max connections: %d", opts.MaxConnections))
	}

	if checkPort {
		cfg, _ := config.New(opts)
		if err := portFree(cfg.Addr()); err != nil {
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf("Port unavailable: %v", err))
		} else {
			result.Errors = append(result.Errors, fmt.Sprintf("✓ Port %d is free", opts.Port))
		}
	}

	return result
}

// portFree binds addr and releases it immediately.
func portFree(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return ln.Close()
}

// findConfigs lists the configuration files under dir.
func findConfigs(dir string) ([]string, error) {
	var files []string
	for _, pattern := range []string{"*.json", "*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		files = append(files, matches...)
	}
	return files, nil
}

// main validates each file, printing a concise report and exiting with
// non-zero status if any are invalid.
func main() {
	checkPort := flag.Bool("check-port", false, "check that each configured port can be bound")
	flag.Parse()

	files := flag.Args()
	if len(files) == 0 {
		var err error
		files, err = findConfigs("../configs")
		if err != nil {
			fmt.Printf("Error finding config files: %v\n", err)
			os.Exit(1)
		}
	}
	if len(files) == 0 {
		fmt.Println("No configuration files found")
		os.Exit(1)
	}

	allValid := true
	for _, file := range files {
		result := validateConfig(file, *checkPort)

		fmt.Printf("\n%s %s\n", strings.Repeat("=", 20), result.File)

		if result.Valid {
			fmt.Println("✅ VALID")
			for _, info := range result.Errors {
				fmt.Println("  " + info)
			}
		} else {
			fmt.Println("❌ INVALID")
			allValid = false
			for _, err := range result.Errors {
				if !strings.HasPrefix(err, "✓") {
					fmt.Println("  ❌ " + err)
				}
			}
		}
	}

	fmt.Printf("\n%s\n", strings.Repeat("=", 40))
	if allValid {
		fmt.Println("✅ All configurations are valid!")
	} else {
		fmt.Println("❌ Some configurations have errors")
		os.Exit(1)
	}
}
