// Package config loads and validates camlinkd configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with CAMLINK_* environment variables
//   - Validation of required fields, all problems reported together
//   - Default value handling
//
// Security Considerations:
//   - Sensitive values (passwords, tokens, the JWT secret) should be set via
//     environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load(config.Path())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Node.Name)
package config
