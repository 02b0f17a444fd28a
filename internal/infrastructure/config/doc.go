// Package config handles loading and validating avrctl configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Loading an optional .env file into the process environment
//   - Overriding with AVRCTL_* environment variables
//   - Validation of required fields
//
// Sensitive values (MQTT password, InfluxDB token) should be set via
// environment variables rather than committed to the YAML file.
//
// Usage:
//
//	if err := config.LoadDotEnv(".env"); err != nil {
//	    log.Fatal(err)
//	}
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
