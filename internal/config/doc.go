// Package config loads the client configuration from YAML or TOML files
// with environment variable expansion and duration parsing.
package config
