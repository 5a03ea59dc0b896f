// Package config loads embedgate settings from an optional YAML file
// with environment-variable expansion, then layers environment
// overrides on top. Defaults run with environment-detected provider
// selection, an in-memory cache and deferred execution disabled.
package config
