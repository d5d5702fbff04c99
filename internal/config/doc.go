// Package config loads docstore settings from YAML, .env files and the
// environment.
package config
