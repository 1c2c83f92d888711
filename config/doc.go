// Package config loads portforge configuration.
//
// Values come from a YAML file (portforge.yml, config/config.yml, the user
// config dir or /etc/portforge), an optional .env file, and PORTFORGE_*
// environment variables, in increasing precedence. Nested keys map to
// underscore-separated variables:
//
//	PORTFORGE_SCHEDULER_MAX_CONCURRENCY=8
//	PORTFORGE_PATHS_PORTS_DIR=/usr/ports
//
// Usage:
//
//	cfg, err := config.Load("portforge", config.WithConfigFile(path))
package config
