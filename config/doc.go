// Package config loads the observer's configuration.
//
// Settings come from a YAML file, then a .env file, then OBSERVER_*
// environment variables, each layer overriding the previous one:
//
//	cfg, err := config.Load("observer", config.WithConfigFile("config.yml"))
//
// OBSERVER_STATE_STORE_BACKEND=redis sets state_store.backend. Every
// section provides ApplyDefaults and Validate.
package config
