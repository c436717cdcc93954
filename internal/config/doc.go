// Package config provides configuration loading and validation for the
// denoise service. Settings come from a YAML file; a handful of deployment
// values can be overridden from the environment (optionally seeded from a
// .env file).
package config
