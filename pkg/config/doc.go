// Package config loads channelize client settings.
//
// Values are layered, later sources winning:
//
//  1. Defaults
//  2. A YAML file (--config)
//  3. CHANNELIZE_* environment variables, optionally read from a .env file
//  4. Command line flags that were set explicitly
//
// Unknown keys in the YAML file are rejected.
package config
