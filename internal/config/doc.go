// Package config loads YAML configuration for the gatherer and the query server.
//
// ${VAR} references are expanded from the environment after an optional dotenv
// file has been loaded, so credentials can live outside the YAML.
package config
