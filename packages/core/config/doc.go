// Package config holds the resolved testhost configuration model.
//
// It provides functionality for:
//   - Default values for every setting, applied through GetX accessors
//   - Loading testhost.config.json / testhost.config.yaml files
//   - JSON Schema validation of config files
//   - Merging a file configuration with command line overrides
package config
