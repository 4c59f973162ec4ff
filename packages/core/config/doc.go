// Package config loads the tkrun project configuration.
//
// The first of .tkrun.json, tkrun.config.json or .tkrunrc found in the
// working directory is read on top of DefaultConfig. Named environments
// live in the "environments" object and are selected with --env or
// "defaultEnvironment".
package config
