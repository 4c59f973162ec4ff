// Package cmd implements the tkrun CLI commands using Cobra.
//
// Available commands:
//   - test: run a test file, or every test file under a directory
//   - validate: check test files without executing them
//   - list: show the steps of each test file
//   - history: show recorded runs
//   - init: create a config file and an example test
//   - version: show version information
package cmd
