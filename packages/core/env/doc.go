// Package env holds run variables and resolves ${...} placeholders.
//
// It provides:
//   - VariableTable, the per-run store of variables and captures
//   - Resolver for ${name}, ${name:-default}, ${env.NAME} and ${fn(args)}
//   - .env loading and named environments from the config file
package env
