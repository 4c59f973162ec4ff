// Package capture extracts values from HTTP responses for use in later steps.
//
// It supports capturing values from:
//   - Response body (gjson paths, bracket indices allowed)
//   - Response headers
//   - Response status code and duration
//
// Captured values are bound as both ${name} and ${step.name}.
package capture
