// Package assertions evaluates step assertions against a received response.
//
// Subjects are status, duration, header <Name> and body paths (gjson
// syntax with bracket indices). Operators cover equality, ordering,
// string matching, membership, type and length checks, JSON Schema
// validation (gojsonschema) and boolean expr-lang expressions. Every
// assertion of a step is evaluated; none short-circuits the others.
package assertions
