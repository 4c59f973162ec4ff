// Package parser turns tkrun YAML test documents into executable plans.
//
// Two document shapes are accepted: a top-level list of steps, or a mapping
// with `steps`, `vars` and `config`. Each step carries a request (either a
// `request` block or a method shorthand such as `GET: /users`), assertions,
// captures and execution directives (timeout, retry, optional, when, skip).
//
// Parsing is pure. Placeholders such as ${token} are kept verbatim and
// resolved later by the env package.
package parser
