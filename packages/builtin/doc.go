// Package builtin provides the functions callable from placeholders in
// tkrun documents, e.g. ${uuid()} or ${base64("user:pass")}.
//
// Available functions:
//   - uuid(): random UUID v4
//   - now(), isodate(): current time in RFC 3339
//   - timestamp(), timestampMs(): Unix time
//   - date(layout): current UTC date in a Go time layout
//   - random(min, max), randomString(length), randomEmail()
//   - base64(value), base64Decode(value), md5(value), sha256(value)
//   - urlEncode(value), urlDecode(value), lower(value), upper(value)
package builtin
