// Package password holds the client-side password policy.
//
// The service does its own hashing and enforcement; this package only rejects
// obviously unacceptable input before it leaves the machine:
// - Length bounds counted in runes
// - An optional minimal weak-pattern check
// - Confirmation matching for signup and reset forms
package password
