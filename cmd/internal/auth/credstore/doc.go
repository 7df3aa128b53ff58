// Package credstore persists the client's credential pair (access token +
// refresh token) across runs.
//
// The contract is a plain key-value store with two well-known keys. Both
// credentials are always written and cleared together; stores that can do
// this in a single step implement PairStore, and the package helpers prefer
// that path. Values are stored in plain text: protecting them from other
// processes of the same user is out of scope.
package credstore
