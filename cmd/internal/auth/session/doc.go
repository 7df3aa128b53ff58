// Package session owns the client-side authentication state.
//
// A Controller moves between three states: Loading until Start has inspected
// the stored credentials, then Anonymous or Authenticated. Login and Signup
// move Anonymous to Authenticated; Logout and Expire move back.
//
// Identity is derived from the access token claims (id, role) plus whatever
// profile data the service returned. Profile fields are optional: after a
// cold start only the claims are known.
//
// Server-side token verification is out of scope. Claims are read unverified.
package session
