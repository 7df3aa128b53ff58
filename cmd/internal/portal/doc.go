// Package portal serves the local HTTP face of the client.
//
// Each route stands in for a page of the web app: /login, /signup,
// /forgot-password and /reset-password are public; /dashboard, /ask and
// /upload need a session; /admin needs the admin role. Guarded routes go
// through guard.Protect, so a caller without a session is redirected to
// /login and a non-admin on /admin is redirected to /dashboard.
//
// The portal is meant to listen on loopback only. It holds the user's
// credentials and has no authentication of its own.
package portal
