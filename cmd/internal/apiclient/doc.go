// Package apiclient is the HTTP dispatch layer for the document QA service.
//
// Every call goes through Client.Do, which attaches the stored bearer token,
// turns non-2xx responses into *APIError, and on a 401 runs one coalesced
// refresh followed by a single retry. Concurrent 401s that share the same
// stale access token wait on one /auth/refresh call.
//
// When the refresh itself fails the stored credentials are cleared, the
// re-authentication handler runs, and the caller receives an error that wraps
// both ErrReauthRequired and the refresh failure.
package apiclient
