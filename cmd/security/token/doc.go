// Package token decodes the bearer tokens issued by the document QA backend.
//
// Decoding is client-side only: signatures are never verified, so decoded
// claims are display data (who am I, which role, when does it expire) and
// must not be treated as proof of authorization. The backend remains the sole
// verifier.
//
// Expiry checks fail closed: a token that cannot be decoded, or that carries
// no exp claim, is reported as expired.
package token
