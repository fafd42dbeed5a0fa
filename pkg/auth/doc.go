// Package auth provides credential primitives: HS256 session tokens
// carrying {user_id, email} claims with a one hour expiry, password
// hashing, and the Identity type trusted by the rest of the pipeline.
package auth
