// Package providers contains the OAuth2 adapter and the per-service
// dialect packages built on it.
package providers
