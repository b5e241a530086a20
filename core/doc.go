// Package core contains the canonical connection domain: the service
// catalog, credential and hub entities, store contracts, and the Broker
// that orchestrates connect, callback, disconnect, and status flows.
// Provider adapters and transports depend on this package; core must not
// depend on them.
package core
