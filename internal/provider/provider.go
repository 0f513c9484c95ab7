// Package provider contains identification service clients (AcoustID,
// MusicBrainz, iTunes).
//
// The Lookup and Enricher interfaces are defined in internal/identify,
// following the Go convention of defining interfaces where they are consumed.
// Each sub-package here implements one of them for a specific service.
package provider
