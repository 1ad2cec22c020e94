// Package metrics defines the Prometheus collectors of the session engine.
//
// Collectors are registered on the Registerer handed to New, never on the
// global default registry. A nil *Metrics records nothing.
package metrics
