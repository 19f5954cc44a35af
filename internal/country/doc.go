// Package country holds the lookup domain model: criteria selection, the
// outcome union stored per criteria key, and the failure taxonomy surfaced to
// HTTP callers. It also declares the ports the orchestrator depends on.
package country
