// Package upload decides whether a trained adapter may be published to the
// real model registry, and provides both registry implementations.
//
// The [Guard] inspects a one-time [Signals] snapshot of the process. Any
// sign of a test run blocks the upload, and a blocked run is served by
// [InertRegistry], which returns a placeholder location without touching the
// network. Callers always build the same [Request] and call
// [Registry.Upload]; only the registry behind the interface changes.
package upload
