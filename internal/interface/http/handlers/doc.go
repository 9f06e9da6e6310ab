// Package handlers contains reusable HTTP middleware and the health checker
// of the companion API.
//
// # Health Checks
//
// Named checks run in parallel, each under its own timeout. A failing
// critical check turns /health into a 503; a failing degraded check only
// changes the reported status. Stats snapshots ride along:
//
//	checker := handlers.NewCompositeHealthChecker("0.1.0")
//	checker.AddCheck("storage", handlers.NewPingCheck(repo))
//	checker.AddDegradedCheck("guidance", breakerCheck)
//	checker.AddStats("event_bus", func() any { return bus.Stats() })
//
//	status := checker.Check(ctx)
//
// # Authentication
//
// Mutating routes are guarded by a bearer token verified against a bcrypt
// hash. An empty hash disables the check, which is the default for a
// companion bound to localhost.
package handlers
