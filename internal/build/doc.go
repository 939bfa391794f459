// Package build provides the canonical build execution pipeline for sitebuilder.
//
// A build runs as a state machine:
//
//	Idle -> Enumerating -> Rendering -> Validating -> FeedGenerating -> Done
//
// with Failed reachable from every stage. No stage starts before the previous
// one has processed every item, so link validation always sees the complete
// document set. All execution paths (build, freeze, check, serve) route
// through BuildService.
//
// Fatal failures are wrapped around the sentinel errors in this package and
// classified with internal/foundation/errors. Problems with a single document
// never fail a build; they are reported as render errors.
package build
