// Package errors provides the classified error primitives used across the site builder.
//
// A ClassifiedError carries a category (what kind of failure), a severity
// (how far it propagates) and a free-form context map. Errors are created with
// the fluent ErrorBuilder:
//
//	err := errors.NewError(errors.CategoryFileSystem, "project root unreadable").
//		Fatal().
//		WithContext("path", root).
//		Build()
//
// Render-scoped problems are not Go errors at all; they are data attached to
// the document that produced them (see docmodel.RenderError). Only
// configuration and I/O failures travel through this package.
//
// The CLI and HTTP adapters translate classified errors into exit codes and
// status codes respectively.
package errors
