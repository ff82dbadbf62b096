package errs

import "github.com/m-mizutani/goerr/v2"

var (
	// Client errors (4xx)
	TagNotFound       = goerr.NewTag("not_found")       // 404
	TagValidation     = goerr.NewTag("validation")      // 400
	TagInvalidRequest = goerr.NewTag("invalid_request") // 400

	// Server errors (5xx)
	TagInternal    = goerr.NewTag("internal")    // 500
	TagPersistence = goerr.NewTag("persistence") // 500 (specific to archive I/O errors)

	// Invariant violations. These indicate a bug in the allocator or a
	// concurrent writer outside this process, and are always reported.
	TagInvariant = goerr.NewTag("invariant")

	// Business logic errors
	TagInvalidState = goerr.NewTag("invalid_state")
)
