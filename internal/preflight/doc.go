// Package preflight checks that the machine can build and serve indexes:
// the data directory is writable with free space, the file descriptor limit
// is high enough for parallel chunking, and the configured embedder answers.
//
//	checker := preflight.New(cfg)
//	results := checker.RunAll(ctx)
//	if preflight.HasCriticalFailures(results) {
//	    // refuse to index
//	}
package preflight
