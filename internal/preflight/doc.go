// Package preflight checks that chatmydocs can run with the loaded
// configuration before it serves or ingests anything.
//
// The checks cover the data directory, free disk space, file descriptor
// limits, the embedding and generation providers, the vector store and the
// optional OCR service:
//
//	checker := preflight.New(cfg)
//	results := checker.RunAll(ctx)
//	if checker.HasCriticalFailures(results) {
//	    // refuse to start
//	}
package preflight
