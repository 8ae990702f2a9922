package domain

import "go.trai.ch/zerr"

var (
	// ErrResolution is the kind of diagnostics produced when a dependency target cannot be found.
	ErrResolution = zerr.New("dependency could not be resolved")

	// ErrTransform is the kind of diagnostics reported by a transformer running in a worker.
	ErrTransform = zerr.New("transform failed")

	// ErrCyclicRequest is returned when a request would depend on itself.
	ErrCyclicRequest = zerr.New("cyclic request detected")

	// ErrCacheVersionMismatch marks a cache entry written by an incompatible schema version.
	// It is always treated as a cache miss.
	ErrCacheVersionMismatch = zerr.New("cache entry schema version mismatch")

	// ErrCacheCorrupt marks a cache entry whose envelope cannot be decoded.
	ErrCacheCorrupt = zerr.New("cache entry is corrupt")

	// ErrWorkerCrash is returned when a worker dies while running a task and retries are exhausted.
	ErrWorkerCrash = zerr.New("worker crashed")

	// ErrPoolClosed is returned when work is dispatched to a closed worker pool.
	ErrPoolClosed = zerr.New("worker pool is closed")

	// ErrTaskTimeout is returned when a worker task exceeds the configured task timeout.
	ErrTaskTimeout = zerr.New("worker task timed out")

	// ErrUnknownMethod is returned by a worker handler for a method it does not serve.
	ErrUnknownMethod = zerr.New("unknown worker method")

	// ErrNoEntries is returned when a build is started without entries.
	ErrNoEntries = zerr.New("no entries specified")

	// ErrEntryNotFound is returned when an entry path or glob matches no file.
	ErrEntryNotFound = zerr.New("entry not found")

	// ErrInvalidBundleGraph is returned when a bundling policy produces a structurally invalid plan.
	ErrInvalidBundleGraph = zerr.New("invalid bundle graph")

	// ErrUnknownBundler is returned when the configured bundler name is not registered.
	ErrUnknownBundler = zerr.New("unknown bundler")

	// ErrBuildFailed is returned when a build finishes with diagnostics.
	ErrBuildFailed = zerr.New("build failed")

	// ErrOutputWriteFailed is returned when a packaged bundle cannot be written to the output directory.
	ErrOutputWriteFailed = zerr.New("failed to write bundle output")

	// ErrNoBuildResult is returned when a cache directory holds no persisted build.
	ErrNoBuildResult = zerr.New("no persisted build result")

	// ErrInvalidMode is returned for an unrecognized build mode.
	ErrInvalidMode = zerr.New("invalid build mode, expected 'development' or 'production'")

	// ErrStoreOpenFailed is returned when the cache database cannot be opened.
	ErrStoreOpenFailed = zerr.New("failed to open cache store")

	// ErrStoreReadFailed is returned when a cache entry cannot be read.
	ErrStoreReadFailed = zerr.New("failed to read cache entry")

	// ErrStoreWriteFailed is returned when a cache entry cannot be written.
	ErrStoreWriteFailed = zerr.New("failed to write cache entry")

	// ErrConfigReadFailed is returned when the project config file cannot be read.
	ErrConfigReadFailed = zerr.New("failed to read config file")

	// ErrConfigParseFailed is returned when the project config file cannot be parsed.
	ErrConfigParseFailed = zerr.New("failed to parse config file")

	// ErrInvalidFeatureFlag is returned when a feature flag value is not a boolean.
	ErrInvalidFeatureFlag = zerr.New("invalid feature flag")

	// ErrTraceClosed is returned when a span is written after the trace was finalized.
	ErrTraceClosed = zerr.New("trace output is closed")

	// ErrTraceWriteFailed is returned when the trace file cannot be created or written.
	ErrTraceWriteFailed = zerr.New("failed to write trace")

	// ErrWatcherFailed is returned when the filesystem watcher cannot be started.
	ErrWatcherFailed = zerr.New("failed to start file watcher")
)
