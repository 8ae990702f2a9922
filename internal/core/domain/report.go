package domain

import "time"

// ReportType is the kind of a reporter event.
type ReportType string

const (
	// ReportBuildStart is emitted once when a build begins.
	ReportBuildStart ReportType = "buildStart"
	// ReportBuildProgress is emitted when a build enters a new phase.
	ReportBuildProgress ReportType = "buildProgress"
	// ReportBuildSuccess is emitted when a build completes without diagnostics.
	ReportBuildSuccess ReportType = "buildSuccess"
	// ReportBuildFailure is emitted when a build completes with diagnostics.
	ReportBuildFailure ReportType = "buildFailure"
	// ReportLog carries a free-form message.
	ReportLog ReportType = "log"
)

// BuildPhase names a stage of the build pipeline.
type BuildPhase string

const (
	PhaseResolving    BuildPhase = "resolving"
	PhaseTransforming BuildPhase = "transforming"
	PhaseBundling     BuildPhase = "bundling"
	PhasePackaging    BuildPhase = "packaging"
	PhaseWriting      BuildPhase = "writing"
)

// LogLevel represents the severity of a log message, mirroring the standard slog levels.
type LogLevel int

const (
	// LogLevelDebug represents debug-level verbosity.
	LogLevelDebug LogLevel = -4
	// LogLevelInfo represents informational verbosity.
	LogLevelInfo LogLevel = 0
	// LogLevelWarn represents warning verbosity.
	LogLevelWarn LogLevel = 4
	// LogLevelError represents error verbosity.
	LogLevelError LogLevel = 8
)

// String returns the string representation of the LogLevel.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}

// ReporterEvent is delivered to every configured reporter.
type ReporterEvent struct {
	Type        ReportType
	Phase       BuildPhase
	Level       LogLevel
	Message     string
	Diagnostics []*Diagnostic
	Bundles     []BundleInfo
	Duration    time.Duration
}
