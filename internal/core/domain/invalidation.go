package domain

// InvalidationKind is the type of an external change signal.
type InvalidationKind uint8

const (
	// FileChanged signals that the content of an existing file changed.
	FileChanged InvalidationKind = iota
	// FileCreated signals that a file appeared.
	FileCreated
	// FileDeleted signals that a file disappeared.
	FileDeleted
	// EnvChanged signals that an environment variable changed value.
	EnvChanged
	// OptionChanged signals that a build option changed value.
	OptionChanged
)

// String returns the name of the kind.
func (k InvalidationKind) String() string {
	switch k {
	case FileChanged:
		return "file_changed"
	case FileCreated:
		return "file_created"
	case FileDeleted:
		return "file_deleted"
	case EnvChanged:
		return "env_changed"
	case OptionChanged:
		return "option_changed"
	default:
		return "unknown"
	}
}

// InvalidationEvent is one observed external change.
// Path is set for file events, Name for env and option events.
type InvalidationEvent struct {
	Kind InvalidationKind
	Path string
	Name string
}

// FileEvent builds a file invalidation event.
func FileEvent(kind InvalidationKind, path string) InvalidationEvent {
	return InvalidationEvent{Kind: kind, Path: path}
}
