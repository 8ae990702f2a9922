package domain

const (
	// MethodPing is the liveness probe every worker answers.
	MethodPing = "ping"
	// MethodTransform runs the transformer pipeline on one file.
	MethodTransform = "transform"
)

// PingReply is the payload a healthy worker returns for MethodPing.
const PingReply = "pong"

// WorkerTask is one unit of work. Payload crosses the worker boundary by value.
type WorkerTask struct {
	Method  string
	Payload []byte
}

// WorkerReply is one worker's answer to a broadcast call.
type WorkerReply struct {
	WorkerID int
	Payload  []byte
	Err      error
}

// WorkerStats are cumulative pool counters.
type WorkerStats struct {
	Workers    int
	Dispatched int64
	Completed  int64
	Failed     int64
	Crashes    int64
	Respawns   int64
	ByMethod   map[string]int64
}
