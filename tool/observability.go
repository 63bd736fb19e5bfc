package tool

// InvokeObservation captures one invocation outcome.
type InvokeObservation struct {
	ToolName   string
	ToolType   ToolType
	Primitive  PrimitiveType
	Attempts   int
	DurationMS int64
	Success    bool
	ErrorCode  string
}

// RetryObservation captures one retry attempt for an invocation.
type RetryObservation struct {
	ToolName  string
	Primitive PrimitiveType
	Attempt   int
	ErrorCode string
}

// HealthObservation captures one background health-check outcome.
type HealthObservation struct {
	ToolName      string
	State         HealthState
	FailureCount  int
	DurationMS    int64
	ErrorCode     string
	PreviousState HealthState
}

// Observer receives tool-level observability events. Implementations must be
// safe for concurrent use; the executor calls them from invocation
// goroutines.
type Observer interface {
	ObserveInvoke(observation InvokeObservation)
	ObserveRetry(observation RetryObservation)
	ObserveHealth(observation HealthObservation)
}

// NoopObserver discards all observations.
type NoopObserver struct{}

func (NoopObserver) ObserveInvoke(InvokeObservation) {}
func (NoopObserver) ObserveRetry(RetryObservation)   {}
func (NoopObserver) ObserveHealth(HealthObservation) {}

var _ Observer = NoopObserver{}
