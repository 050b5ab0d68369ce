package rpctrace

// Metrics receives wrapper-lifecycle and message-forwarding events. The CLI
// wires a Prometheus-backed implementation (cmd/rpctrace/metrics.go);
// library callers that do not care pass the default noopMetrics.
type Metrics interface {
	WrapperRegistered(kind Kind)
	WrapperFreed(kind Kind)
	MessageForwarded()
	MessageDropped(reason string)
}

type noopMetrics struct{}

func (noopMetrics) WrapperRegistered(Kind)    {}
func (noopMetrics) WrapperFreed(Kind)         {}
func (noopMetrics) MessageForwarded()         {}
func (noopMetrics) MessageDropped(string)     {}
