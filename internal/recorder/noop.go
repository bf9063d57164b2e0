package recorder

// NoopRecorder is a no-op implementation used when SQLite is not configured.
// Every signal counts as new.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordFetch(_ *FetchRun) error                        { return nil }
func (n *NoopRecorder) RecordSignal(_ *SignalEvent) (bool, error)            { return true, nil }
func (n *NoopRecorder) RecentSignals(_ string, _ int) ([]SignalEvent, error) { return nil, nil }
func (n *NoopRecorder) Close() error                                         { return nil }
