package metrics

import "time"

var _ Recorder = NoopMetrics{}

// NoopMetrics discards everything.
type NoopMetrics struct{}

func NewNoopMetrics() NoopMetrics { return NoopMetrics{} }

func (NoopMetrics) RecordDecision(string, string, time.Duration) {}
func (NoopMetrics) RecordTokenIssued()                           {}
func (NoopMetrics) RecordTokenValidation(bool)                   {}
func (NoopMetrics) RecordStoreError(string)                      {}
