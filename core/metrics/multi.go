package metrics

// MultiSink fans events out to multiple sinks. Optional recorders are only
// forwarded to sinks that implement them.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordMessage forwards the event to all sinks, returning the first error encountered.
func (m *MultiSink) RecordMessage(ev MessageEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordMessage(ev); err != nil {
			return err
		}
	}
	return nil
}

func (m *MultiSink) RecordConnection(ev ConnectionEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(ConnectionRecorder); ok {
			if err := rec.RecordConnection(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *MultiSink) RecordRegistration(ev RegistrationEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(RegistrationRecorder); ok {
			if err := rec.RecordRegistration(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *MultiSink) RecordAuthFailure(ev AuthFailureEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(AuthFailureRecorder); ok {
			if err := rec.RecordAuthFailure(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *MultiSink) RecordDeviceData(ev DeviceDataEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(DeviceDataRecorder); ok {
			if err := rec.RecordDeviceData(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close closes every sink that holds resources.
func (m *MultiSink) Close() {
	for _, s := range m.Sinks {
		if c, ok := s.(interface{ Close() }); ok {
			c.Close()
		}
	}
}
