package logger

// LogStageStart logs the beginning of a pipeline stage
func LogStageStart(l Logger, stage int, name string, params map[string]interface{}) {
	fields := map[string]interface{}{
		"stage": stage,
		"name":  name,
	}
	for k, v := range params {
		fields[k] = v
	}
	l.InfoWithFields("Stage started", fields)
}

// LogStageComplete logs the end of a pipeline stage with its counters
func LogStageComplete(l Logger, stage int, name string, counters map[string]interface{}) {
	fields := map[string]interface{}{
		"stage": stage,
		"name":  name,
	}
	for k, v := range counters {
		fields[k] = v
	}
	l.InfoWithFields("Stage completed", fields)
}

// LogRetryDecision records a retry or restart decision as it is made
func LogRetryDecision(l Logger, reason string, attempt, maxAttempts int, err error) {
	fields := map[string]interface{}{
		"reason":       reason,
		"attempt":      attempt,
		"max_attempts": maxAttempts,
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	l.WarnWithFields("Retrying after failure", fields)
}

// LogDownload logs the outcome of one media download
func LogDownload(l Logger, pinURL, path string, skipped bool, err error) {
	entry := l.WithFields(map[string]interface{}{
		"pin_url": pinURL,
		"path":    path,
	})

	switch {
	case err != nil:
		entry.WithError(err).Error("Download failed")
	case skipped:
		entry.Debug("Download skipped, file exists")
	default:
		entry.Info("Download completed")
	}
}

// NewNopLogger creates a no-operation logger for testing
func NewNopLogger() Logger {
	return nopLogger{}
}

type nopLogger struct{}

func (n nopLogger) Debug(msg string)                                          {}
func (n nopLogger) Info(msg string)                                           {}
func (n nopLogger) Warn(msg string)                                           {}
func (n nopLogger) Error(msg string)                                          {}
func (n nopLogger) WithField(key string, value interface{}) Logger            { return n }
func (n nopLogger) WithFields(fields map[string]interface{}) Logger           { return n }
func (n nopLogger) WithError(err error) Logger                                { return n }
func (n nopLogger) DebugWithFields(msg string, fields map[string]interface{}) {}
func (n nopLogger) InfoWithFields(msg string, fields map[string]interface{})  {}
func (n nopLogger) WarnWithFields(msg string, fields map[string]interface{})  {}
func (n nopLogger) ErrorWithFields(msg string, fields map[string]interface{}) {}
