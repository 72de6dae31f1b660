// Package logger provides structured logging for pinscraper.
//
// It wraps zerolog behind a small Logger interface. On a terminal the output
// is colored console text; when stdout is redirected, or Logging.JSON is set,
// every line is a JSON object carrying an "app" field.
//
//	if err := logger.Initialize(&cfg.Logging); err != nil {
//	    return err
//	}
//	log := logger.GetLogger().WithField("component", "discovery")
//	log.InfoWithFields("Boards flushed", map[string]interface{}{"inserted": 12})
//
// Tests use NewTestLogger to capture messages, or NewNopLogger to discard them.
package logger
