// Package logging provides structured logging for vulntune pipeline runs.
//
// This package wraps Go's log/slog to write JSON lines that carry the run ID
// and, inside a phase, the phase ID. The pipeline log lives at
// {workspace}/logs/pipeline.log and is read back by the `vulntune logs`
// command.
//
// # Basic Usage
//
//	logger, err := logging.NewLoggerWithRotation(logDir, "INFO", logging.DefaultRotationConfig())
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	runLogger := logger.WithRun(runID)
//	runLogger.WithPhase("parsing").Info("phase finished", "duration_ms", 42)
//
// Output:
//
//	{"time":"...","level":"INFO","msg":"phase finished","run_id":"...","phase":"parsing","duration_ms":42}
//
// # Log Rotation
//
// [RotatingWriter] rotates the file once it exceeds MaxSizeMB. Backups are
// named pipeline.log.1 (newest) through pipeline.log.N and are gzipped when
// Compress is set.
//
// # Reading Logs
//
// [ReadEntries] parses a log file and [FilterLogs] narrows it by level, run,
// phase, or message text.
//
// # Testing
//
// Use [NopLogger] to discard output, or [NewLoggerWithWriter] with a
// bytes.Buffer to assert on emitted entries.
package logging
