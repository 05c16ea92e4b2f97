// Package logging provides structured logging for brainnet nodes.
//
// It wraps Go's log/slog JSON handler. Every line carries the context of the
// node that wrote it (experiment ID, role, peer, trial and round), so a
// session's debug.log can be filtered after the fact with jq.
//
// # Thread Safety
//
// All types in this package are safe for concurrent use. Child loggers
// created via With* methods share the underlying writer.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger("/path/to/experiment", "INFO")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	roundLog := logger.WithRole("coordinator").WithTrial(2).WithRound(1)
//	roundLog.Info("decisions received", "c1", "ROTATE", "c2", "DONT_ROTATE")
//
// # Experiment Records
//
// Round and trial summaries are written with [Logger.Record], which nests the
// record under a "record" key:
//
//	logger.Record("trial", trialRecord)
//
//	jq 'select(.record_kind == "trial") | .record' debug.log
package logging
