// Package logging provides structured logging using uber/zap.
//
// Production loggers emit JSON for machine parsing; development loggers
// emit colored console output. Components receive the embedded *zap.Logger
// and attach structured fields:
//
//	logger := logging.NewDefault()
//	logger.Info("build published", zap.String("build_id", id))
package logging
