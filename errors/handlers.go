package errors

import "go.uber.org/zap"

// LogError logs an error with its context
func LogError(logger *zap.Logger, err error, requestID string) {
	var pe *ParleyError
	if As(err, &pe) {
		logger.Error("request error",
			zap.String("error_type", string(pe.Type)),
			zap.String("message", pe.Message),
			zap.Int("code", pe.Code),
			zap.String("request_id", requestID),
			zap.Any("details", pe.Details),
			zap.NamedError("cause", pe.Unwrap()),
		)
		return
	}
	logger.Error("unexpected error",
		zap.Error(err),
		zap.String("request_id", requestID),
	)
}
