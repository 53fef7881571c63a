package errors

import (
	"github.com/sirupsen/logrus"
)

// Fields extracts structured log fields from an error. AppErrors
// contribute their code, retryability, and context; other errors get
// no extra fields.
func Fields(err error) logrus.Fields {
	fields := logrus.Fields{}
	if appErr, ok := err.(*AppError); ok {
		fields["error_code"] = appErr.Code
		fields["retryable"] = appErr.Retryable
		for k, v := range appErr.Context {
			fields[k] = v
		}
	}
	return fields
}

// Log writes the error with its structured context. Retryable errors
// log at warn level since the caller is expected to try again.
func Log(logger *logrus.Logger, err error, message string) {
	entry := logger.WithError(err).WithFields(Fields(err))
	if appErr, ok := err.(*AppError); ok && appErr.Retryable {
		entry.Warn(message)
		return
	}
	entry.Error(message)
}
