package composables

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/assetdesk/pkg/constants"
	"github.com/iota-uz/assetdesk/pkg/logging"
)

func WithLogger(ctx context.Context, logger *logrus.Entry) context.Context {
	return context.WithValue(ctx, constants.LoggerKey, logger)
}

// UseLogger returns the logger from the context, or a discarding logger when none is set.
func UseLogger(ctx context.Context) *logrus.Entry {
	if logger, ok := ctx.Value(constants.LoggerKey).(*logrus.Entry); ok && logger != nil {
		return logger
	}
	return logging.Nop()
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, constants.RequestID, requestID)
}

func UseRequestID(ctx context.Context) string {
	id, _ := ctx.Value(constants.RequestID).(string)
	return id
}
