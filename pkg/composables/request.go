package composables

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/os2mo/mora/pkg/constants"
)

var ErrNoLogger = errors.New("logger not found")

// WithLogger returns a new context carrying logger.
func WithLogger(ctx context.Context, logger *logrus.Entry) context.Context {
	return context.WithValue(ctx, constants.LoggerKey, logger)
}

// UseLogger returns the request logger from the context.
func UseLogger(ctx context.Context) (*logrus.Entry, error) {
	switch typed := ctx.Value(constants.LoggerKey).(type) {
	case *logrus.Entry:
		return typed, nil
	case *logrus.Logger:
		return logrus.NewEntry(typed), nil
	default:
		return nil, ErrNoLogger
	}
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, constants.RequestIDKey, id)
}

func UseRequestID(ctx context.Context) string {
	id, _ := ctx.Value(constants.RequestIDKey).(string)
	return id
}
