package handlers

import (
	"context"

	"github.com/d4l-data4life/go-svc/pkg/logging"
)

// serviceAuthLogger satisfies the logger of go-svc's ServiceSecretAuthenticator
type serviceAuthLogger struct{}

// NewServiceAuthLogger creates the logger for service secret authentication
func NewServiceAuthLogger() *serviceAuthLogger {
	return &serviceAuthLogger{}
}

// ErrGeneric logs rejected service requests
func (l *serviceAuthLogger) ErrGeneric(ctx context.Context, err error) error {
	logging.LogErrorfCtx(ctx, err, "Service authentication failed")
	return err
}
