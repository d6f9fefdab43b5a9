package observability

import (
	"time"

	"github.com/getsentry/sentry-go"
)

func InitSentry(dsn, env, release string) (func(), error) {
	if dsn == "" {
		return func() {}, nil
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: env,
		Release:     release,
	}); err != nil {
		return func() {}, err
	}
	return func() { sentry.Flush(2 * time.Second) }, nil
}

// CaptureErr reports err with the event name as a tag. No-op without a DSN.
func CaptureErr(err error, event string) {
	if err == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		if event != "" {
			scope.SetTag("event", event)
		}
		sentry.CaptureException(err)
	})
}
