package errs

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/getsentry/sentry-go"
	"github.com/m-mizutani/goerr/v2"
	"github.com/telemetry-lab/magpie/pkg/utils/logging"
)

// Handle reports an error that has no caller left to return to: it
// logs through the context logger and forwards the error to Sentry
// with its goerr values attached.
func Handle(ctx context.Context, err error) {
	defer func() {
		if r := recover(); r != nil {
			// Last resort when the logging stack itself blows up
			fmt.Fprintf(os.Stderr, "[CRITICAL] error reporting failed: err=%s panic=%v\n",
				err.Error(), r)
		}
	}()

	attrs := []any{logging.ErrAttr(err)}

	hub := sentry.CurrentHub().Clone()
	hub.ConfigureScope(func(scope *sentry.Scope) {
		for k, v := range goerr.Values(err) {
			scope.SetExtra(k, v)
		}
	})
	if evID := hub.CaptureException(err); evID != nil {
		attrs = append(attrs, slog.Any("sentry.id", *evID))
	}

	logging.From(ctx).Error(err.Error(), attrs...)
}
