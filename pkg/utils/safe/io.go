// Package safe wraps best-effort I/O calls whose errors have nowhere
// to go but the log.
package safe

import (
	"context"
	"io"

	"github.com/telemetry-lab/magpie/pkg/utils/logging"
)

func Close(ctx context.Context, c io.Closer) {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil {
		logging.From(ctx).Error("failed to close", logging.ErrAttr(err))
	}
}

func Write(ctx context.Context, w io.Writer, data []byte) {
	if w == nil {
		return
	}
	if _, err := w.Write(data); err != nil {
		logging.From(ctx).Error("failed to write", logging.ErrAttr(err))
	}
}
