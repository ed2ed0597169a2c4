package lineage

import (
	"io"
	"log/slog"

	"github.com/nvandessel/bfftrace/internal/logging"
)

func newTestLogger(w io.Writer) *slog.Logger {
	return logging.NewLogger("debug", w)
}
