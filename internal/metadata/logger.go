package metadata

import (
	"log/slog"

	"github.com/zoosonics/sawcall-go/internal/logging"
)

func getLogger() *slog.Logger {
	return logging.ForService("metadata")
}
