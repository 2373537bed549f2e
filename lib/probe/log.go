package probe

import "github.com/decred/slog"

// log is a logger that is initialized with no output filters.  This
// means the package will not perform any logging by default until the caller
// requests it.
var log = slog.Disabled

// UseLogger uses a specified Logger to output package logging info.
func UseLogger(logger slog.Logger) {
	log = logger
}

// abbrev shortens a secret so that it can appear in a log line.
func abbrev(secret string) string {
	const keep = 6
	if len(secret) <= keep {
		return secret
	}
	return secret[:keep] + "..."
}
