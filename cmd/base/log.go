package base

import (
	"fmt"
	"github.com/cyclopcam/connect/lib/api"
	"github.com/cyclopcam/connect/lib/network"
	"github.com/cyclopcam/connect/lib/probe"
	"github.com/cyclopcam/connect/lib/registry"
	"github.com/cyclopcam/connect/lib/relay"
	"github.com/cyclopcam/connect/lib/router"
	"github.com/cyclopcam/connect/lib/scanner"
	"github.com/cyclopcam/connect/lib/store"
	"github.com/decred/slog"
	"github.com/jrick/logrotate/rotator"
	"os"
	"path/filepath"
	"sort"
)

// logWriter implements an io.Writer that outputs to both standard output and
// the write-end pipe of an initialized log rotator.
type logWriter struct{}

func (logWriter) Write(p []byte) (n int, err error) {
	os.Stdout.Write(p)
	if logRotator != nil {
		logRotator.Write(p)
	}
	return len(p), nil
}

var (
	// backendLog is the logging backend used to create all subsystem loggers.
	backendLog = slog.NewBackend(logWriter{})

	// logRotator is one of the logging outputs. It is nil until
	// InitLogRotator is called.
	logRotator *rotator.Rotator

	Log     = backendLog.Logger("CONN")
	apisLog = backendLog.Logger("APIS")
	netwLog = backendLog.Logger("NETW")
	probLog = backendLog.Logger("PROB")
	regyLog = backendLog.Logger("REGY")
	rlayLog = backendLog.Logger("RLAY")
	rterLog = backendLog.Logger("RTER")
	scanLog = backendLog.Logger("SCAN")
	storLog = backendLog.Logger("STOR")
)

func init() {
	api.UseLogger(apisLog)
	network.UseLogger(netwLog)
	probe.UseLogger(probLog)
	registry.UseLogger(regyLog)
	relay.UseLogger(rlayLog)
	router.UseLogger(rterLog)
	scanner.UseLogger(scanLog)
	store.UseLogger(storLog)
}

// subsystemLoggers maps each subsystem identifier to its associated logger.
var subsystemLoggers = map[string]slog.Logger{
	"CONN": Log,
	"APIS": apisLog,
	"NETW": netwLog,
	"PROB": probLog,
	"REGY": regyLog,
	"RLAY": rlayLog,
	"RTER": rterLog,
	"SCAN": scanLog,
	"STOR": storLog,
}

// Logger creates a logger for a subsystem of a command, e.g. "FDEV".
func Logger(subsystem string) slog.Logger {
	logger := backendLog.Logger(subsystem)
	subsystemLoggers[subsystem] = logger
	return logger
}

// InitLogRotator initializes the logging rotater to write logs to logFile and
// create roll files in the same directory. It must be called before the
// package-global log rotater variables are used.
func InitLogRotator(logFile string) error {
	logDir, _ := filepath.Split(logFile)
	if logDir != "" {
		if err := os.MkdirAll(logDir, 0700); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
	}
	r, err := rotator.New(logFile, 10*1024, false, 3)
	if err != nil {
		return fmt.Errorf("failed to create file rotator: %w", err)
	}
	logRotator = r
	return nil
}

// CloseLogRotator flushes and closes the log file, if there is one.
func CloseLogRotator() {
	if logRotator != nil {
		logRotator.Close()
	}
}

// SetLogLevels sets the log level of every subsystem.
func SetLogLevels(logLevel string) error {
	level, ok := slog.LevelFromString(logLevel)
	if !ok {
		return fmt.Errorf("invalid log level %q", logLevel)
	}
	for _, logger := range subsystemLoggers {
		logger.SetLevel(level)
	}
	return nil
}

// SupportedSubsystems returns a sorted slice of the supported subsystems for
// logging purposes.
func SupportedSubsystems() []string {
	subsystems := make([]string, 0, len(subsystemLoggers))
	for subsysID := range subsystemLoggers {
		subsystems = append(subsystems, subsysID)
	}
	sort.Strings(subsystems)
	return subsystems
}
