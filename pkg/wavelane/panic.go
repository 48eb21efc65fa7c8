package wavelane

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/wavelane/wavelane/pkg/wavelane/util"
)

const (
	crashlogFilename        = "wavelane-crash-%s.log"
	crashlogTimestampFormat = "2006.01.02-15.04.05"
	crashMessageTemplate    = `-----------------------------------------------------------------
                      wavelane crashlog
-----------------------------------------------------------------
Unfortunately, wavelane has crashed. This really shouldn't happen!
If you've just encountered this, please open an issue and attach this error log.
-----------------------------------------------------------------
Time: %s
Panic occurred: %s
Stack trace:
%s
-----------------------------------------------------------------
`
)

// recoverFromPanic handles playback goroutine panics, logs the error, and
// attempts to shut down gracefully.
func (p *Player) recoverFromPanic() {
	if r := recover(); r != nil {
		p.handlePanic(r)
	}
}

// handlePanic logs the panic details, writes a crash log file, and notifies the user.
func (p *Player) handlePanic(recoverValue interface{}) {
	now := time.Now()
	crashlogPath := filepath.Join(logDirectory, fmt.Sprintf(crashlogFilename, now.Format(crashlogTimestampFormat)))

	// Create the crash log content.
	crashLogContent := p.createCrashLogContent(now, recoverValue)

	// Ensure the log directory exists.
	if err := util.EnsureDirExists(logDirectory); err != nil {
		panic(fmt.Errorf("failed to create log directory: %w", err))
	}

	// Write the crash log file.
	if err := os.WriteFile(crashlogPath, crashLogContent, 0644); err != nil {
		panic(fmt.Errorf("failed to write crash log: %w", err))
	}

	// Log and notify the crash.
	p.logger.Errorw("Application panic encountered",
		"crashlogPath", crashlogPath,
		"error", recoverValue)

	p.notifier.Notify("Unexpected crash occurred",
		fmt.Sprintf("Details logged to: %s", crashlogPath))

	// Attempt to shut down gracefully.
	p.signalStop()

	// Exit with an error code.
	p.logger.Errorw("Exiting due to panic", "exitCode", 1)
	os.Exit(1)
}

// createCrashLogContent generates the formatted crash log content.
func (p *Player) createCrashLogContent(timestamp time.Time, recoverValue interface{}) []byte {
	return []byte(fmt.Sprintf(crashMessageTemplate,
		timestamp.Format(crashlogTimestampFormat),
		recoverValue,
		debug.Stack(),
	))
}
