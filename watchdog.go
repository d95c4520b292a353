// The public face of the watchdog for the users of this package.

package watchdog

import (
	"github.com/sirupsen/logrus"

	wdinternal "github.com/nshenderov/watchdog/internal"
)

type OpStatus = wdinternal.OpStatus

const (
	Complete   = wdinternal.Complete
	Reschedule = wdinternal.Reschedule
	Failed     = wdinternal.Failed
)

type TaskBody = wdinternal.TaskBody
type TaskID = wdinternal.TaskID
type Config = wdinternal.WatchdogConfig

// SetWatchdogBinaryPath tells the application side where to find its
// watchdog peer binary. Call before Start, typically from an init().
func SetWatchdogBinaryPath(path string) {
	wdinternal.WatchdogBinaryPath = path
}

// LoadConfig loads a WatchdogConfig from cfgFile, applying it as the
// process-wide defaults used by Start (logger level/output, semaphore
// base directory).
func LoadConfig(cfgFile string) (*Config, error) {
	cfg, err := wdinternal.LoadConfig(cfgFile, nil)
	if err != nil {
		return nil, err
	}
	if err := wdinternal.SetLogger(cfg.LoggerConfig); err != nil {
		return nil, err
	}
	wdinternal.SemaphoreBaseDir = cfg.BaseDir
	return cfg, nil
}

// Start launches the application side of the watchdog protocol: it derives
// the kick/reboot schedule from graceSeconds, spawns the watchdog peer,
// performs the startup handshake and returns. Returns 0 on success, 1 on
// failure.
func Start(argv []string, graceSeconds int) int {
	return wdinternal.StartApplication(argv, graceSeconds)
}

// Stop shuts the application side down: it stops the local scheduler,
// notifies the watchdog peer and blocks until the shutdown sequence
// completes. Call only after a successful Start.
func Stop() {
	wdinternal.StopApplication()
}

// GetRootLogger exposes the logger for tests that need to capture log
// output (see testutils/log_collector.go).
func GetRootLogger() any { return wdinternal.RootLogger }

// NewCompLogger creates a component logger with a "comp" field, matching
// the logger used internally by the scheduler and supervisor.
func NewCompLogger(comp string) *logrus.Entry {
	return wdinternal.NewCompLogger(comp)
}
