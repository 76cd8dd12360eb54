package subprocess

import (
	"fmt"
	"log/slog"
	"os/exec"
)

// UnitRunner executes a system service-manager command. Injectable so tests
// never touch systemctl.
type UnitRunner func(args ...string) error

// SystemctlRunner shells out to systemctl.
func SystemctlRunner(args ...string) error {
	out, err := exec.Command("systemctl", args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("systemctl %v: %w: %s", args, err, out)
	}
	return nil
}

// DisableConflictingUnit stops and disables a pre-existing system service of
// the same kind before the supervised instance launches, so two processes
// never compete for the same audio or broker resource. Failures are logged
// and tolerated: the unit may simply not exist on this host.
func DisableConflictingUnit(run UnitRunner, unit string, log *slog.Logger) {
	if unit == "" {
		return
	}
	for _, action := range []string{"stop", "disable"} {
		if err := run(action, unit); err != nil {
			log.Debug("conflicting unit cleanup",
				slog.String("unit", unit),
				slog.String("action", action),
				slog.String("error", err.Error()))
		}
	}
}
