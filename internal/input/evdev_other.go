//go:build !linux

package input

import (
	"context"
	"errors"
	"log/slog"
)

// ReadDevices is only available on Linux.
func ReadDevices(ctx context.Context, paths []string, binder *Binder, logger *slog.Logger) error {
	return errors.New("evdev input is only supported on linux")
}
