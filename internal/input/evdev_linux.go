//go:build linux

package input

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sys/unix"
)

// pollTimeoutMs bounds how long EpollWait blocks before ctx is checked again.
const pollTimeoutMs = 250

// ReadDevices reads every device with a single epoll loop and feeds bound
// events into the binder's store. It returns nil when ctx is canceled.
func ReadDevices(ctx context.Context, paths []string, binder *Binder, logger *slog.Logger) error {
	if len(paths) == 0 {
		return errors.New("no input devices provided")
	}

	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return fmt.Errorf("epoll_create1: %w", err)
	}
	defer unix.Close(epfd)

	fdToPath := make(map[int]string, len(paths))
	defer func() {
		for fd := range fdToPath {
			_ = unix.Close(fd)
		}
	}()

	for _, p := range paths {
		fd, err := unix.Open(p, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
		if err != nil {
			return fmt.Errorf("open %s: %w", p, err)
		}
		fdToPath[fd] = p

		event := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
		if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &event); err != nil {
			return fmt.Errorf("epoll_ctl_add %s: %w", p, err)
		}
		logger.Info("input device opened", "device", p)
	}

	const maxEvents = 32
	epollEvents := make([]unix.EpollEvent, maxEvents)
	buf := make([]byte, inputEventSize*64)

	for {
		if ctx.Err() != nil {
			return nil
		}

		n, err := unix.EpollWait(epfd, epollEvents, pollTimeoutMs)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("epoll_wait: %w", err)
		}

		for i := 0; i < n; i++ {
			fd := int(epollEvents[i].Fd)
			path := fdToPath[fd]

			if epollEvents[i].Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
				return fmt.Errorf("device error/hangup: %s", path)
			}

			if err := drainDevice(fd, buf, binder, logger); err != nil {
				return fmt.Errorf("read from %s: %w", path, err)
			}
		}
	}
}

// drainDevice reads until the non-blocking fd would block.
func drainDevice(fd int, buf []byte, binder *Binder, logger *slog.Logger) error {
	for {
		n, err := unix.Read(fd, buf)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
				return nil
			}
			return err
		}
		if n == 0 {
			return errors.New("device closed")
		}

		for off := 0; off+inputEventSize <= n; off += inputEventSize {
			ev, err := decodeInputEvent(buf[off : off+inputEventSize])
			if err != nil {
				continue
			}
			if err := binder.Handle(ev); err != nil {
				logger.Debug("input event dropped", "type", ev.Type, "code", ev.Code, "error", err)
			}
		}
	}
}
