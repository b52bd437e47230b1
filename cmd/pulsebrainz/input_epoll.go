//go:build linux

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// epollWaitMS bounds each epoll_wait so cancellation is noticed promptly.
const epollWaitMS = 250

// runInputReader reads key events from all devices with a single epoll
// loop and forwards the resulting Actions. Devices that hang up are
// dropped; the reader returns when ctx is canceled or no device is left.
func runInputReader(ctx context.Context, devices []string, cfg KeyConfig, actions chan<- Action, logger *slog.Logger) error {
	if len(devices) == 0 {
		return errors.New("no input devices provided")
	}

	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return fmt.Errorf("epoll_create1: %w", err)
	}
	defer unix.Close(epfd)

	fdToFile := make(map[int]*os.File, len(devices))
	defer func() {
		for _, f := range fdToFile {
			f.Close()
		}
	}()

	for _, path := range devices {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open input device %s: %w", path, err)
		}
		fd := int(f.Fd())
		fdToFile[fd] = f

		event := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
		if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &event); err != nil {
			return fmt.Errorf("epoll_ctl_add %s: %w", path, err)
		}
		logger.Info("IR input device opened", "device", path)
	}

	keys := newKeyTranslator(cfg)

	const maxEvents = 32
	epollEvents := make([]unix.EpollEvent, maxEvents)
	buf := make([]byte, inputEventSize)

	remove := func(fd int, reason string) {
		f := fdToFile[fd]
		_ = unix.EpollCtl(epfd, unix.EPOLL_CTL_DEL, fd, nil)
		delete(fdToFile, fd)
		if f != nil {
			logger.Warn("IR input device removed", "device", f.Name(), "reason", reason)
			f.Close()
		}
	}

	for {
		if ctx.Err() != nil {
			return nil
		}
		if len(fdToFile) == 0 {
			return errors.New("all input devices are gone")
		}

		n, err := unix.EpollWait(epfd, epollEvents, epollWaitMS)
		if err != nil {
			if err == syscall.EINTR {
				continue
			}
			return fmt.Errorf("epoll_wait: %w", err)
		}

		for i := 0; i < n; i++ {
			fd := int(epollEvents[i].Fd)
			f, ok := fdToFile[fd]
			if !ok {
				continue
			}

			if epollEvents[i].Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
				remove(fd, "hangup")
				continue
			}

			if _, err := f.Read(buf); err != nil {
				remove(fd, err.Error())
				continue
			}

			ev, ok := decodeInputEvent(buf)
			if !ok {
				continue
			}

			act := keys.translate(ev)
			if act == nil {
				continue
			}
			logger.Debug("IR key", "code", ev.Code, "value", ev.Value, "action", fmt.Sprintf("%T", act))

			select {
			case actions <- act:
			default:
				logger.Warn("action queue full, dropping IR key", "code", ev.Code)
			}
		}
	}
}
