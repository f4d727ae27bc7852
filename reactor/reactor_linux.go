//go:build linux
// +build linux

// File: reactor/reactor_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux epoll(7) poller with an eventfd(2) wakeup channel.

package reactor

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-worker/api"
)

// epollPoller is a level-triggered epoll instance plus an eventfd used to
// interrupt EpollWait from other goroutines.
type epollPoller struct {
	epfd   int
	wakefd int
	raw    []unix.EpollEvent
}

func newPoller() (poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}
	wakefd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		_ = unix.Close(epfd)
		return nil, fmt.Errorf("eventfd create: %w", err)
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakefd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakefd, &ev); err != nil {
		_ = unix.Close(wakefd)
		_ = unix.Close(epfd)
		return nil, fmt.Errorf("epoll ctl add wakefd: %w", err)
	}
	return &epollPoller{
		epfd:   epfd,
		wakefd: wakefd,
		raw:    make([]unix.EpollEvent, maxReadyEvents+1),
	}, nil
}

func toEpoll(events api.IOEvent) uint32 {
	var e uint32
	if events&api.EventRead != 0 {
		e |= unix.EPOLLIN | unix.EPOLLRDHUP
	}
	if events&api.EventWrite != 0 {
		e |= unix.EPOLLOUT
	}
	return e
}

func (p *epollPoller) add(fd int, events api.IOEvent) error {
	ev := unix.EpollEvent{Events: toEpoll(events), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("epoll ctl add: %w", err)
	}
	return nil
}

func (p *epollPoller) mod(fd int, events api.IOEvent) error {
	ev := unix.EpollEvent{Events: toEpoll(events), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return fmt.Errorf("epoll ctl mod: %w", err)
	}
	return nil
}

func (p *epollPoller) del(fd int) error {
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		// The fd may already be closed by its owner.
		if err == unix.EBADF || err == unix.ENOENT {
			return nil
		}
		return fmt.Errorf("epoll ctl del: %w", err)
	}
	return nil
}

func (p *epollPoller) wait(out []readyEvent, timeoutMs int) (int, error) {
	n, err := unix.EpollWait(p.epfd, p.raw[:len(out)+1], timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil // interrupted by signal, normal
		}
		return 0, fmt.Errorf("epoll wait: %w", err)
	}

	k := 0
	for i := 0; i < n && k < len(out); i++ {
		ev := p.raw[i]
		fd := int(ev.Fd)
		if fd == p.wakefd {
			p.drainWake()
			continue
		}
		var events api.IOEvent
		if ev.Events&(unix.EPOLLIN|unix.EPOLLRDHUP) != 0 {
			events |= api.EventRead
		}
		if ev.Events&unix.EPOLLOUT != 0 {
			events |= api.EventWrite
		}
		if ev.Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
			events |= api.EventError
		}
		out[k] = readyEvent{fd: fd, events: events}
		k++
	}
	return k, nil
}

func (p *epollPoller) drainWake() {
	var buf [8]byte
	_, _ = unix.Read(p.wakefd, buf[:])
}

func (p *epollPoller) wake() error {
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	if _, err := unix.Write(p.wakefd, buf[:]); err != nil && err != unix.EAGAIN {
		return fmt.Errorf("eventfd write: %w", err)
	}
	return nil
}

func (p *epollPoller) close() error {
	_ = unix.Close(p.wakefd)
	return unix.Close(p.epfd)
}

// hrtime reads CLOCK_MONOTONIC in nanoseconds.
func hrtime() uint64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		panic(fmt.Sprintf("clock_gettime: %v", err))
	}
	return uint64(ts.Nano())
}
