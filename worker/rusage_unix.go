//go:build unix

// File: worker/rusage_unix.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package worker

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// ResourceUsage mirrors getrusage(2) for the worker process. Times are in
// milliseconds.
type ResourceUsage struct {
	Utime    int64 `json:"ru_utime"`
	Stime    int64 `json:"ru_stime"`
	Maxrss   int64 `json:"ru_maxrss"`
	Ixrss    int64 `json:"ru_ixrss"`
	Idrss    int64 `json:"ru_idrss"`
	Isrss    int64 `json:"ru_isrss"`
	Minflt   int64 `json:"ru_minflt"`
	Majflt   int64 `json:"ru_majflt"`
	Nswap    int64 `json:"ru_nswap"`
	Inblock  int64 `json:"ru_inblock"`
	Oublock  int64 `json:"ru_oublock"`
	Msgsnd   int64 `json:"ru_msgsnd"`
	Msgrcv   int64 `json:"ru_msgrcv"`
	Nsignals int64 `json:"ru_nsignals"`
	Nvcsw    int64 `json:"ru_nvcsw"`
	Nivcsw   int64 `json:"ru_nivcsw"`
}

func getResourceUsage() (*ResourceUsage, error) {
	var ru unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &ru); err != nil {
		return nil, fmt.Errorf("getrusage: %w", err)
	}
	return &ResourceUsage{
		Utime:    ru.Utime.Nano() / 1e6,
		Stime:    ru.Stime.Nano() / 1e6,
		Maxrss:   int64(ru.Maxrss),
		Ixrss:    int64(ru.Ixrss),
		Idrss:    int64(ru.Idrss),
		Isrss:    int64(ru.Isrss),
		Minflt:   int64(ru.Minflt),
		Majflt:   int64(ru.Majflt),
		Nswap:    int64(ru.Nswap),
		Inblock:  int64(ru.Inblock),
		Oublock:  int64(ru.Oublock),
		Msgsnd:   int64(ru.Msgsnd),
		Msgrcv:   int64(ru.Msgrcv),
		Nsignals: int64(ru.Nsignals),
		Nvcsw:    int64(ru.Nvcsw),
		Nivcsw:   int64(ru.Nivcsw),
	}, nil
}
