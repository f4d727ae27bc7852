// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides the single-goroutine event loop that drives the
// worker: fd readiness via epoll, one-shot and repeating timers, and a
// goroutine-safe task queue for work handed over from other goroutines.
//
// Everything registered with a Loop runs on the goroutine that called Run.
// Only Post and Stop may be called from elsewhere.
package reactor
