// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

package fake

import "time"

// Clock is a manually advanced api.Clock.
type Clock struct {
	ns uint64
}

func (c *Clock) NowMs() uint64 { return c.ns / uint64(time.Millisecond) }
func (c *Clock) NowUs() uint64 { return c.ns / uint64(time.Microsecond) }
func (c *Clock) NowNs() uint64 { return c.ns }

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) { c.ns += uint64(d) }
