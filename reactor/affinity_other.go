//go:build !linux

// File: reactor/affinity_other.go
// Author: momentics <momentics@gmail.com>

package reactor

import (
	"fmt"

	"github.com/momentics/hioload-worker/api"
)

func pinThread(cpu int) error {
	return fmt.Errorf("affinity: cpu %d: %w", cpu, api.ErrNotSupported)
}
