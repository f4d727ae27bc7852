//go:build !unix

// File: worker/rusage_other.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package worker

import (
	"fmt"

	"github.com/momentics/hioload-worker/api"
)

// ResourceUsage is not available on this platform.
type ResourceUsage struct{}

func getResourceUsage() (*ResourceUsage, error) {
	return nil, fmt.Errorf("getrusage: %w", api.ErrNotSupported)
}
