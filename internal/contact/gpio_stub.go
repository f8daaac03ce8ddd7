//go:build !linux

package contact

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

const DefaultDebounce = 20 * time.Millisecond

// GPIO is not available on non-Linux platforms.
type GPIO struct {
	Chip      string
	Line      int
	ActiveLow bool
	Debounce  time.Duration
}

func (g GPIO) Watch(context.Context, func(active bool)) error {
	return errors.New("gpio: not supported on this platform (requires Linux)")
}
