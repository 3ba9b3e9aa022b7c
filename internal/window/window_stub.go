//go:build !windows

package window

import (
	"context"

	"github.com/example/frameview/internal/config"
)

type Window struct{}

func New(cfg config.Config, opts Options) (*Window, error) {
	return nil, ErrUnsupported
}

func (w *Window) Run(ctx context.Context) error {
	return ErrUnsupported
}
