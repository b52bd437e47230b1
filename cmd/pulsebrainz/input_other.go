//go:build !linux

package main

import (
	"context"
	"errors"
	"log/slog"
)

func runInputReader(ctx context.Context, devices []string, cfg KeyConfig, actions chan<- Action, logger *slog.Logger) error {
	return errors.New("IR input is only supported on linux")
}
