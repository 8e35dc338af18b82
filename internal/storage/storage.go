package storage

import (
	"context"

	"lpcustody/internal/model"
)

// Recorder is a sink for custody audit events.
type Recorder interface {
	Record(ctx context.Context, events ...model.Event) error
}

// Nop discards events.
type Nop struct{}

func (Nop) Record(context.Context, ...model.Event) error { return nil }
