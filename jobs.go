package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/marcus-crane/voxpro/hotkeys"
	"github.com/marcus-crane/voxpro/xano"
)

// Poller is anything that refreshes itself from a remote source on a timer
type Poller interface {
	Poll(ctx context.Context) error
}

func SetupInBackground(interval time.Duration, machine Poller) (*gocron.Scheduler, error) {
	s := gocron.NewScheduler(time.UTC)
	// A slow store must not stack up polls behind each other
	s.SingletonModeAll()

	_, err := s.Every(interval).WaitForSchedule().Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*xano.DefaultTimeout)
		defer cancel()
		if err := machine.Poll(ctx); err != nil {
			slog.Warn("Assignment poll failed", slog.Any("error", err))
		}
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

var _ Poller = (*hotkeys.Machine)(nil)
