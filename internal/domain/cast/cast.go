// Package cast hands a stream off to a playback device on the viewer's network
package cast

import (
	"context"
	"fmt"
	"sync"

	"streamingplus/internal/domain"

	"github.com/rs/zerolog"
)

// Device is a cast receiver the viewer can pick
type Device struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Kind string `json:"kind"`
}

// Target discovers devices and starts playback on one of them
type Target interface {
	Devices(ctx context.Context) ([]Device, error)
	Cast(ctx context.Context, deviceID, streamURL string) error
}

// SimulatedTarget pretends a fixed set of devices is on the network
type SimulatedTarget struct {
	mu      sync.Mutex
	devices []Device
	playing map[string]string
	logger  zerolog.Logger
}

// NewSimulatedTarget returns the default living-room devices
func NewSimulatedTarget(logger zerolog.Logger) *SimulatedTarget {
	return &SimulatedTarget{
		devices: []Device{
			{ID: "smart-tv", Name: "Smart TV da Sala", Kind: "tv"},
			{ID: "chromecast", Name: "Chromecast", Kind: "chromecast"},
			{ID: "roku", Name: "Roku", Kind: "roku"},
		},
		playing: make(map[string]string),
		logger:  logger.With().Str("component", "cast").Logger(),
	}
}

func (t *SimulatedTarget) Devices(ctx context.Context) ([]Device, error) {
	out := make([]Device, len(t.devices))
	copy(out, t.devices)
	return out, nil
}

func (t *SimulatedTarget) Cast(ctx context.Context, deviceID, streamURL string) error {
	if streamURL == "" {
		return domain.NewValidationError("stream_url", "is required")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, d := range t.devices {
		if d.ID == deviceID {
			t.playing[deviceID] = streamURL
			t.logger.Info().Str("device", d.Name).Str("stream_url", streamURL).Msg("Casting stream")
			return nil
		}
	}
	return fmt.Errorf("device %q: %w", deviceID, domain.ErrNotFound)
}

// NowPlaying returns what a device was last asked to play
func (t *SimulatedTarget) NowPlaying(deviceID string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	url, ok := t.playing[deviceID]
	return url, ok
}
