package cast

import (
	"context"
	"errors"
	"testing"

	"streamingplus/internal/domain"

	"github.com/rs/zerolog"
)

func TestSimulatedTargetDevices(t *testing.T) {
	target := NewSimulatedTarget(zerolog.Nop())

	devices, err := target.Devices(context.Background())
	if err != nil {
		t.Fatalf("Devices: %v", err)
	}
	if len(devices) != 3 {
		t.Fatalf("got %d devices", len(devices))
	}

	// callers get a copy
	devices[0].Name = "changed"
	again, _ := target.Devices(context.Background())
	if again[0].Name == "changed" {
		t.Error("Devices exposed internal slice")
	}
}

func TestSimulatedTargetCast(t *testing.T) {
	target := NewSimulatedTarget(zerolog.Nop())
	ctx := context.Background()

	tests := []struct {
		name    string
		device  string
		url     string
		wantErr error
	}{
		{"chromecast", "chromecast", "https://cdn/live.m3u8", nil},
		{"unknown device", "toaster", "https://cdn/live.m3u8", domain.ErrNotFound},
		{"missing url", "roku", "", domain.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := target.Cast(ctx, tt.device, tt.url)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Cast error = %v, want %v", err, tt.wantErr)
				}
				if _, ok := target.NowPlaying(tt.device); ok {
					t.Error("failed cast recorded as playing")
				}
				return
			}
			if err != nil {
				t.Fatalf("Cast: %v", err)
			}
			if got, ok := target.NowPlaying(tt.device); !ok || got != tt.url {
				t.Errorf("NowPlaying = %q, %v", got, ok)
			}
		})
	}
}
