package rtt

import (
	"context"
	"testing"
)

type namedChannel string

func (c namedChannel) Name() string                               { return string(c) }
func (c namedChannel) BufferSize() int                            { return 0 }
func (c namedChannel) Read(context.Context, []byte) (int, error) { return 0, nil }

func TestChannelName(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"defmt", "defmt"},
		{"", "unnamed"},
	}

	for _, tt := range tests {
		if got := ChannelName(namedChannel(tt.name)); got != tt.want {
			t.Errorf("ChannelName(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}
