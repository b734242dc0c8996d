package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectAction(t *testing.T) {
	tests := []struct {
		name     string
		up, down bool
		steps    int
		version  bool
		force    int
		want     string
		wantErr  bool
	}{
		{name: "up", up: true, force: -1, want: "up"},
		{name: "down", down: true, force: -1, want: "down"},
		{name: "steps", steps: -2, force: -1, want: "steps -2"},
		{name: "version", version: true, force: -1, want: "version"},
		{name: "force zero", force: 0, want: "force 0"},
		{name: "none", force: -1, wantErr: true},
		{name: "two actions", up: true, version: true, force: -1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			act, err := selectAction(tt.up, tt.down, tt.steps, tt.version, tt.force)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, act.name)
			if tt.want == "version" {
				assert.Nil(t, act.run)
			} else {
				assert.NotNil(t, act.run)
			}
		})
	}
}
