package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCatalog(t *testing.T) {
	tests := []struct {
		name    string
		images  []ManagedImage
		wantIDs []string
		wantErr bool
	}{
		{
			name:    "declaration order is kept",
			images:  []ManagedImage{{ID: "web", Path: "nginx:latest"}, {ID: "database", Path: "postgres:16"}},
			wantIDs: []string{"web", "database"},
		},
		{
			name:    "duplicate id",
			images:  []ManagedImage{{ID: "web", Path: "nginx:latest"}, {ID: "web", Path: "caddy:latest"}},
			wantErr: true,
		},
		{
			name:    "missing path",
			images:  []ManagedImage{{ID: "web"}},
			wantErr: true,
		},
		{
			name:    "missing id",
			images:  []ManagedImage{{Path: "nginx:latest"}},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewCatalog(tt.images...)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidImage)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantIDs, c.IDs())
			assert.Equal(t, len(tt.wantIDs), c.Len())
		})
	}
}

func TestCatalog_GetIsACopy(t *testing.T) {
	c, err := NewCatalog(ManagedImage{ID: "api", Path: "api:1", Hosts: map[string]string{"db": "database"}})
	require.NoError(t, err)
	image, ok := c.Get("api")
	require.True(t, ok)
	assert.Equal(t, "api", image.Label)
	image.Hosts["db"] = "changed"
	again, _ := c.Get("api")
	assert.Equal(t, "database", again.Hosts["db"])
	assert.True(t, c.Has("api"))
	assert.False(t, c.Has("database"))
}

func TestManagedImage_HostNamesAndEnv(t *testing.T) {
	image := ManagedImage{
		Hosts:       map[string]string{"redis": "cache", "db": "database", "mq": "10.0.0.5"},
		Environment: map[string]string{"B": "2", "A": "1"},
	}
	assert.Equal(t, []string{"db", "mq", "redis"}, image.HostNames())
	assert.Equal(t, []string{"A=1", "B=2"}, image.Env())
}

func TestImageState_ShareablePorts(t *testing.T) {
	s := ImageState{Ports: []string{"0.0.0.0:8080", "127.0.0.1:9090", "0.0.0.0:443"}}
	assert.Equal(t, []string{"0.0.0.0:8080", "0.0.0.0:443"}, s.ShareablePorts())
}

func TestDependencyError(t *testing.T) {
	err := &DependencyError{Dependency: "database", Err: ErrDependencyNoIP}
	assert.Equal(t, `Container "database" does not have an IP address`, err.Error())
	assert.ErrorIs(t, err, ErrDependencyNoIP)
	err = &DependencyError{Dependency: "database", Err: ErrDependencyNotLoaded}
	assert.Equal(t, `Container "database" is not loaded`, err.Error())
}
