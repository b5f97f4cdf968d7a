package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPackageVersion(t *testing.T) {
	assert.True(t, PackageVersion("github.com/docker/docker") == "unknown") // only works on compiled binaries
}

func TestNormalizeReference(t *testing.T) {
	tests := []struct {
		name string
		ref  string
		want string
	}{
		{
			name: "image only - assuming latest",
			ref:  "nginx",
			want: "nginx:latest",
		},
		{
			name: "image tag",
			ref:  "nginx:latest",
			want: "nginx:latest",
		},
		{
			name: "image sha",
			ref:  "nginx@sha256:73e957703f1266530db0aeac1fd6a3f87c1e59943f4c13eb340bb8521c6041d7",
			want: "nginx@sha256:73e957703f1266530db0aeac1fd6a3f87c1e59943f4c13eb340bb8521c6041d7",
		},
		{
			name: "image tag sha",
			ref:  "nginx:latest@sha256:73e957703f1266530db0aeac1fd6a3f87c1e59943f4c13eb340bb8521c6041d7",
			want: "nginx:latest@sha256:73e957703f1266530db0aeac1fd6a3f87c1e59943f4c13eb340bb8521c6041d7",
		},
		{
			name: "repo image tag",
			ref:  "index.docker.io/library/nginx:latest",
			want: "nginx:latest",
		},
		{
			name: "docker hub user image",
			ref:  "docker.io/homeassistant/home-assistant:stable",
			want: "homeassistant/home-assistant:stable",
		},
		{
			name: "quay image tag",
			ref:  "quay.io/prometheus/node-exporter:latest",
			want: "quay.io/prometheus/node-exporter:latest",
		},
		{
			name: "some image other registry",
			ref:  "public-registry.systest-ns-na6n:5000/nginx:test",
			want: "public-registry.systest-ns-na6n:5000/nginx:test",
		},
		{
			name: "invalid reference is kept",
			ref:  "NGINX:Latest",
			want: "NGINX:Latest",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equalf(t, tt.want, NormalizeReference(tt.ref), "NormalizeReference(%v)", tt.ref)
		})
	}
}

func TestSameReference(t *testing.T) {
	assert.True(t, SameReference("nginx", "docker.io/library/nginx:latest"))
	assert.False(t, SameReference("nginx:1.25", "nginx:latest"))
}

func TestSanitizeHostname(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "web", want: "web"},
		{in: "Home_Assistant", want: "home-assistant"},
		{in: "_pi.hole_", want: "pi-hole"},
		{in: "a-very-long-identifier-that-goes-on-and-on-well-past-the-dns-label-limit", want: "a-very-long-identifier-that-goes-on-and-on-well-past-the-dns-la"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := SanitizeHostname(tt.in)
			assert.Equal(t, tt.want, got)
			assert.NoError(t, ValidateHostname(got))
		})
	}
}

func TestValidateHostname(t *testing.T) {
	assert.NoError(t, ValidateHostname("db"))
	assert.Error(t, ValidateHostname("db_primary"))
	assert.Error(t, ValidateHostname(""))
}
