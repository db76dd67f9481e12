package permalink_test

import (
	"testing"

	"github.com/skorper/harmony/pkg/permalink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublic(t *testing.T) {
	tests := []struct {
		name     string
		href     string
		linkType string
		want     string
	}{
		{
			name: "s3 becomes service-results URL",
			href: "s3://my-bucket/some/key.nc",
			want: "https://harmony.example/service-results/my-bucket/some/key.nc",
		},
		{
			name:     "s3 link type keeps s3 URL",
			href:     "s3://my-bucket/some/key.nc",
			linkType: "s3",
			want:     "s3://my-bucket/some/key.nc",
		},
		{
			name:     "https link type rewrites s3",
			href:     "s3://my-bucket/k",
			linkType: "https",
			want:     "https://harmony.example/service-results/my-bucket/k",
		},
		{
			name: "http passes through",
			href: "http://example.com/file.tif",
			want: "http://example.com/file.tif",
		},
		{
			name: "https passes through",
			href: "https://example.com/file.tif",
			want: "https://example.com/file.tif",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := permalink.Public(tt.href, "https://harmony.example", "application/x-netcdf4", tt.linkType)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPublic_TrailingSlashOnRoot(t *testing.T) {
	got, err := permalink.Public("s3://b/k", "https://harmony.example/", "", "")
	require.NoError(t, err)
	assert.Equal(t, "https://harmony.example/service-results/b/k", got)
}

func TestPublic_Unrecognized(t *testing.T) {
	for _, href := range []string{"ftp://example.com/f", "no-scheme", "s3:///key-without-bucket"} {
		t.Run(href, func(t *testing.T) {
			_, err := permalink.Public(href, "https://harmony.example", "", "")
			assert.ErrorIs(t, err, permalink.ErrUnrecognizedURL)
		})
	}
}
