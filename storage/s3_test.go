package storage

import (
	"testing"

	"landscout/config"
)

func TestPublicURL(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.S3Config
		want string
	}{
		{
			name: "aws",
			cfg:  config.S3Config{Bucket: "scout", Region: "ap-northeast-2"},
			want: "https://scout.s3.ap-northeast-2.amazonaws.com/listings/1/a.jpg",
		},
		{
			name: "spaces",
			cfg:  config.S3Config{Bucket: "scout", Endpoint: "https://sgp1.digitaloceanspaces.com"},
			want: "https://scout.sgp1.digitaloceanspaces.com/listings/1/a.jpg",
		},
		{
			name: "path style",
			cfg:  config.S3Config{Bucket: "scout", Endpoint: "http://localhost:9000/"},
			want: "http://localhost:9000/scout/listings/1/a.jpg",
		},
	}
	for _, tt := range tests {
		if got := PublicURL(tt.cfg, "listings/1/a.jpg"); got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.name, got, tt.want)
		}
	}
}
