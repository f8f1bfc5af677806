package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"docuflow/internal/config"
)

func TestNewMinIO_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.MinIOConfig
		want string
	}{
		{
			name: "missing endpoint",
			cfg:  config.MinIOConfig{AccessKey: "a", SecretKey: "s", Bucket: "b"},
			want: "minio endpoint is required",
		},
		{
			name: "missing credentials",
			cfg:  config.MinIOConfig{Endpoint: "localhost:9000", Bucket: "b"},
			want: "minio credentials are required",
		},
		{
			name: "missing bucket",
			cfg:  config.MinIOConfig{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "s"},
			want: "minio bucket is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, err := NewMinIO(context.Background(), tt.cfg)
			assert.Nil(t, st)
			assert.EqualError(t, err, tt.want)
		})
	}
}
