package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Skryldev/image-loader/config"
)

func TestDefault_IsValid(t *testing.T) {
	assert.NoError(t, config.Validate(config.Default()))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"chunk size", func(c *config.Config) { c.ChunkSize = 0 }},
		{"retries", func(c *config.Config) { c.MaxRetries = -1 }},
		{"memory cache", func(c *config.Config) { c.MemoryCacheBytes = -1 }},
		{"result cache size", func(c *config.Config) { c.ResultCache = config.DiskCacheConfig{Dir: "/tmp/x"} }},
		{"codec", func(c *config.Config) { c.ResultCodec = "gif" }},
		{"jpeg quality", func(c *config.Config) { c.ResultCodec = config.CodecJPEG; c.JPEGQuality = 0 }},
		{"display", func(c *config.Config) { c.DisplayWidth = 0 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			assert.Error(t, config.Validate(cfg))
		})
	}
}
