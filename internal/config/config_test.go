package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_AppliesDefaultsWithNoConfigFile(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "nats://localhost:4222", cfg.Bus.URL)
	assert.Equal(t, []string{"http://localhost:8481"}, cfg.ColumnarStore.Endpoints)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, 1024, cfg.WorkerPool.QueueSize)
}

func validConfig() *Config {
	cfg := &Config{}
	cfg.Bus.URL = "nats://localhost:4222"
	cfg.ColumnarStore.Endpoints = []string{"http://localhost:8481"}
	cfg.ColumnarStore.PerQueryTimeoutMS = 150
	cfg.ColumnarStore.OverallBudgetMS = 400
	cfg.Cache.Backend = "memory"
	cfg.LLM.Provider = "anthropic"
	cfg.WorkerPool.QueueSize = 1024
	return cfg
}

func TestValidate_AcceptsWellFormedConfig(t *testing.T) {
	assert.NoError(t, Validate(validConfig()))
}

func TestValidate_RejectsMissingBusURL(t *testing.T) {
	cfg := validConfig()
	cfg.Bus.URL = ""
	assert.Error(t, Validate(cfg))
}

func TestValidate_RejectsEmptyColumnarEndpoints(t *testing.T) {
	cfg := validConfig()
	cfg.ColumnarStore.Endpoints = nil
	assert.Error(t, Validate(cfg))
}

func TestValidate_RejectsNonHTTPColumnarEndpoint(t *testing.T) {
	cfg := validConfig()
	cfg.ColumnarStore.Endpoints = []string{"ftp://localhost:8481"}
	assert.Error(t, Validate(cfg))
}

func TestValidate_RejectsBudgetBelowPerQueryTimeout(t *testing.T) {
	cfg := validConfig()
	cfg.ColumnarStore.PerQueryTimeoutMS = 500
	cfg.ColumnarStore.OverallBudgetMS = 100
	assert.Error(t, Validate(cfg))
}

func TestValidate_RejectsUnknownCacheBackend(t *testing.T) {
	cfg := validConfig()
	cfg.Cache.Backend = "memcached"
	assert.Error(t, Validate(cfg))
}

func TestValidate_RejectsUnknownLLMProvider(t *testing.T) {
	cfg := validConfig()
	cfg.LLM.Provider = "cohere"
	assert.Error(t, Validate(cfg))
}

func TestValidate_RejectsNonPositiveQueueSize(t *testing.T) {
	cfg := validConfig()
	cfg.WorkerPool.QueueSize = 0
	assert.Error(t, Validate(cfg))
}
