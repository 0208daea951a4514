package config

import (
	"fmt"
	"net/url"
)

// Validate rejects configurations that would fail at dependency-connect
// time anyway, surfacing the error at startup instead (§6 exit code 1).
func Validate(c *Config) error {
	if len(c.Bus.URL) == 0 {
		return fmt.Errorf("bus.url must be set")
	}
	if len(c.ColumnarStore.Endpoints) == 0 {
		return fmt.Errorf("columnar_store.endpoints must have at least one entry")
	}
	for _, ep := range c.ColumnarStore.Endpoints {
		if err := validateHTTPEndpoint(ep); err != nil {
			return fmt.Errorf("columnar_store.endpoints: %w", err)
		}
	}
	if c.ColumnarStore.PerQueryTimeoutMS <= 0 {
		return fmt.Errorf("columnar_store.per_query_timeout_ms must be positive")
	}
	if c.ColumnarStore.OverallBudgetMS < c.ColumnarStore.PerQueryTimeoutMS {
		return fmt.Errorf("columnar_store.overall_budget_ms must be >= per_query_timeout_ms")
	}
	switch c.Cache.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("cache.backend must be 'memory' or 'redis', got %q", c.Cache.Backend)
	}
	switch c.LLM.Provider {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("llm.provider must be 'anthropic' or 'openai', got %q", c.LLM.Provider)
	}
	if c.WorkerPool.QueueSize <= 0 {
		return fmt.Errorf("worker_pool.queue_size must be positive")
	}
	return nil
}

func validateHTTPEndpoint(endpoint string) error {
	if endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("endpoint must use http or https scheme: %s", endpoint)
	}
	if parsed.Host == "" {
		return fmt.Errorf("endpoint must include host: %s", endpoint)
	}
	return nil
}
