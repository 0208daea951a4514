package config

import "github.com/spf13/viper"

// setDefaults mirrors the teacher's layered-defaults approach: every key
// gets a safe development default so the pipeline runs with zero
// configuration, and production deployments only need to override what
// differs.
func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")

	v.SetDefault("bus.url", "nats://localhost:4222")
	v.SetDefault("bus.max_reconnects", 10)
	v.SetDefault("bus.reconnect_wait_ms", 2000)
	v.SetDefault("bus.dlq_subject_prefix", "dlq")

	v.SetDefault("columnar_store.endpoints", []string{"http://localhost:8481"})
	v.SetDefault("columnar_store.per_query_timeout_ms", 150)
	v.SetDefault("columnar_store.overall_budget_ms", 400)

	v.SetDefault("vector_store.endpoint", "localhost:8080")
	v.SetDefault("vector_store.scheme", "http")
	v.SetDefault("vector_store.class_name", "Incident")
	v.SetDefault("vector_store.timeout_ms", 5000)
	v.SetDefault("vector_store.top_k", 3)

	v.SetDefault("llm.provider", "anthropic")
	v.SetDefault("llm.timeout_ms", 10000)
	v.SetDefault("llm.anthropic.endpoint", "https://api.anthropic.com/v1/messages")
	v.SetDefault("llm.anthropic.model", "claude-3-5-haiku-latest")
	v.SetDefault("llm.openai.endpoint", "https://api.openai.com/v1/chat/completions")
	v.SetDefault("llm.openai.model", "gpt-4o-mini")

	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.nodes", []string{"localhost:6379"})
	v.SetDefault("cache.db", 0)

	v.SetDefault("policy.path", "")

	v.SetDefault("worker_pool.workers", 0) // 0 => min(32, NumCPU*4)
	v.SetDefault("worker_pool.queue_size", 1024)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "fleetops-core")

	v.SetDefault("detector.port", 9101)
	v.SetDefault("fast_enricher.port", 9102)
	v.SetDefault("correlator.port", 9103)
	v.SetDefault("insight_enricher.port", 9104)

	v.SetDefault("incident_api.port", 8080)
	v.SetDefault("incident_api.allowed_origins", []string{"*"})
	v.SetDefault("incident_api.bleve_index_path", "./data/incidents.bleve")
}
