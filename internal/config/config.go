package config

import (
	"runtime"
	"time"
)

type Config struct {
	DataDir string

	Store     StoreConfig
	Engine    EngineConfig
	Retention RetentionConfig
	Query     QueryConfig
	IPC       IPCConfig
	Metrics   MetricsConfig
	Log       LogConfig
}

type StoreConfig struct {
	MaxPayloadSize uint32  // Maximum record size in bytes
	PaddingFactor  float64 // Slot over-allocation to absorb in-place growth
	CacheSize      int     // Decoded-document LRU entries per collection
	SyncOnWrite    bool    // Fsync the record journal on every write
}

type EngineConfig struct {
	WorkerCount int // Workers pulling mutation tasks (default: NumCPU)
	QueueSize   int // Task queue size (backpressure)
	YieldEvery  int // Documents between cooperative yields in a multi-doc scan
}

type RetentionConfig struct {
	Enabled      bool          // Enable the background purge sweep
	Interval     time.Duration // Sweep interval
	MaxBatchSize int           // Maximum versions purged per collection per sweep
	PoolSize     int           // Concurrent purge jobs (ants pool)
}

type QueryConfig struct {
	MaxResultLimit int           // Client limit is clamped to this (0 = no clamp)
	Timeout        time.Duration // Per-query timeout (0 = none)
}

type IPCConfig struct {
	SocketPath     string
	MaxConnections int // Max concurrent connection handlers (0 = unlimited)
}

type MetricsConfig struct {
	Enabled bool
	Addr    string // Listen address for the Prometheus /metrics endpoint
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Pretty bool   // Console output for development
}

func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data",
		Store: StoreConfig{
			MaxPayloadSize: 16 * 1024 * 1024,
			PaddingFactor:  1.5,
			CacheSize:      4096,
			SyncOnWrite:    false,
		},
		Engine: EngineConfig{
			WorkerCount: runtime.NumCPU(),
			QueueSize:   1024,
			YieldEvery:  1,
		},
		Retention: RetentionConfig{
			Enabled:      true,
			Interval:     1 * time.Hour,
			MaxBatchSize: 1000,
			PoolSize:     4,
		},
		Query: QueryConfig{
			MaxResultLimit: 10000,
			Timeout:        30 * time.Second,
		},
		IPC: IPCConfig{
			SocketPath:     "/tmp/chronodb.sock",
			MaxConnections: 256,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    ":9184",
		},
		Log: LogConfig{
			Level:  "info",
			Pretty: false,
		},
	}
}
