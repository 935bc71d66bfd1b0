package config

import (
	"time"

	"github.com/Sumatoshi-tech/scanreport/pkg/store"
)

// Store defaults.
const (
	DefaultStoreBackend   = BackendSQLite
	DefaultStoreCodec     = store.CodecGob
	DefaultStoreBatchSize = store.DefaultBatchSize
)

// DefaultStorePath is the sqlite file used when the sqlite backend is selected
// without a path.
const DefaultStorePath = "scanreport.db"

// Query defaults.
const (
	DefaultQueryCacheEntries = 64
	DefaultQueryPerPage      = 20
)

// Parser defaults.
const (
	DefaultParserMaxDepth      = 512
	DefaultParserMaxTokenBytes = 64 << 20
	DefaultParserFragmentSize  = 64 << 10
)

// Logging defaults.
const (
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
)

// Server defaults.
const (
	DefaultServerAddr         = "127.0.0.1:8080"
	DefaultServerReadTimeout  = 30 * time.Second
	DefaultServerWriteTimeout = 60 * time.Second
	DefaultServerIdleTimeout  = 120 * time.Second
)
