package settings

import (
	"net/url"
	"time"
)

type KafkaSettings struct {
	Hosts     []string
	Blocks    string
	Partition int
}

type PostgresSettings struct {
	MaxIdleConns int
	MaxOpenConns int
}

type RichListSettings struct {
	// StoreURL selects the storage backend by scheme: memory, sqlite, sqlitememory, postgres,
	// leveldb or leveldbmemory.
	StoreURL *url.URL
	// NodeRPC is the JSON-RPC endpoint of the node, credentials in the user info.
	NodeRPC *url.URL
	NodeZMQ *url.URL
	// NotificationSource is one of zmq, kafka or poll.
	NotificationSource string
	PollInterval       time.Duration
	FetchConcurrency   int
	ListSize           int
	ProgressInterval   int
	HeaderCacheTTL     time.Duration
	RPCRetries         int
	RPCBackoff         time.Duration
	HTTPListenAddress  string
	APIPrefix          string
	DBTimeout          time.Duration
	DBWriteTimeout     time.Duration
}

type Settings struct {
	ServiceName             string
	LogLevel                string
	PrettyLogs              bool
	DataFolder              string
	PrometheusEndpoint      string
	PrometheusListenAddress string
	Postgres                PostgresSettings
	Kafka                   KafkaSettings
	RichList                RichListSettings
}
