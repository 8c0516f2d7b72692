package common

import "github.com/spf13/viper"

// ===============================================================================
// NATS Related Config

// NATSReconnectConfig defines reconnect parameters
type NATSReconnectConfig struct {
	// MaxAttempts sets the max number of reconnect attempts (-1 is unlimited)
	MaxAttempts int `mapstructure:"max_attempts" json:"max_attempts" validate:"gte=-1"`
	// WaitInterval is the duration between reconnect attempts in seconds
	WaitInterval int `mapstructure:"wait_interval_sec" json:"wait_interval_sec" validate:"gte=1"`
}

// NATSConfig defines parameters for connecting to the NATS relay backplane
type NATSConfig struct {
	// ServerURI is the NATS connection URI
	ServerURI string `mapstructure:"server_uri" json:"server_uri" validate:"required,uri"`
	// ConnectTimeout is the max duration for connecting to NATS server in seconds
	ConnectTimeout int `mapstructure:"connect_timeout_sec" json:"connect_timeout_sec" validate:"gte=1"`
	// Reconnect defines reconnect parameters
	Reconnect NATSReconnectConfig `mapstructure:"reconnect" json:"reconnect" validate:"required,dive"`
}

// ===============================================================================
// Data Store Related Config

// DatastoreConfig defines parameters for reaching the platform data store.
//
// The data store is owned by the core platform; the feed layer only runs
// read-only queries against it.
type DatastoreConfig struct {
	// ConnectURI is the Postgres connection URI
	ConnectURI string `mapstructure:"connect_uri" json:"connect_uri" validate:"required,uri"`
	// MaxOpenConns caps the connection pool size
	MaxOpenConns int `mapstructure:"max_open_conns" json:"max_open_conns" validate:"gte=1"`
	// CallTimeout is the max duration of a single query in seconds
	CallTimeout int `mapstructure:"call_timeout_sec" json:"call_timeout_sec" validate:"gte=1"`
}

// ===============================================================================
// HTTP Related Config

// HTTPServerConfig defines the HTTP server parameters
type HTTPServerConfig struct {
	// ListenOn is the interface the HTTP server will listen on
	ListenOn string `mapstructure:"listen_on" json:"listen_on" validate:"required,ip"`
	// Port is the port the HTTP server will listen on
	Port uint16 `mapstructure:"listen_port" json:"listen_port" validate:"required,gt=0,lt=65536"`
	// ReadTimeout is the maximum duration for reading the entire
	// request, including the body in seconds. A zero or negative
	// value means there will be no timeout.
	ReadTimeout int `mapstructure:"read_timeout_sec" json:"read_timeout_sec" validate:"gte=0"`
	// WriteTimeout is the maximum duration before timing out
	// writes of the response in seconds. A zero or negative value
	// means there will be no timeout.
	//
	// Must stay zero for the feed server: websocket sessions are long lived.
	WriteTimeout int `mapstructure:"write_timeout_sec" json:"write_timeout_sec" validate:"gte=0"`
	// IdleTimeout is the maximum amount of time to wait for the
	// next request when keep-alives are enabled in seconds. If
	// IdleTimeout is zero, the value of ReadTimeout is used. If
	// both are zero, there is no timeout.
	IdleTimeout int `mapstructure:"idle_timeout_sec" json:"idle_timeout_sec" validate:"gte=0"`
}

// HTTPRequestLogging defines HTTP request logging parameters
type HTTPRequestLogging struct {
	// RequestIDHeader is the HTTP header containing the API request ID
	RequestIDHeader string `mapstructure:"request_id_header" json:"request_id_header"`
	// DoNotLogHeaders is the list of headers to not include in logging metadata
	DoNotLogHeaders []string `mapstructure:"do_not_log_headers" json:"do_not_log_headers"`
}

// HTTPConfig defines HTTP API / server parameters
type HTTPConfig struct {
	// Server defines HTTP server parameters
	Server HTTPServerConfig `mapstructure:"server_config" json:"server_config" validate:"required,dive"`
	// Logging defines operation logging parameters
	Logging HTTPRequestLogging `mapstructure:"logging_config" json:"logging_config" validate:"required,dive"`
}

// ===============================================================================
// Feed Server Related Config

// FeedEndpointConfig defines feed API endpoint config
type FeedEndpointConfig struct {
	// PathPrefix is the end-point path prefix for the feed APIs
	PathPrefix string `mapstructure:"path_prefix" json:"path_prefix" validate:"required"`
}

// WebsocketConfig defines client websocket session parameters
type WebsocketConfig struct {
	// SendBufferLen is the per-connection outbound message buffer length.
	// Dispatch to a connection with a full buffer drops the event for
	// that connection.
	SendBufferLen int `mapstructure:"send_buffer_len" json:"send_buffer_len" validate:"gte=1"`
	// PingInterval is the keep-alive ping period in seconds
	PingInterval int `mapstructure:"ping_interval_sec" json:"ping_interval_sec" validate:"gte=1"`
}

// FeedServerConfig defines configuration for a feed server instance
type FeedServerConfig struct {
	// HTTPSetting is the HTTP API / server parameters for the feed server
	HTTPSetting HTTPConfig `mapstructure:"api_server" json:"api_server" validate:"required,dive"`
	// Endpoints is the API endpoint config parameters for the feed server
	Endpoints FeedEndpointConfig `mapstructure:"endpoint_config" json:"endpoint_config" validate:"required,dive"`
	// Websocket is the client session parameters
	Websocket WebsocketConfig `mapstructure:"websocket" json:"websocket" validate:"required,dive"`
}

// ===============================================================================
// Trending Job Related Config

// TrendingJobConfig defines configuration for the trending recomputation runner
type TrendingJobConfig struct {
	// Interval is the wall-clock period between recomputation runs in seconds
	Interval int `mapstructure:"interval_sec" json:"interval_sec" validate:"gte=1"`
	// Threshold is the minimum engagement count for content to be
	// considered trending
	Threshold int64 `mapstructure:"threshold" json:"threshold" validate:"gte=0"`
	// TopN caps the number of items published per run
	TopN int `mapstructure:"top_n" json:"top_n" validate:"gte=1"`
}

// ===============================================================================
// Complete Config

// SystemConfig defines the complete system config used by either the feed
// server or the trending runner
type SystemConfig struct {
	// NATS are the relay backplane config parameters
	NATS NATSConfig `mapstructure:"nats" json:"nats" validate:"required,dive"`
	// Datastore are the platform data store config parameters
	Datastore DatastoreConfig `mapstructure:"datastore" json:"datastore" validate:"required,dive"`
	// Feed are the feed server configs
	Feed *FeedServerConfig `mapstructure:"feed,omitempty" json:"feed,omitempty" validate:"omitempty,dive"`
	// Trending are the trending recomputation runner configs
	Trending *TrendingJobConfig `mapstructure:"trending,omitempty" json:"trending,omitempty" validate:"omitempty,dive"`
}

// ===============================================================================

// InstallDefaultConfigValues installs default config parameters in viper
func InstallDefaultConfigValues() {
	// Default NATS settings
	viper.SetDefault("nats.server_uri", "nats://127.0.0.1:4222")
	viper.SetDefault("nats.connect_timeout_sec", 30)
	viper.SetDefault("nats.reconnect.max_attempts", -1)
	viper.SetDefault("nats.reconnect.wait_interval_sec", 15)

	// Default data store settings
	viper.SetDefault(
		"datastore.connect_uri", "postgres://127.0.0.1:5432/vidstream?sslmode=disable",
	)
	viper.SetDefault("datastore.max_open_conns", 4)
	viper.SetDefault("datastore.call_timeout_sec", 15)

	// Default feed server settings
	viper.SetDefault("feed.endpoint_config.path_prefix", "/")
	viper.SetDefault("feed.api_server.server_config.listen_on", "0.0.0.0")
	viper.SetDefault("feed.api_server.server_config.listen_port", 3000)
	viper.SetDefault("feed.api_server.server_config.read_timeout_sec", 60)
	viper.SetDefault("feed.api_server.server_config.write_timeout_sec", 0)
	viper.SetDefault("feed.api_server.server_config.idle_timeout_sec", 600)
	viper.SetDefault(
		"feed.api_server.logging_config.request_id_header", "Feedrelay-Request-ID",
	)
	viper.SetDefault(
		"feed.api_server.logging_config.do_not_log_headers", []string{
			"WWW-Authenticate", "Authorization", "Proxy-Authenticate", "Proxy-Authorization",
		},
	)
	viper.SetDefault("feed.websocket.send_buffer_len", 16)
	viper.SetDefault("feed.websocket.ping_interval_sec", 25)

	// Default trending runner settings
	viper.SetDefault("trending.interval_sec", 120)
	viper.SetDefault("trending.threshold", 50)
	viper.SetDefault("trending.top_n", 10)
}
