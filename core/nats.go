package core

import (
	"context"
	"time"

	"github.com/apex/log"
	"github.com/nats-io/nats.go"
	"github.com/vidstream/feedrelay/common"
)

// NATSConnectParams NATS connection parameter
type NATSConnectParams struct {
	// ServerURI connect to NATS cluster with URI
	ServerURI string `validate:"required,uri"`
	// ConnectTimeout max time to wait for connection
	ConnectTimeout time.Duration
	// MaxReconnectAttempt on connection failure, max number of reconnect
	// attempt. "-1" means infinite
	MaxReconnectAttempt int
	// ReconnectWait wait duration between reconnect attempts
	ReconnectWait time.Duration
	// OnDisconnectCallback callback on disconnect
	OnDisconnectCallback func(*nats.Conn, error)
	// OnReconnectCallback callback on reconnect
	OnReconnectCallback func(*nats.Conn)
	// OnCloseCallback callback on close
	OnCloseCallback func(*nats.Conn)
}

// NatsClient NATS client used as the relay backplane transport.
//
// Core NATS only. The feed layer is best-effort by design, so no JetStream
// persistence sits behind the backplane.
type NatsClient struct {
	common.Component
	nc *nats.Conn
}

// Close close the NATS client
func (c NatsClient) Close(ctxt context.Context) {
	if err := c.nc.FlushWithContext(ctxt); err != nil {
		log.WithError(err).WithFields(c.LogTags).Errorf("NATS flush failed")
	}
	c.nc.Close()
	log.WithFields(c.LogTags).Infof("Close NATS client")
}

// NATS fetch the underlying NATS connection
func (c NatsClient) NATS() *nats.Conn {
	return c.nc
}

// GetNatsClient define a new NATS client
func GetNatsClient(param NATSConnectParams) (NatsClient, error) {
	logTags := log.Fields{
		"module":    "core",
		"component": "nats-backend",
		"instance":  param.ServerURI,
	}
	nc, err := nats.Connect(
		param.ServerURI,
		nats.Timeout(param.ConnectTimeout),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(param.MaxReconnectAttempt),
		nats.ReconnectWait(param.ReconnectWait),
		nats.DisconnectErrHandler(param.OnDisconnectCallback),
		nats.ReconnectHandler(param.OnReconnectCallback),
		nats.ClosedHandler(param.OnCloseCallback),
	)
	if err != nil {
		log.WithError(err).WithFields(logTags).Errorf("NATS client connect failed")
		return NatsClient{}, err
	}
	log.WithFields(logTags).Info("Created NATS client")
	return NatsClient{
		Component: common.Component{LogTags: logTags},
		nc:        nc,
	}, nil
}
