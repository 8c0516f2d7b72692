// Copyright 2025-2026 The feedrelay Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/vidstream/feedrelay/apis"
	"github.com/vidstream/feedrelay/common"
	"github.com/vidstream/feedrelay/core"
	"github.com/vidstream/feedrelay/datastore"
	"github.com/vidstream/feedrelay/dispatch"
	"github.com/vidstream/feedrelay/notifier"
	"github.com/vidstream/feedrelay/registry"
	"github.com/vidstream/feedrelay/relay"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// accessLogWriter forwards HTTP access log lines into the app logger
type accessLogWriter struct {
	logTags log.Fields
}

// Write logging support
func (w accessLogWriter) Write(p []byte) (n int, err error) {
	log.WithFields(w.logTags).Infof("%s", p)
	return len(p), nil
}

// RunFeedServer run one feed server instance
func RunFeedServer(
	runTimeContext context.Context,
	configs *common.FeedServerConfig,
	instance string,
	natsClient *core.NatsClient,
	store datastore.Store,
	wg *sync.WaitGroup,
) error {
	logTags := log.Fields{
		"module":    "cmd",
		"component": "feed-server",
		"instance":  instance,
	}

	connections, err := registry.GetConnectionRegistry(
		instance, configs.Websocket.SendBufferLen,
	)
	if err != nil {
		log.WithError(err).WithFields(logTags).Errorf("Unable to define connection registry")
		return err
	}

	dispatcher, err := dispatch.GetFeedDispatcher(connections, instance)
	if err != nil {
		log.WithError(err).WithFields(logTags).Errorf("Unable to define fan-out dispatcher")
		return err
	}

	localCtxt, lclCancel := context.WithCancel(runTimeContext)
	defer lclCancel()

	backplane, err := relay.GetNatsBackplane(localCtxt, natsClient, instance)
	if err != nil {
		log.WithError(err).WithFields(logTags).Errorf("Unable to define relay backplane")
		return err
	}
	// Events from every instance, this one included, flow into local fan-out
	if err := backplane.Subscribe(dispatcher.Dispatch); err != nil {
		log.WithError(err).WithFields(logTags).Errorf("Unable to subscribe to backplane")
		return err
	}

	uploadNotifier, err := notifier.GetUploadNotifier(backplane, store, instance)
	if err != nil {
		log.WithError(err).WithFields(logTags).Errorf("Unable to define upload notifier")
		return err
	}

	sessionHandler, err := apis.GetAPIRestFeedSessionHandler(
		localCtxt, connections, &configs.HTTPSetting, configs.Websocket, wg,
	)
	if err != nil {
		log.WithError(err).WithFields(logTags).Errorf("Unable to define session handler")
		return err
	}
	notifyHandler, err := apis.GetAPIRestUploadNotifyHandler(
		uploadNotifier, &configs.HTTPSetting,
	)
	if err != nil {
		log.WithError(err).WithFields(logTags).Errorf("Unable to define notify handler")
		return err
	}

	// -------------------------------------------------------------------
	// Start the HTTP server

	router := mux.NewRouter()
	mainRouter := apis.RegisterPathPrefix(router, configs.Endpoints.PathPrefix, nil)

	// Client feed session
	_ = apis.RegisterPathPrefix(
		mainRouter, "/v1/feed/session", map[string]http.HandlerFunc{
			"get": sessionHandler.ClientSessionHandler(),
		},
	)

	// Upload pipeline notification
	_ = apis.RegisterPathPrefix(
		mainRouter, "/v1/feed/content", map[string]http.HandlerFunc{
			"post": notifyHandler.NotifyUploadHandler(),
		},
	)

	// Health check
	_ = apis.RegisterPathPrefix(mainRouter, "/alive", map[string]http.HandlerFunc{
		"get": notifyHandler.AliveHandler(),
	})
	_ = apis.RegisterPathPrefix(mainRouter, "/ready", map[string]http.HandlerFunc{
		"get": notifyHandler.ReadyHandler(),
	})

	// Add request ID tracking and logging
	router.Use(func(next http.Handler) http.Handler {
		return apis.AttachRequestID(configs.HTTPSetting.Logging.RequestIDHeader, next)
	})
	router.Use(func(next http.Handler) http.Handler {
		return handlers.CombinedLoggingHandler(accessLogWriter{logTags: logTags}, next)
	})

	serverListen := fmt.Sprintf(
		"%s:%d", configs.HTTPSetting.Server.ListenOn, configs.HTTPSetting.Server.Port,
	)
	httpSrv := &http.Server{
		Addr:         serverListen,
		ReadTimeout:  time.Second * time.Duration(configs.HTTPSetting.Server.ReadTimeout),
		WriteTimeout: time.Second * time.Duration(configs.HTTPSetting.Server.WriteTimeout),
		IdleTimeout:  time.Second * time.Duration(configs.HTTPSetting.Server.IdleTimeout),
		Handler:      h2c.NewHandler(router, &http2.Server{}),
	}

	// Cancel runtime context on shutdown
	httpSrv.RegisterOnShutdown(lclCancel)

	// Start the server
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("HTTP Server Failure")
		}
	}()

	log.WithFields(logTags).Infof("Started feed server on http://%s", serverListen)

	// ============================================================================

	<-runTimeContext.Done()

	// Stop the HTTP server
	{
		ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
		defer cancel()
		if err := httpSrv.Shutdown(ctx); err != nil {
			log.WithError(err).Error("Failure during HTTP shutdown")
		}
	}

	// Close remaining client connections, then stop taking events
	connections.Drain()
	{
		ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
		defer cancel()
		backplane.Close(ctx)
	}

	return nil
}
