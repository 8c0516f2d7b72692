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

package apis

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/alwitt/goutils"
	"github.com/apex/log"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/vidstream/feedrelay/common"
	"github.com/vidstream/feedrelay/registry"
)

// sessionSignal is one inbound session-level signal from a client
type sessionSignal struct {
	// Type is the signal type; only "identify" is defined
	Type string `json:"type" validate:"required,oneof=identify"`
	// UserID is the identifying user for an identify signal
	UserID string `json:"user_id" validate:"required,alphanum|uuid"`
}

// APIRestFeedSessionHandler REST handler for client feed sessions
type APIRestFeedSessionHandler struct {
	goutils.RestAPIHandler
	connections  registry.ConnectionRegistry
	upgrader     websocket.Upgrader
	pingInterval time.Duration
	validate     *validator.Validate
	baseContext  context.Context
	wg           *sync.WaitGroup
}

// GetAPIRestFeedSessionHandler define APIRestFeedSessionHandler
func GetAPIRestFeedSessionHandler(
	baseContext context.Context,
	connections registry.ConnectionRegistry,
	httpConfig *common.HTTPConfig,
	wsConfig common.WebsocketConfig,
	wg *sync.WaitGroup,
) (APIRestFeedSessionHandler, error) {
	logTags := log.Fields{
		"module":    "rest",
		"component": "feed-session",
	}
	return APIRestFeedSessionHandler{
		RestAPIHandler: getRestAPIHandlerBase(logTags, httpConfig),
		connections:    connections,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		pingInterval: time.Second * time.Duration(wsConfig.PingInterval),
		validate:     validator.New(),
		baseContext:  baseContext,
		wg:           wg,
	}, nil
}

// =======================================================================
// Client session

// -----------------------------------------------------------------------

// ClientSession godoc
// @Summary Establish a feed session
// @Description Upgrade to a websocket carrying feed events. The client sends
// an identify signal once known; the server pushes content-published and
// trending-updated events until disconnect.
// @tags Feed
// @Success 101 {string} string "protocols switched"
// @Failure 400 {string} string "error"
// @Router /v1/feed/session [get]
func (h APIRestFeedSessionHandler) ClientSession(w http.ResponseWriter, r *http.Request) {
	localLogTags := h.GetLogTagsForContext(r.Context())

	// Upgrade failure replies to the client on its own
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).WithFields(localLogTags).Error("Websocket upgrade failed")
		return
	}
	defer func() {
		if err := ws.Close(); err != nil {
			log.WithError(err).WithFields(localLogTags).Debug("Websocket close failed")
		}
	}()

	conn := h.connections.OnConnect()
	defer h.connections.OnDisconnect(conn.ID)
	localLogTags["connection"] = conn.ID
	log.WithFields(localLogTags).Info("Client connected")

	// Writer: forward dispatched payloads, keep the client alive with pings
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		pingTicker := time.NewTicker(h.pingInterval)
		defer pingTicker.Stop()
		for {
			select {
			case payload, ok := <-conn.SendQueue():
				if !ok {
					// Registry discarded the connection
					_ = ws.WriteMessage(
						websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
					)
					return
				}
				if err := ws.WriteMessage(websocket.TextMessage, payload); err != nil {
					log.WithError(err).WithFields(localLogTags).Debug("Payload write failed")
					return
				}
			case <-pingTicker.C:
				if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-h.baseContext.Done():
				return
			}
		}
	}()

	// Reader: session signals, and disconnect detection
	for {
		var signal sessionSignal
		if err := ws.ReadJSON(&signal); err != nil {
			log.WithFields(localLogTags).Info("Client disconnected")
			return
		}
		if err := h.validate.Struct(&signal); err != nil {
			log.WithError(err).WithFields(localLogTags).Warn("Ignoring invalid session signal")
			continue
		}
		switch signal.Type {
		case "identify":
			h.connections.Identify(conn.ID, signal.UserID)
		}
	}
}

// ClientSessionHandler Wrapper around ClientSession
func (h APIRestFeedSessionHandler) ClientSessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.ClientSession(w, r)
	}
}
