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
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alwitt/goutils"
	"github.com/apex/log"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/vidstream/feedrelay/common"
)

// scriptedNotifier test notifier returning a canned error
type scriptedNotifier struct {
	received  []common.ContentRecord
	returnErr error
}

func (n *scriptedNotifier) NotifyUpload(
	ctxt context.Context, content common.ContentRecord,
) error {
	n.received = append(n.received, content)
	return n.returnErr
}

func TestUploadNotifyEndpoint(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)

	notify := &scriptedNotifier{}
	uut, err := GetAPIRestUploadNotifyHandler(notify, &common.HTTPConfig{
		Logging: common.HTTPRequestLogging{
			RequestIDHeader: "Feedrelay-Request-ID",
		},
	})
	assert.Nil(err)

	testContent := common.ContentRecord{
		ID:         uuid.New().String(),
		OwnerID:    uuid.New().String(),
		Title:      "unit test upload",
		UploadedAt: time.Now().UTC(),
	}

	// Case 0: health check endpoints
	{
		req, err := http.NewRequest("GET", "/alive", nil)
		assert.Nil(err)
		respRecorder := httptest.NewRecorder()
		uut.AliveHandler().ServeHTTP(respRecorder, req)
		assert.Equal(http.StatusOK, respRecorder.Code)
	}
	{
		req, err := http.NewRequest("GET", "/ready", nil)
		assert.Nil(err)
		respRecorder := httptest.NewRecorder()
		uut.ReadyHandler().ServeHTTP(respRecorder, req)
		assert.Equal(http.StatusOK, respRecorder.Code)
	}

	// Case 1: well formed notification
	{
		body, err := json.Marshal(&testContent)
		assert.Nil(err)
		req, err := http.NewRequest("POST", "/v1/feed/content", bytes.NewReader(body))
		assert.Nil(err)

		respRecorder := httptest.NewRecorder()
		uut.NotifyUploadHandler().ServeHTTP(respRecorder, req)

		assert.Equal(http.StatusOK, respRecorder.Code)
		assert.Len(notify.received, 1)
		assert.Equal(testContent.ID, notify.received[0].ID)
		var msg goutils.RestAPIBaseResponse
		assert.Nil(json.Unmarshal(respRecorder.Body.Bytes(), &msg))
		assert.True(msg.Success)
	}

	// Case 2: malformed request body
	{
		req, err := http.NewRequest(
			"POST", "/v1/feed/content", bytes.NewReader([]byte("not json")),
		)
		assert.Nil(err)

		respRecorder := httptest.NewRecorder()
		uut.NotifyUploadHandler().ServeHTTP(respRecorder, req)

		assert.Equal(http.StatusBadRequest, respRecorder.Code)
	}

	// Case 3: content record missing required fields
	{
		body, err := json.Marshal(&common.ContentRecord{Title: "no IDs"})
		assert.Nil(err)
		req, err := http.NewRequest("POST", "/v1/feed/content", bytes.NewReader(body))
		assert.Nil(err)

		respRecorder := httptest.NewRecorder()
		uut.NotifyUploadHandler().ServeHTTP(respRecorder, req)

		assert.Equal(http.StatusBadRequest, respRecorder.Code)
	}

	// Case 4: unknown content owner
	{
		notify.returnErr = common.ErrOwnerNotFound
		body, err := json.Marshal(&testContent)
		assert.Nil(err)
		req, err := http.NewRequest("POST", "/v1/feed/content", bytes.NewReader(body))
		assert.Nil(err)

		respRecorder := httptest.NewRecorder()
		uut.NotifyUploadHandler().ServeHTTP(respRecorder, req)

		assert.Equal(http.StatusNotFound, respRecorder.Code)
	}

	// Case 5: notifier internal failure
	{
		notify.returnErr = common.ErrRelayUnavailable
		body, err := json.Marshal(&testContent)
		assert.Nil(err)
		req, err := http.NewRequest("POST", "/v1/feed/content", bytes.NewReader(body))
		assert.Nil(err)

		respRecorder := httptest.NewRecorder()
		uut.NotifyUploadHandler().ServeHTTP(respRecorder, req)

		assert.Equal(http.StatusInternalServerError, respRecorder.Code)
	}
}
