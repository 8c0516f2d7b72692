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
	"encoding/json"
	"errors"
	"net/http"

	"github.com/alwitt/goutils"
	"github.com/apex/log"
	"github.com/go-playground/validator/v10"
	"github.com/vidstream/feedrelay/common"
	"github.com/vidstream/feedrelay/notifier"
)

// APIRestUploadNotifyHandler REST handler for upload pipeline notifications
type APIRestUploadNotifyHandler struct {
	goutils.RestAPIHandler
	notify   notifier.UploadNotifier
	validate *validator.Validate
}

// GetAPIRestUploadNotifyHandler define APIRestUploadNotifyHandler
func GetAPIRestUploadNotifyHandler(
	notify notifier.UploadNotifier, httpConfig *common.HTTPConfig,
) (APIRestUploadNotifyHandler, error) {
	logTags := log.Fields{
		"module":    "rest",
		"component": "upload-notify",
	}
	return APIRestUploadNotifyHandler{
		RestAPIHandler: getRestAPIHandlerBase(logTags, httpConfig),
		notify:         notify,
		validate:       validator.New(),
	}, nil
}

// =======================================================================
// Upload notification

// -----------------------------------------------------------------------

// NotifyUpload godoc
// @Summary Announce uploaded content
// @Description Called by the upload pipeline exactly once after a content
// record is durably created. Fans a content-published event out to the
// uploader's followers.
// @tags Feed
// @Accept json
// @Produce json
// @Param Feedrelay-Request-ID header string false "User provided request ID to match against logs"
// @Param content body common.ContentRecord true "The created content record"
// @Success 200 {object} goutils.RestAPIBaseResponse "success"
// @Failure 400 {object} goutils.RestAPIBaseResponse "error"
// @Failure 404 {object} goutils.RestAPIBaseResponse "error"
// @Failure 500 {object} goutils.RestAPIBaseResponse "error"
// @Header 200,400,404,500 {string} Feedrelay-Request-ID "Request ID to match against logs"
// @Router /v1/feed/content [post]
func (h APIRestUploadNotifyHandler) NotifyUpload(w http.ResponseWriter, r *http.Request) {
	localLogTags := h.GetLogTagsForContext(r.Context())
	var respCode int
	var respBody interface{}
	defer func() {
		if err := h.WriteRESTResponse(w, respCode, respBody, nil); err != nil {
			log.WithError(err).WithFields(localLogTags).Error("Failed to form response")
		}
	}()

	var content common.ContentRecord
	if err := json.NewDecoder(r.Body).Decode(&content); err != nil {
		msg := "Unable to parse request body"
		log.WithError(err).WithFields(localLogTags).Error(msg)
		respCode = http.StatusBadRequest
		respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusBadRequest, msg, err.Error())
		return
	}
	if err := h.validate.Struct(&content); err != nil {
		msg := "Invalid content record"
		log.WithError(err).WithFields(localLogTags).Error(msg)
		respCode = http.StatusBadRequest
		respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusBadRequest, msg, err.Error())
		return
	}

	if err := h.notify.NotifyUpload(r.Context(), content); err != nil {
		if errors.Is(err, common.ErrOwnerNotFound) {
			msg := "Content owner not found"
			log.WithError(err).WithFields(localLogTags).Error(msg)
			respCode = http.StatusNotFound
			respBody = h.GetStdRESTErrorMsg(r.Context(), http.StatusNotFound, msg, err.Error())
			return
		}
		msg := "Unable to announce content"
		log.WithError(err).WithFields(localLogTags).Error(msg)
		respCode = http.StatusInternalServerError
		respBody = h.GetStdRESTErrorMsg(
			r.Context(), http.StatusInternalServerError, msg, err.Error(),
		)
		return
	}

	respCode = http.StatusOK
	respBody = h.GetStdRESTSuccessMsg(r.Context())
}

// NotifyUploadHandler Wrapper around NotifyUpload
func (h APIRestUploadNotifyHandler) NotifyUploadHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.NotifyUpload(w, r)
	}
}

// =======================================================================
// Health Checks

// -----------------------------------------------------------------------

// Alive godoc
// @Summary For feed server liveness check
// @Description Will return success to indicate the feed server is live
// @tags Feed
// @Produce json
// @Success 200 {object} goutils.RestAPIBaseResponse "success"
// @Failure 400 {string} string "error"
// @Router /alive [get]
func (h APIRestUploadNotifyHandler) Alive(w http.ResponseWriter, r *http.Request) {
	localLogTags := h.GetLogTagsForContext(r.Context())
	if err := h.WriteRESTResponse(
		w, http.StatusOK, h.GetStdRESTSuccessMsg(r.Context()), nil,
	); err != nil {
		log.WithError(err).WithFields(localLogTags).Error("Failed to form response")
	}
}

// AliveHandler Wrapper around Alive
func (h APIRestUploadNotifyHandler) AliveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.Alive(w, r)
	}
}

// -----------------------------------------------------------------------

// Ready godoc
// @Summary For feed server readiness check
// @Description Will return success if the feed server is ready for use
// @tags Feed
// @Produce json
// @Success 200 {object} goutils.RestAPIBaseResponse "success"
// @Failure 400 {string} string "error"
// @Router /ready [get]
func (h APIRestUploadNotifyHandler) Ready(w http.ResponseWriter, r *http.Request) {
	localLogTags := h.GetLogTagsForContext(r.Context())
	if err := h.WriteRESTResponse(
		w, http.StatusOK, h.GetStdRESTSuccessMsg(r.Context()), nil,
	); err != nil {
		log.WithError(err).WithFields(localLogTags).Error("Failed to form response")
	}
}

// ReadyHandler Wrapper around Ready
func (h APIRestUploadNotifyHandler) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.Ready(w, r)
	}
}
