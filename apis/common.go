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

	"github.com/alwitt/goutils"
	"github.com/apex/log"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/vidstream/feedrelay/common"
)

// MethodHandlers DICT of method-endpoint handler
type MethodHandlers map[string]http.HandlerFunc

// RegisterPathPrefix Register new method handler for an end-point
func RegisterPathPrefix(
	parentRouter *mux.Router, pathPrefix string, methodHandlers MethodHandlers,
) *mux.Router {
	router := parentRouter.PathPrefix(pathPrefix).Subrouter()
	for method, handler := range methodHandlers {
		router.Methods(method).Path("").HandlerFunc(handler)
	}
	return router
}

// AttachRequestID middleware attaching a request ID to each API request
func AttachRequestID(requestIDHeader string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		// use provided request id from incoming request if any
		reqID := r.Header.Get(requestIDHeader)
		if reqID == "" {
			// or use some generated string
			reqID = uuid.New().String()
		}
		ctxt := context.WithValue(
			r.Context(), goutils.RestRequestParamKey{}, goutils.RestRequestParam{
				ID: reqID, Method: r.Method, URI: r.URL.String(),
			},
		)
		next.ServeHTTP(rw, r.WithContext(ctxt))
	})
}

// getRestAPIHandlerBase shared goutils REST handler base for this service
func getRestAPIHandlerBase(
	logTags log.Fields, httpConfig *common.HTTPConfig,
) goutils.RestAPIHandler {
	return goutils.RestAPIHandler{
		Component: goutils.Component{
			LogTags: logTags,
			LogTagModifiers: []goutils.LogMetadataModifier{
				goutils.ModifyLogMetadataByRestRequestParam,
			},
		},
		CallRequestIDHeaderField: &httpConfig.Logging.RequestIDHeader,
		DoNotLogHeaders: func() map[string]bool {
			result := map[string]bool{}
			for _, v := range httpConfig.Logging.DoNotLogHeaders {
				result[v] = true
			}
			return result
		}(),
	}
}
