/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package request_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/labsync/labsync/internal/request"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToJsonReq(t *testing.T) {
	payload := map[string]string{"key": "value"}

	buf, err := request.ToJsonReq(payload)
	require.NoError(t, err)
	expected, _ := json.Marshal(payload)
	assert.Equal(t, expected, buf.Bytes())

	buf, err = request.ToJsonReq(map[string]interface{}{"key": make(chan int)})
	assert.Error(t, err)
	assert.Nil(t, buf)
}

func TestPostJSON_Success(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodPost, "http://hooks.example.com/labsync",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
			assert.Equal(t, "secret", req.Header.Get("X-Signature"))

			var body map[string]string
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				return nil, err
			}
			assert.Equal(t, "budget:designed", body["event"])
			return httpmock.NewStringResponse(http.StatusOK, `{"received":true}`), nil
		})

	var response map[string]bool
	resp, err := request.PostJSON(context.Background(), request.NewClient(), "http://hooks.example.com/labsync",
		map[string]string{"X-Signature": "secret"}, map[string]string{"event": "budget:designed"}, &response)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, response["received"])
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestPostJSON_EmptyBody(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodPost, "http://hooks.example.com/labsync",
		httpmock.NewStringResponder(http.StatusNoContent, ""))

	var response map[string]interface{}
	_, err := request.PostJSON(context.Background(), nil, "http://hooks.example.com/labsync", nil, map[string]int{"n": 1}, &response)
	assert.NoError(t, err)
	assert.Nil(t, response)
}

func TestPostJSON_StatusError(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodPost, "http://hooks.example.com/labsync",
		httpmock.NewStringResponder(http.StatusServiceUnavailable, "try later"))

	_, err := request.PostJSON(context.Background(), request.NewClient(), "http://hooks.example.com/labsync", nil, map[string]int{"n": 1}, nil)
	var statusErr *request.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode())
	assert.Equal(t, "try later", statusErr.Body)
}

func TestPostJSON_MalformedResponse(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodPost, "http://hooks.example.com/labsync",
		httpmock.NewStringResponder(http.StatusOK, `{malformed`))

	var response map[string]string
	resp, err := request.PostJSON(context.Background(), request.NewClient(), "http://hooks.example.com/labsync", nil, map[string]int{"n": 1}, &response)
	assert.Error(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestPostJSON_TransportError(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodPost, "http://hooks.example.com/labsync",
		httpmock.NewErrorResponder(errors.New("connection refused")))

	resp, err := request.PostJSON(context.Background(), request.NewClient(), "http://hooks.example.com/labsync", nil, map[string]int{"n": 1}, nil)
	assert.Error(t, err)
	assert.Nil(t, resp)
}
