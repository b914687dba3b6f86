// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ingress

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"durable-sdk/pkg/config"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(&config.Config{Ingress: config.IngressConfig{BaseURL: srv.URL, AuthToken: "tok"}})
}

func TestInvoke(t *testing.T) {
	var gotPath, gotAuth, gotIdempotency string
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotIdempotency = r.Header.Get("Idempotency-Key")
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"value":5}`, string(body))
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	out, err := c.Invoke(context.Background(), "Counter", "Add", map[string]int{"value": 5})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(out))
	assert.Equal(t, "/Counter/Add", gotPath)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.NotEmpty(t, gotIdempotency)
}

func TestInvoke_ErrorStatus(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	_, err := c.Invoke(context.Background(), "Counter", "Add", nil)
	require.Error(t, err)
}

func TestAwakeables(t *testing.T) {
	var paths []string
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
	})

	require.NoError(t, c.ResolveAwakeable(context.Background(), "prom_abc", map[string]string{"v": "1"}))
	require.NoError(t, c.RejectAwakeable(context.Background(), "prom_abc", "gave up"))
	assert.Equal(t, []string{"/awakeables/prom_abc/resolve", "/awakeables/prom_abc/reject"}, paths)
}
