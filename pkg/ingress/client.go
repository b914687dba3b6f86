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

// Package ingress is a client for the runtime's public API: invoking
// services from outside an invocation and completing awakeables held by
// external parties.
package ingress

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"durable-sdk/pkg/config"
	"durable-sdk/pkg/utils"
)

// Client talks to the runtime ingress.
type Client struct {
	http *resty.Client
}

// New creates a client from config. BaseURL defaults to the local runtime.
func New(cfg *config.Config) *Client {
	baseURL := "http://localhost:8080"
	authToken := ""
	timeout := 30 * time.Second
	if cfg != nil {
		baseURL = utils.CoalesceString(cfg.Ingress.BaseURL, baseURL)
		authToken = cfg.Ingress.AuthToken
		if d, err := time.ParseDuration(cfg.Ingress.Timeout); err == nil && cfg.Ingress.Timeout != "" {
			timeout = d
		}
	}
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	if authToken != "" {
		c.SetAuthToken(authToken)
	}
	return &Client{http: c}
}

// Invoke calls service/method with a JSON request body and returns the
// response body. An idempotency key is attached so runtime-side retries
// deduplicate.
func (c *Client) Invoke(ctx context.Context, service, method string, request any) ([]byte, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Idempotency-Key", uuid.NewString()).
		SetBody(request).
		Post(fmt.Sprintf("/%s/%s", service, method))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("POST /%s/%s: %s", service, method, resp.String())
	}
	return resp.Body(), nil
}

// ResolveAwakeable completes the awakeable with a JSON value.
func (c *Client) ResolveAwakeable(ctx context.Context, id string, value any) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(value).
		Post(fmt.Sprintf("/awakeables/%s/resolve", id))
	if err != nil {
		return err
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("resolve awakeable %s: %s", id, resp.String())
	}
	return nil
}

// RejectAwakeable completes the awakeable with a failure reason.
func (c *Client) RejectAwakeable(ctx context.Context, id string, reason string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"reason": reason}).
		Post(fmt.Sprintf("/awakeables/%s/reject", id))
	if err != nil {
		return err
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("reject awakeable %s: %s", id, resp.String())
	}
	return nil
}
