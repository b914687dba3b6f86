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

// Package endpoint serves registered services over HTTP: one route per
// invocation, request body = inbound message stream, response body =
// outbound message stream. The engine sees only its adapter contract; the
// endpoint is the adapter.
package endpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	hertzconfig "github.com/cloudwego/hertz/pkg/common/config"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	hertzslog "github.com/hertz-contrib/logger/slog"
	"github.com/hertz-contrib/obs-opentelemetry/provider"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"

	"durable-sdk/internal/engine"
	"durable-sdk/internal/identity"
	"durable-sdk/pkg/config"
	"durable-sdk/pkg/log"
	"durable-sdk/pkg/metrics"
	"durable-sdk/pkg/sdk"
	"durable-sdk/pkg/tracing"
	"durable-sdk/pkg/utils"
)

// otelProviderShutdown 用于优雅关闭时关闭 OpenTelemetry provider
type otelProviderShutdown interface {
	Shutdown(ctx context.Context) error
}

// Endpoint 装配 Hertz 服务与 invocation 引擎
type Endpoint struct {
	cfg          *config.Config
	registry     *sdk.Registry
	logger       *log.Logger
	verifier     *identity.Verifier
	hertz        *server.Hertz
	otelProvider otelProviderShutdown
}

// New creates an endpoint serving the registry's services. verifier may be
// nil to disable request identity verification.
func New(cfg *config.Config, registry *sdk.Registry, logger *log.Logger, verifier *identity.Verifier) *Endpoint {
	return &Endpoint{cfg: cfg, registry: registry, logger: logger, verifier: verifier}
}

// Run 启动 HTTP 服务，addr 如 ":9080"
func (e *Endpoint) Run(addr string) error {
	e.logger.Info("endpoint 启动", "addr", addr)

	// 使用 Hertz slog 扩展，与 pkg/log 配置对齐
	output := os.Stdout
	if e.cfg != nil && e.cfg.Log.File != "" {
		f, err := os.OpenFile(e.cfg.Log.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("打开日志文件失败: %w", err)
		}
		output = f
	}
	levelVar := &slog.LevelVar{}
	levelVar.Set(slog.LevelInfo)
	if e.cfg != nil {
		switch e.cfg.Log.Level {
		case "debug":
			levelVar.Set(slog.LevelDebug)
		case "warn":
			levelVar.Set(slog.LevelWarn)
		case "error":
			levelVar.Set(slog.LevelError)
		}
	}
	hertzLogger := hertzslog.NewLogger(
		hertzslog.WithOutput(output),
		hertzslog.WithLevel(levelVar),
	)
	hlog.SetLogger(hertzLogger)

	// 可选：启用链路追踪（OpenTelemetry）
	var opts []hertzconfig.Option
	opts = append(opts, server.WithHostPorts(addr))
	var tracingCfg *hertztracing.Config
	if e.cfg != nil && e.cfg.Monitoring.Tracing.Enable {
		serviceName := utils.CoalesceString(e.cfg.Monitoring.Tracing.ServiceName, "durable-sdk-endpoint")
		exportEndpoint := utils.CoalesceString(e.cfg.Monitoring.Tracing.ExportEndpoint, os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
		if exportEndpoint != "" {
			pOpts := []provider.Option{
				provider.WithServiceName(serviceName),
				provider.WithExportEndpoint(exportEndpoint),
			}
			if e.cfg.Monitoring.Tracing.Insecure {
				pOpts = append(pOpts, provider.WithInsecure())
			}
			e.otelProvider = provider.NewOpenTelemetryProvider(pOpts...)
			tracerOpt, cfg := hertztracing.NewServerTracer()
			opts = append(opts, tracerOpt)
			tracingCfg = cfg
			e.logger.Info("链路追踪已启用", "service_name", serviceName, "endpoint", exportEndpoint)
		}
	}

	e.buildServer(opts...)
	if tracingCfg != nil {
		e.hertz.Use(hertztracing.ServerMiddleware(tracingCfg))
	}
	return e.hertz.Run()
}

// buildServer 装配 Hertz 实例与路由（测试直接驱动路由，不经 Run）
func (e *Endpoint) buildServer(opts ...hertzconfig.Option) *server.Hertz {
	e.hertz = server.New(opts...)
	e.setupRoutes()
	return e.hertz
}

// Shutdown 优雅关闭
func (e *Endpoint) Shutdown(ctx context.Context) error {
	if e.otelProvider != nil {
		_ = e.otelProvider.Shutdown(ctx)
	}
	if e.hertz != nil {
		return e.hertz.Shutdown(ctx)
	}
	return nil
}

func (e *Endpoint) setupRoutes() {
	e.hertz.GET("/health", func(ctx context.Context, c *app.RequestContext) {
		c.JSON(200, map[string]string{"status": "ok"})
	})
	e.hertz.GET("/discover", e.discover)
	if e.cfg == nil || e.cfg.Monitoring.Prometheus.Enable {
		e.hertz.GET("/metrics", func(ctx context.Context, c *app.RequestContext) {
			c.Response.Header.SetContentType("text/plain; version=0.0.4")
			if err := metrics.WritePrometheus(c.Response.BodyWriter()); err != nil {
				c.AbortWithStatus(500)
			}
		})
	}
	e.hertz.POST("/invoke/:service/:method", e.invoke)
}

// discover 返回已注册的服务与方法，供运行时发现
func (e *Endpoint) discover(ctx context.Context, c *app.RequestContext) {
	type svc struct {
		Name    string   `json:"name"`
		Methods []string `json:"methods"`
	}
	var out []svc
	for _, s := range e.registry.Services() {
		out = append(out, svc{Name: s.Name(), Methods: s.Methods()})
	}
	body, _ := json.Marshal(map[string]any{"services": out})
	c.Response.Header.SetContentType("application/json")
	c.Response.SetBody(body)
}

// invoke runs one invocation in request/response mode: the whole inbound
// stream arrives as the request body, the outbound stream is returned as
// the response body.
func (e *Endpoint) invoke(ctx context.Context, c *app.RequestContext) {
	service := c.Param("service")
	method := c.Param("method")
	fn, ok := e.registry.Lookup(service, method)
	if !ok {
		c.JSON(404, map[string]string{"error": fmt.Sprintf("unknown service method %s/%s", service, method)})
		return
	}

	body := c.Request.Body()
	if e.verifier != nil {
		keyID := string(c.GetHeader(identity.HeaderKeyID))
		signature := string(c.GetHeader(identity.HeaderSignature))
		if err := e.verifier.Verify(keyID, signature, body); err != nil {
			e.logger.Warn("身份校验失败", "service", service, "method", method, "err", err)
			c.JSON(401, map[string]string{"error": "identity verification failed"})
			return
		}
	}

	eng := engine.New(engine.Options{
		Service: service,
		Method:  method,
		Handler: sdk.EngineHandler(fn),
		Logger:  e.logger,
	})
	if err := eng.PushInput(body); err != nil {
		// The engine already queued an ErrorMessage; fall through to drain.
		e.logger.Warn("invocation 输入异常", "service", service, "method", method, "err", err)
	}
	eng.CloseInput()

	_, span := tracing.StartInvocationSpan(ctx, service, method, fmt.Sprintf("%x", eng.InvocationID()))
	var out []byte
	for {
		b, ok := eng.PollOutput()
		if !ok {
			break
		}
		out = append(out, b...)
	}
	tracing.EndInvocationSpan(span, "closed")
	c.Response.Header.SetContentType("application/octet-stream")
	c.Response.SetBody(out)
}

// ParseTimeout 解析端点超时配置，无效或空时返回 defaultVal
func ParseTimeout(cfg *config.Config, defaultVal time.Duration) time.Duration {
	if cfg == nil || cfg.Endpoint.Timeout == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(cfg.Endpoint.Timeout)
	if err != nil {
		return defaultVal
	}
	return d
}
