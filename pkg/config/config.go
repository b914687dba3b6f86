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

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config SDK 端点配置结构体
type Config struct {
	Endpoint   EndpointConfig   `mapstructure:"endpoint"`
	Log        LogConfig        `mapstructure:"log"`
	Identity   IdentityConfig   `mapstructure:"identity"`
	Ingress    IngressConfig    `mapstructure:"ingress"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// EndpointConfig HTTP 端点配置
type EndpointConfig struct {
	Port    int    `mapstructure:"port"`
	Host    string `mapstructure:"host"`
	Timeout string `mapstructure:"timeout"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// IdentityConfig 请求身份校验配置（ed25519；keys 为 secret store 中的公钥名）
type IdentityConfig struct {
	Enable   bool              `mapstructure:"enable"`
	Provider string            `mapstructure:"provider"` // vault | k8s | env | memory
	Keys     []string          `mapstructure:"keys"`
	Options  map[string]string `mapstructure:"options"` // Provider 相关配置（如 vault address/token）
}

// IngressConfig 运行时公共 API 客户端配置
type IngressConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	AuthToken string `mapstructure:"auth_token"` // 支持 ${ENV_VAR} 占位
	Timeout   string `mapstructure:"timeout"`
}

// MonitoringConfig 监控配置
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

// TracingConfig 链路追踪配置（OpenTelemetry）
type TracingConfig struct {
	Enable         bool   `mapstructure:"enable"`
	ServiceName    string `mapstructure:"service_name"`
	ExportEndpoint string `mapstructure:"export_endpoint"`
	Insecure       bool   `mapstructure:"insecure"`
}

// PrometheusConfig Prometheus 配置
type PrometheusConfig struct {
	Enable bool `mapstructure:"enable"`
}

// LoadConfig 加载配置文件
func LoadConfig(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("无法读取配置文件: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("无法解析配置文件: %w", err)
	}

	replaceEnvVars(&config)
	return &config, nil
}

// LoadEndpointConfig 加载端点配置（仅 configs/endpoint.yaml）
func LoadEndpointConfig() (*Config, error) {
	return LoadConfig("configs/endpoint.yaml")
}

// replaceEnvVars 替换配置中的 ${ENV_VAR} 占位
func replaceEnvVars(config *Config) {
	if strings.HasPrefix(config.Ingress.AuthToken, "$") {
		envVar := strings.TrimPrefix(strings.TrimSuffix(config.Ingress.AuthToken, "}"), "${")
		if val := os.Getenv(envVar); val != "" {
			config.Ingress.AuthToken = val
		}
	}
	for k, v := range config.Identity.Options {
		if strings.HasPrefix(v, "$") {
			envVar := strings.TrimPrefix(strings.TrimSuffix(v, "}"), "${")
			if val := os.Getenv(envVar); val != "" {
				config.Identity.Options[k] = val
			}
		}
	}
}
