// Copyright 2025 AgentSQL Authors
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

// Package config loads engine settings from an optional YAML file with
// environment overrides. Priority: environment > file > default.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variable names. Values are integers; durations are given in
// milliseconds.
const (
	EnvPoolSize         = "AGENTSQL_POOL_SIZE"
	EnvMaxIdleConns     = "AGENTSQL_MAX_IDLE_CONNS"
	EnvAcquireTimeout   = "AGENTSQL_ACQUIRE_TIMEOUT_MS"
	EnvStatementTimeout = "AGENTSQL_STATEMENT_TIMEOUT_MS"
	EnvBusyTimeout      = "AGENTSQL_BUSY_TIMEOUT_MS"
)

// Defaults.
const (
	DefaultPoolSize         = 8
	DefaultMaxIdleConns     = 4
	DefaultAcquireTimeout   = 5 * time.Second
	DefaultStatementTimeout = 30 * time.Second
	DefaultBusyTimeout      = 30000 // milliseconds, embedded engine only
)

// Settings holds the tunables of the storage engine. All fields have
// working defaults; a zero Settings is not usable, use Default() or Load().
type Settings struct {
	// PoolSize bounds the number of live connections to the engine.
	PoolSize int `yaml:"pool_size"`
	// MaxIdleConns bounds the idle connections kept open between operations.
	MaxIdleConns int `yaml:"max_idle_conns"`
	// AcquireTimeout is how long an operation waits for a pooled connection
	// before failing with a pool-exhaustion error.
	AcquireTimeout time.Duration `yaml:"acquire_timeout"`
	// StatementTimeout bounds each round trip to the engine.
	StatementTimeout time.Duration `yaml:"statement_timeout"`
	// BusyTimeoutMs is the embedded engine's lock wait, in milliseconds.
	// Ignored by the client-server engines.
	BusyTimeoutMs int `yaml:"busy_timeout_ms"`
}

// Default returns the built-in settings with environment overrides applied.
func Default() Settings {
	s := Settings{
		PoolSize:         DefaultPoolSize,
		MaxIdleConns:     DefaultMaxIdleConns,
		AcquireTimeout:   DefaultAcquireTimeout,
		StatementTimeout: DefaultStatementTimeout,
		BusyTimeoutMs:    DefaultBusyTimeout,
	}
	s.applyEnv()
	return s
}

// Load reads settings from a YAML file, then applies environment
// overrides. A missing file is not an error; the defaults are returned.
func Load(path string) (Settings, error) {
	s := Settings{
		PoolSize:         DefaultPoolSize,
		MaxIdleConns:     DefaultMaxIdleConns,
		AcquireTimeout:   DefaultAcquireTimeout,
		StatementTimeout: DefaultStatementTimeout,
		BusyTimeoutMs:    DefaultBusyTimeout,
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		s.applyEnv()
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("read settings: %w", err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("parse settings %s: %w", path, err)
	}
	s.normalize()
	s.applyEnv()
	return s, nil
}

// normalize replaces zero or negative values left by partial YAML files
// with the defaults.
func (s *Settings) normalize() {
	if s.PoolSize <= 0 {
		s.PoolSize = DefaultPoolSize
	}
	if s.MaxIdleConns <= 0 {
		s.MaxIdleConns = DefaultMaxIdleConns
	}
	if s.AcquireTimeout <= 0 {
		s.AcquireTimeout = DefaultAcquireTimeout
	}
	if s.StatementTimeout <= 0 {
		s.StatementTimeout = DefaultStatementTimeout
	}
	if s.BusyTimeoutMs <= 0 {
		s.BusyTimeoutMs = DefaultBusyTimeout
	}
}

func (s *Settings) applyEnv() {
	if v, ok := envInt(EnvPoolSize); ok {
		s.PoolSize = v
	}
	if v, ok := envInt(EnvMaxIdleConns); ok {
		s.MaxIdleConns = v
	}
	if v, ok := envInt(EnvAcquireTimeout); ok {
		s.AcquireTimeout = time.Duration(v) * time.Millisecond
	}
	if v, ok := envInt(EnvStatementTimeout); ok {
		s.StatementTimeout = time.Duration(v) * time.Millisecond
	}
	if v, ok := envInt(EnvBusyTimeout); ok {
		s.BusyTimeoutMs = v
	}
}

func envInt(name string) (int, bool) {
	raw := os.Getenv(name)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}
