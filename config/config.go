/*
 * MIT License
 *
 * Copyright (c) 2021 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package config defines the layer's tunables as a single struct that
// decodes cleanly from YAML/JSON/TOML via github.com/spf13/viper, or
// directly via gopkg.in/yaml.v3 when Viper isn't in play.
package config

import (
	"github.com/sirupsen/logrus"

	"github.com/nabbar/netmux/duration"
)

// Config is the full set of layer-construction tunables.
type Config struct {
	// NThreads is the fixed worker pool size (network threads).
	NThreads int `mapstructure:"nThreads" yaml:"nThreads" json:"nThreads"`
	// NClients is the global admission cap across all workers (0 = unbounded).
	NClients int `mapstructure:"nClients" yaml:"nClients" json:"nClients"`
	// Realtime is passed through to each worker's config but nothing
	// reads it: it changes neither scheduling nor batching (see
	// DESIGN.md).
	Realtime bool `mapstructure:"realtime" yaml:"realtime" json:"realtime"`

	ConnIdleTimeout   duration.Duration `mapstructure:"connIdleTimeout" yaml:"connIdleTimeout" json:"connIdleTimeout"`
	KeepaliveInterval duration.Duration `mapstructure:"keepaliveInterval" yaml:"keepaliveInterval" json:"keepaliveInterval"`
	ConnectTimeout    duration.Duration `mapstructure:"connectTimeout" yaml:"connectTimeout" json:"connectTimeout"`

	WriteQueueSize int `mapstructure:"writeQueueSize" yaml:"writeQueueSize" json:"writeQueueSize"`
	TaskQueueSize  int `mapstructure:"taskQueueSize" yaml:"taskQueueSize" json:"taskQueueSize"`

	Logger LoggerConfig `mapstructure:"logger" yaml:"logger" json:"logger"`
}

// LoggerConfig configures the netmux/logger facade.
type LoggerConfig struct {
	Level string `mapstructure:"level" yaml:"level" json:"level"`
}

// Default returns a Config with the defaults the reference CLI and
// tests build on: 4 workers, unbounded admission, a 5-minute idle
// timeout, 30-second keepalive, 5-second connect deadline.
func Default() Config {
	return Config{
		NThreads:          4,
		NClients:          0,
		ConnIdleTimeout:   duration.Seconds(300),
		KeepaliveInterval: duration.Seconds(30),
		ConnectTimeout:    duration.Seconds(5),
		WriteQueueSize:    1024,
		TaskQueueSize:     1024,
		Logger:            LoggerConfig{Level: "info"},
	}
}

// LogLevel parses the configured level string, falling back to Info on
// anything unrecognised rather than failing layer construction over a
// typo'd config value.
func (c Config) LogLevel() logrus.Level {
	lvl, err := logrus.ParseLevel(c.Logger.Level)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}
