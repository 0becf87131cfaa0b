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

// Command netmuxd is a reference harness for netmux: it binds a
// listener, runs a plain echo Service over it, and exists to exercise
// the library end-to-end the way a real consumer would — it is not
// itself part of the core library.
package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/nabbar/netmux"
	"github.com/nabbar/netmux/config"
	"github.com/nabbar/netmux/logger"
)

var cfgFile string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "netmuxd",
		Short: "Reference echo server built on netmux",
		RunE:  run,
	}
	cmd.Flags().StringVar(&cfgFile, "config", "", "path to a YAML config file")
	cmd.Flags().String("listen", "127.0.0.1:17001", "address to listen on")
	cmd.Flags().Int("threads", 4, "number of worker threads")
	_ = viper.BindPFlag("listen", cmd.Flags().Lookup("listen"))
	_ = viper.BindPFlag("nThreads", cmd.Flags().Lookup("threads"))
	return cmd
}

func loadConfig() (cfg config.Config, listen string, err error) {
	cfg = config.Default()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err = viper.ReadInConfig(); err != nil {
			return cfg, "", err
		}
		if err = viper.Unmarshal(&cfg); err != nil {
			return cfg, "", err
		}
	}

	listen = viper.GetString("listen")
	if listen == "" {
		listen = "127.0.0.1:17001"
	}
	if n := viper.GetInt("nThreads"); n > 0 {
		cfg.NThreads = n
	}
	return cfg, listen, nil
}

func run(_ *cobra.Command, _ []string) error {
	cfg, listen, err := loadConfig()
	if err != nil {
		return err
	}

	// automaxprocs first respects any container CPU quota, then the
	// layer's worker count takes precedence: one OS thread per network
	// thread is the whole point of the fixed worker pool.
	undo, err := maxprocs.Set()
	if err != nil {
		return err
	}
	defer undo()
	if cfg.NThreads > 0 {
		runtime.GOMAXPROCS(cfg.NThreads)
	}

	log := logger.New(os.Stderr, cfg.LogLevel())

	layer, err := netmux.Create(cfg, nil, log)
	if err != nil {
		return err
	}

	host, portStr, err := net.SplitHostPort(listen)
	if err != nil {
		return err
	}
	port64, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return err
	}

	if err = layer.Listen(host, uint16(port64), onAccept(layer), nil); err != nil {
		return err
	}
	log.Info("listening on " + listen)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	<-sigc

	log.Info("shutting down")
	layer.Stop()
	layer.Destroy()
	return nil
}

// onAccept returns the listen callback that installs the echo Service
// on every accepted session.
func onAccept(layer *netmux.Layer) func(ctx, ioctx interface{}, id uint64, host string, port uint16) int32 {
	return func(ctx, ioctx interface{}, id uint64, host string, port uint16) int32 {
		svc := netmux.ServiceFuncs{
			ProcessFunc: func(ctx interface{}, buf []byte) int32 {
				_ = layer.Send(id, buf, false)
				return int32(len(buf))
			},
		}
		if err := layer.SetService(id, svc, nil); err != nil {
			return -1
		}
		return 0
	}
}
