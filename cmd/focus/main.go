/*
Copyright 2022 The Matrix.org Foundation C.I.C.

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

package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/signalmesh/focus/internal/admin"
	"github.com/signalmesh/focus/internal/bridge"
	"github.com/signalmesh/focus/internal/colibri"
	"github.com/signalmesh/focus/internal/config"
	"github.com/signalmesh/focus/internal/profiling"
	"github.com/signalmesh/focus/internal/router"
	"github.com/signalmesh/focus/internal/telemetry"
	"github.com/sirupsen/logrus"
)

func main() {
	configFilePath := flag.String("config", "config.yaml", "configuration file path")
	cpuProfile := flag.String("cpuProfile", "", "write CPU profile to `file`")
	memProfile := flag.String("memProfile", "", "write memory profile to `file`")
	flag.Parse()

	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, ForceColors: true})

	var stopCPUProfile func()
	if *cpuProfile != "" {
		stopCPUProfile = profiling.StartCPUProfile(*cpuProfile)
	}

	cfg, err := config.Load(*configFilePath)
	if err != nil {
		logrus.WithError(err).Fatal("could not load config")
		return
	}

	switch cfg.LogLevel {
	case "debug":
		logrus.SetLevel(logrus.DebugLevel)
	case "info":
		logrus.SetLevel(logrus.InfoLevel)
	case "warn":
		logrus.SetLevel(logrus.WarnLevel)
	case "error":
		logrus.SetLevel(logrus.ErrorLevel)
	case "fatal":
		logrus.SetLevel(logrus.FatalLevel)
	case "panic":
		logrus.SetLevel(logrus.PanicLevel)
	default:
		logrus.SetLevel(logrus.InfoLevel)
	}

	if cfg.Telemetry.JaegerURL != "" || cfg.Telemetry.OTLP.Host != "" {
		tp, err := telemetry.Setup(cfg.Telemetry)
		if err != nil {
			logrus.WithError(err).Fatal("could not set up telemetry")
			return
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(ctx); err != nil {
				logrus.WithError(err).Warn("telemetry shutdown failed")
			}
		}()
	}

	bridges := bridge.New(cfg.Bridge.ToDomain())
	adminMgr := admin.New(bridges, time.Duration(cfg.Bridge.FailureResetThresholdSeconds)*time.Second)

	// substrate and colibriTransport adapt the focus to an actual XMPP/MUC
	// connection and an actual Colibri-speaking bridge fleet. Both are
	// external collaborators (spec.md §6 Non-goals) with no implementation
	// in this repository; newSubstrate/newColibriTransport is the seam a
	// deployment wires a concrete adapter into.
	substrate, err := newSubstrate(cfg)
	if err != nil {
		logrus.WithError(err).Fatal("could not construct messaging substrate")
		return
	}
	colibriTransport, err := newColibriTransport(cfg)
	if err != nil {
		logrus.WithError(err).Fatal("could not construct Colibri transport")
		return
	}

	conferenceConfig := cfg.Conference.ToDomain(cfg.Bridge.HighStressThreshold)
	log := logrus.NewEntry(logrus.StandardLogger())

	r := router.New(substrate, colibriTransport, bridges, adminMgr, conferenceConfig, colibri.Config{RetryMaxElapsedTime: 30 * time.Second}, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go r.RunBridgeSweep(ctx, 10*time.Second)

	sig := make(chan os.Signal, 2)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	if stopCPUProfile != nil {
		stopCPUProfile()
	}
	if *memProfile != "" {
		profiling.StopMemoryProfile(*memProfile)
	}
}
