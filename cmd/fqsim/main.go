/*
Copyright 2025 The marco-fq Authors.

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

// fqsim drives the fair-queueing scheduler through a YAML-described traffic
// scenario on a virtual clock and reports per-flow service statistics. It is
// a workbench for validating pacing and fairness behavior without real
// traffic.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/mad-hin/marco-fq/internal/logging"
	"github.com/mad-hin/marco-fq/pkg/fq"
	"github.com/mad-hin/marco-fq/pkg/fq/metrics"
	"github.com/mad-hin/marco-fq/version"
)

func main() {
	var (
		scenarioPath = flag.String("scenario", "", "Path to the YAML scenario file (required).")
		metricsAddr  = flag.String("metrics-addr", "", "Optional address to serve /metrics on while the simulation runs.")
		verbosity    = flag.Int("v", logging.DEFAULT, "Log verbosity level.")
	)
	flag.Parse()

	zapCfg := zap.NewDevelopmentConfig()
	// zapr maps logr's V(n) onto zap level -n.
	zapCfg.Level = zap.NewAtomicLevelAt(zapcore.Level(-*verbosity))
	zl, err := zapCfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = zl.Sync() }()
	logger := zapr.NewLogger(zl)

	if *scenarioPath == "" {
		logger.Error(nil, "--scenario is required")
		os.Exit(1)
	}

	logger.V(logging.DEFAULT).Info("Starting fqsim", "commit", version.CommitSHA, "buildRef", version.BuildRef)

	sc, err := loadScenario(*scenarioPath)
	if err != nil {
		logger.Error(err, "Failed to load scenario", "path", *scenarioPath)
		os.Exit(1)
	}

	if err := run(sc, *metricsAddr, logger); err != nil {
		logger.Error(err, "Simulation failed")
		os.Exit(1)
	}
}

func run(sc *scenario, metricsAddr string, logger logr.Logger) error {
	clk := testingclock.NewFakePassiveClock(time.Now())
	wd := &wakeupRecorder{}

	cfg, err := sc.schedulerConfig()
	if err != nil {
		return fmt.Errorf("building scheduler config: %w", err)
	}
	s, err := fq.NewScheduler(cfg, clk, wd, logger)
	if err != nil {
		return fmt.Errorf("building scheduler: %w", err)
	}

	if metricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(metrics.NewSchedulerCollector(s.Stats))
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			logger.V(logging.DEFAULT).Info("Serving metrics", "addr", metricsAddr)
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				logger.Error(err, "Metrics server stopped")
			}
		}()
	}

	report, err := simulate(s, clk, wd, sc, logger)
	if err != nil {
		return err
	}
	report.print(os.Stdout, s.Stats())
	return nil
}
