// Package profiling starts CPU/heap pprof capture for the focus process,
// adapted from the teacher's pkg/profiling.
package profiling

import (
	"os"
	"runtime"
	"runtime/pprof"

	"github.com/sirupsen/logrus"
)

// StartCPUProfile writes a CPU profile to path until the returned func runs.
func StartCPUProfile(path string) func() {
	logrus.WithField("path", path).Info("starting CPU profile")

	file, err := os.Create(path)
	if err != nil {
		logrus.WithError(err).Fatal("could not create CPU profile file")
	}
	if err := pprof.StartCPUProfile(file); err != nil {
		logrus.WithError(err).Fatal("could not start CPU profile")
	}

	return func() {
		pprof.StopCPUProfile()
		if err := file.Close(); err != nil {
			logrus.WithError(err).Warn("could not close CPU profile file")
		}
	}
}

// StopMemoryProfile runs a GC and writes a heap profile to path.
func StopMemoryProfile(path string) {
	file, err := os.Create(path)
	if err != nil {
		logrus.WithError(err).Fatal("could not create memory profile file")
	}

	runtime.GC()

	if err := pprof.WriteHeapProfile(file); err != nil {
		logrus.WithError(err).Fatal("could not write memory profile")
	}
	if err := file.Close(); err != nil {
		logrus.WithError(err).Warn("could not close memory profile file")
	}
}
