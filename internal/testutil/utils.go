package testutil

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
)

type testWriter struct {
	t *testing.T
}

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

// TestLogger returns a logger that writes through t.Log. Output is dropped
// once the test finishes.
func TestLogger(t *testing.T) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(testWriter{t: t})
	logger.SetLevel(logrus.DebugLevel)
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	t.Cleanup(func() {
		logger.SetOutput(io.Discard)
	})
	return logger
}
