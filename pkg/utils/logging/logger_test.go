package logging_test

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/telemetry-lab/magpie/pkg/utils/logging"
)

func TestLoggerRedact(t *testing.T) {
	type credential struct {
		Token string `masq:"secret"`
		Name  string
	}

	var buf bytes.Buffer
	logger := logging.New(&buf, slog.LevelInfo, logging.FormatJSON, false)
	logger.Info("hello", slog.Any("cred", credential{
		Token: "aaa",
		Name:  "xxx",
	}))

	gt.S(t, buf.String()).Contains("xxx").NotContains("aaa")
}

func TestLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(&buf, slog.LevelWarn, logging.FormatJSON, false)

	logger.Info("should be dropped")
	logger.Warn("should be kept")

	gt.S(t, buf.String()).Contains("should be kept").NotContains("should be dropped")
}
