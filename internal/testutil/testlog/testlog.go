package testlog

import (
	"testing"

	"github.com/danmuck/hostbridge/internal/logging"
	"github.com/danmuck/hostbridge/internal/logs"
)

func Start(t *testing.T) {
	t.Helper()
	logging.ConfigureTests()
	logs.Infof("test=%s", t.Name())
}
