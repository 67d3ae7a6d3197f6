package utils

import (
	stdlog "log"

	log "github.com/sirupsen/logrus"
)

// HTTPErrorLog routes net/http internal errors through logrus at error
// level.
func HTTPErrorLog() *stdlog.Logger {
	return stdlog.New(log.StandardLogger().WriterLevel(log.ErrorLevel), "http: ", 0)
}
