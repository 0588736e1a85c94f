package logger

import (
	glog "github.com/Laisky/go-utils/v6/log"
)

// Logger is the process-wide logger. Request-scoped loggers are derived from
// it by the gin logger middleware and fetched via gmw.GetLogger.
var Logger glog.Logger

func init() {
	var err error
	Logger, err = glog.NewConsoleWithName("agrelay", glog.LevelInfo)
	if err != nil {
		panic(err)
	}
}

// SetLevel adjusts the process logger level at startup.
func SetLevel(level string) error {
	return Logger.ChangeLevel(glog.Level(level))
}
