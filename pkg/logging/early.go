package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EarlyLog is the console logger used before the configuration, and with it
// the real logger, has been loaded.
type EarlyLog struct {
	*zap.SugaredLogger
}

func NewEarlyLog() *EarlyLog {
	enc := zap.NewDevelopmentEncoderConfig()
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.Lock(os.Stderr), zapcore.InfoLevel)
	return &EarlyLog{SugaredLogger: zap.New(core).Sugar()}
}
