// Package logger provides the process-wide structured logger.
package logger

import "github.com/Laisky/zap"

// Logger is the shared structured logger used throughout the gateway.
var Logger *zap.Logger

func init() {
	l, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	Logger = l
}
