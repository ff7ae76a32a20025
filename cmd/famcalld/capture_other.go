//go:build !linux

package main

import (
	"github.com/matheus3301/famcall/internal/media/rtc"
	"go.uber.org/zap"
)

// newCapturer is nil where no capture drivers exist; the daemon then only
// receives media.
var newCapturer func(*zap.Logger) (rtc.Capturer, error)
