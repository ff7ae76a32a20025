//go:build linux

package main

import (
	"github.com/matheus3301/famcall/internal/media/rtc"
	"github.com/matheus3301/famcall/internal/media/rtc/mediadev"
	"go.uber.org/zap"
)

func newCapturer(logger *zap.Logger) (rtc.Capturer, error) {
	c, err := mediadev.New(logger)
	if err != nil {
		return nil, err
	}
	return c, nil
}
