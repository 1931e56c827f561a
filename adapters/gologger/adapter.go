package gologger

import (
	glog "github.com/goliatone/go-logger/glog"
)

// Resolve uses deterministic precedence provider > logger > nop.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	return glog.Resolve(name, provider, logger)
}

// Ensure returns the given logger or a nop fallback when nil.
func Ensure(logger glog.Logger) glog.Logger {
	return glog.Ensure(logger)
}

// ProviderFor wraps a single logger as a provider, falling back to a
// nop provider when the logger is nil.
func ProviderFor(logger glog.Logger) glog.LoggerProvider {
	if logger == nil {
		logger = glog.Nop()
	}
	return glog.ProviderFromLogger(logger)
}
