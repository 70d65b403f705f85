// Package errors - telemetry integration (optional)
package errors

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/arach/transcribe-dispatch/internal/privacy"
)

// Initialize package state
func init() {
	// Initialize hasActiveReporting to false (no telemetry or hooks by default)
	hasActiveReporting.Store(false)
}

// TelemetryReporter is an interface for reporting errors to an external
// telemetry system. Implementations are supplied by the caller; this package
// has no opinion on where errors end up.
type TelemetryReporter interface {
	ReportError(err *EnhancedError)
	IsEnabled() bool
}

// ErrorHook is a function that gets called when an error is reported
type ErrorHook func(ee *EnhancedError)

// Global telemetry reporter (can be nil if telemetry is disabled)
var globalTelemetryReporter TelemetryReporter

// Global error hooks and mutex for thread safety
var (
	errorHooks         []ErrorHook
	errorHooksMutex    sync.RWMutex
	hasActiveReporting atomic.Bool // true if telemetry is enabled OR hooks exist
)

// SetTelemetryReporter sets the global telemetry reporter
func SetTelemetryReporter(reporter TelemetryReporter) {
	globalTelemetryReporter = reporter
	updateActiveReportingStatus()
}

// GetTelemetryReporter returns the current telemetry reporter
func GetTelemetryReporter() TelemetryReporter {
	return globalTelemetryReporter
}

// AddErrorHook adds a hook function that will be called when errors are reported
func AddErrorHook(hook ErrorHook) {
	errorHooksMutex.Lock()
	errorHooks = append(errorHooks, hook)
	hooksExist := len(errorHooks) > 0
	errorHooksMutex.Unlock()

	telemetryActive := globalTelemetryReporter != nil && globalTelemetryReporter.IsEnabled()
	hasActiveReporting.Store(hooksExist || telemetryActive)
}

// ClearErrorHooks removes all error hooks
func ClearErrorHooks() {
	errorHooksMutex.Lock()
	errorHooks = nil
	errorHooksMutex.Unlock()

	telemetryActive := globalTelemetryReporter != nil && globalTelemetryReporter.IsEnabled()
	hasActiveReporting.Store(telemetryActive)
}

// updateActiveReportingStatus updates the flag indicating if any reporting is active
// This must be called without holding errorHooksMutex to avoid deadlock
func updateActiveReportingStatus() {
	errorHooksMutex.RLock()
	hooksExist := len(errorHooks) > 0
	errorHooksMutex.RUnlock()

	telemetryActive := globalTelemetryReporter != nil && globalTelemetryReporter.IsEnabled()
	hasActiveReporting.Store(hooksExist || telemetryActive)
}

// reportToTelemetryLegacy reports an error to the configured telemetry system.
// It remains here for when the event bus is not initialized; reportToTelemetry
// in eventbus_integration.go prefers the async path when one is available.
func reportToTelemetryLegacy(ee *EnhancedError) {
	if !hasActiveReporting.Load() {
		return
	}

	if globalTelemetryReporter != nil && globalTelemetryReporter.IsEnabled() {
		globalTelemetryReporter.ReportError(ee)
	}

	errorHooksMutex.RLock()
	hooksExist := len(errorHooks) > 0
	if !hooksExist {
		errorHooksMutex.RUnlock()
		return
	}

	hooks := make([]ErrorHook, len(errorHooks))
	copy(hooks, errorHooks)
	errorHooksMutex.RUnlock()

	for _, hook := range hooks {
		if hook == nil {
			continue
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					// Can't use our own error system here to avoid recursion.
					fmt.Printf("error hook panicked: %v\n", r)
				}
			}()
			hook(ee)
		}()
	}
}

// PrivacyScrubber is a function type for privacy scrubbing
type PrivacyScrubber func(string) string

// Global privacy scrubber function, defaults to internal/privacy.Scrub but can
// be overridden (e.g. in tests).
var globalPrivacyScrubber atomic.Value

// SetPrivacyScrubber sets the global privacy scrubbing function
func SetPrivacyScrubber(scrubber PrivacyScrubber) {
	if scrubber != nil {
		globalPrivacyScrubber.Store(scrubber)
	}
}

// scrubMessageForPrivacy applies privacy protection to error messages
func scrubMessageForPrivacy(message string) string {
	if scrubber := globalPrivacyScrubber.Load(); scrubber != nil {
		if fn, ok := scrubber.(PrivacyScrubber); ok {
			return fn(message)
		}
	}
	return privacy.Scrub(message)
}
