package logger

// Output controls what categories of information are shown at each verbosity level.
//
// Unlike log levels (which filter by severity), output categories control
// WHAT types of information are displayed regardless of severity.
//
// Verbosity Levels:
//
//	0 (default) - User-facing output only: results, errors with hints
//	1 (-v)      - + Progress, startup info, plugin status, event dispatch summaries
//	2 (-vv)     - + Event matches, timing, config loaded, gateway frames
//	3 (-vvv)    - + RBAC checks, file-watcher scans, internal flow
//	4 (-vvvv)   - + Raw gateway payloads, full data dumps

// OutputCategory defines a category of output that can be enabled/disabled
type OutputCategory int

const (
	// Level 0 (default) - Always shown
	OutputResults    OutputCategory = iota // Command results
	OutputErrors                           // Errors with hints and resolution steps
	OutputUserStatus                       // Final success/failure status

	// Level 1 (-v) - Informational
	OutputProgress      // Progress indicators (e.g. "loaded 4/9 plugins")
	OutputStartup       // Startup banners, config summary
	OutputPluginStatus  // Plugin loaded/unloaded/reloaded status
	OutputOperationInfo // High-level operation summaries
	OutputDispatchSummary

	// Level 2 (-vv) - Detailed
	OutputDispatchMatches // Which subscriptions matched an event
	OutputTiming          // Handler/operation timing
	OutputConfig          // Config values loaded/applied
	OutputGatewayFrames   // Gateway action/response frame summaries
	OutputGatewayStatus   // Gateway connect/reconnect status
	OutputPluginConfig    // Plugin configuration being applied

	// Level 3 (-vvv) - Debug
	OutputRBACChecks     // Permission trie lookups
	OutputWatcherScans   // File-watcher poll cycles
	OutputInternalFlow   // Internal operation flow (function entry/exit)
	OutputDispatchOrder  // Handler ordering decisions

	// Level 4 (-vvvv) - Full dump
	OutputGatewayPayloads // Full outbound/inbound JSON payloads
	OutputDataDump        // Full data structure contents
)

// categoryLevels maps each output category to its minimum verbosity level
var categoryLevels = map[OutputCategory]int{
	// Level 0 - Always shown
	OutputResults:    VerbosityUser,
	OutputErrors:     VerbosityUser,
	OutputUserStatus: VerbosityUser,

	// Level 1 - Informational
	OutputProgress:        VerbosityInfo,
	OutputStartup:         VerbosityInfo,
	OutputPluginStatus:    VerbosityInfo,
	OutputOperationInfo:   VerbosityInfo,
	OutputDispatchSummary: VerbosityInfo,

	// Level 2 - Detailed
	OutputDispatchMatches: VerbosityDebug,
	OutputTiming:          VerbosityDebug,
	OutputConfig:          VerbosityDebug,
	OutputGatewayFrames:   VerbosityDebug,
	OutputGatewayStatus:   VerbosityDebug,
	OutputPluginConfig:    VerbosityDebug,

	// Level 3 - Debug
	OutputRBACChecks:    VerbosityTrace,
	OutputWatcherScans:  VerbosityTrace,
	OutputInternalFlow:  VerbosityTrace,
	OutputDispatchOrder: VerbosityTrace,

	// Level 4 - Full dump
	OutputGatewayPayloads: VerbosityAll,
	OutputDataDump:        VerbosityAll,
}

// ShouldOutput returns true if the given category should be shown at the given verbosity
func ShouldOutput(verbosity int, category OutputCategory) bool {
	minLevel, ok := categoryLevels[category]
	if !ok {
		// Unknown category, default to highest verbosity required
		return verbosity >= VerbosityAll
	}
	return verbosity >= minLevel
}

// categoryNames provides human-readable names for output categories
var categoryNames = map[OutputCategory]string{
	OutputResults:         "results",
	OutputErrors:          "errors",
	OutputUserStatus:      "status",
	OutputProgress:        "progress",
	OutputStartup:         "startup",
	OutputPluginStatus:    "plugin-status",
	OutputOperationInfo:   "operation-info",
	OutputDispatchSummary: "dispatch-summary",
	OutputDispatchMatches: "dispatch-matches",
	OutputTiming:          "timing",
	OutputConfig:          "config",
	OutputGatewayFrames:   "gateway-frames",
	OutputGatewayStatus:   "gateway-status",
	OutputPluginConfig:    "plugin-config",
	OutputRBACChecks:      "rbac-checks",
	OutputWatcherScans:    "watcher-scans",
	OutputInternalFlow:    "internal-flow",
	OutputDispatchOrder:   "dispatch-order",
	OutputGatewayPayloads: "gateway-payloads",
	OutputDataDump:        "data-dump",
}

// CategoryName returns the human-readable name for an output category
func CategoryName(category OutputCategory) string {
	if name, ok := categoryNames[category]; ok {
		return name
	}
	return "unknown"
}

// EnabledCategories returns all output categories enabled at the given verbosity
func EnabledCategories(verbosity int) []OutputCategory {
	var enabled []OutputCategory
	for cat, minLevel := range categoryLevels {
		if verbosity >= minLevel {
			enabled = append(enabled, cat)
		}
	}
	return enabled
}

// VerbosityDescription returns a description of what's shown at each level
func VerbosityDescription(verbosity int) string {
	switch verbosity {
	case VerbosityUser:
		return "results and errors only"
	case VerbosityInfo:
		return "results, errors, progress, plugin status"
	case VerbosityDebug:
		return "above + dispatch matches, timing, config, gateway frames"
	case VerbosityTrace:
		return "above + RBAC checks, watcher scans, internal flow"
	case VerbosityAll:
		return "above + raw gateway payloads, full data dumps"
	default:
		if verbosity > VerbosityAll {
			return "maximum verbosity"
		}
		return "unknown verbosity level"
	}
}

// Dispatch output helpers

// ShouldShowDispatchSummary returns true if per-event dispatch summaries should be shown
func ShouldShowDispatchSummary(verbosity int) bool {
	return ShouldOutput(verbosity, OutputDispatchSummary)
}

// ShouldShowDispatchMatches returns true if per-subscription match details should be shown
func ShouldShowDispatchMatches(verbosity int) bool {
	return ShouldOutput(verbosity, OutputDispatchMatches)
}

// ShouldShowGatewayPayloads returns true if raw gateway JSON should be logged
func ShouldShowGatewayPayloads(verbosity int) bool {
	return ShouldOutput(verbosity, OutputGatewayPayloads)
}

// Plugin output helpers

// ShouldShowPluginStatus returns true if plugin load/unload status should be shown
func ShouldShowPluginStatus(verbosity int) bool {
	return ShouldOutput(verbosity, OutputPluginStatus)
}

// ShouldShowRBACChecks returns true if individual permission lookups should be logged
func ShouldShowRBACChecks(verbosity int) bool {
	return ShouldOutput(verbosity, OutputRBACChecks)
}

// Timing helpers

// SlowThresholdMS is the threshold in milliseconds above which timing is always shown
const SlowThresholdMS = 100

// ShouldShowTiming returns true if timing info should be displayed.
// Shows if: verbosity >= 2 (-vv) OR operation exceeded slow threshold.
func ShouldShowTiming(verbosity int, durationMS int64) bool {
	if durationMS >= SlowThresholdMS {
		return true // Always show slow operations
	}
	return ShouldOutput(verbosity, OutputTiming)
}

// ShouldShowTimingAlways returns true if timing should always be shown (slow operation)
func ShouldShowTimingAlways(durationMS int64) bool {
	return durationMS >= SlowThresholdMS
}
