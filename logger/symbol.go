package logger

import "go.uber.org/zap"

// Symbol-aware logging helpers.
// These functions log with the symbol as a structured field, not in the message.
//
// Usage:
//
//	// Instead of:
//	logger.Infow(SymbolDispatch + " event dispatched", "event_id", id)
//
//	// Use:
//	logger.DispatchInfow("event dispatched", "event_id", id)
//
// This makes logs queryable by symbol and keeps messages clean.

// Symbol glyphs tagging the bot's major subsystems.
const (
	SymbolDispatch = "⚡" // event bus dispatch
	SymbolGateway  = "☁" // websocket gateway traffic
	SymbolPlugin   = "⟁" // plugin load/unload/reload
	SymbolRBAC     = "⛊" // permission checks
)

// DispatchInfow logs an info message with the dispatch symbol (⚡)
func DispatchInfow(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		fields := append([]interface{}{FieldSymbol, SymbolDispatch}, keysAndValues...)
		Logger.Infow(msg, fields...)
	}
}

// DispatchDebugw logs a debug message with the dispatch symbol (⚡)
func DispatchDebugw(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		fields := append([]interface{}{FieldSymbol, SymbolDispatch}, keysAndValues...)
		Logger.Debugw(msg, fields...)
	}
}

// DispatchErrorw logs an error message with the dispatch symbol (⚡)
func DispatchErrorw(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		fields := append([]interface{}{FieldSymbol, SymbolDispatch}, keysAndValues...)
		Logger.Errorw(msg, fields...)
	}
}

// GatewayInfow logs an info message with the gateway symbol (☁)
func GatewayInfow(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		fields := append([]interface{}{FieldSymbol, SymbolGateway}, keysAndValues...)
		Logger.Infow(msg, fields...)
	}
}

// GatewayWarnw logs a warning message with the gateway symbol (☁)
func GatewayWarnw(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		fields := append([]interface{}{FieldSymbol, SymbolGateway}, keysAndValues...)
		Logger.Warnw(msg, fields...)
	}
}

// PluginInfow logs an info message with the plugin symbol (⟁)
func PluginInfow(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		fields := append([]interface{}{FieldSymbol, SymbolPlugin}, keysAndValues...)
		Logger.Infow(msg, fields...)
	}
}

// PluginErrorw logs an error message with the plugin symbol (⟁)
func PluginErrorw(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		fields := append([]interface{}{FieldSymbol, SymbolPlugin}, keysAndValues...)
		Logger.Errorw(msg, fields...)
	}
}

// RBACDebugw logs a debug message with the RBAC symbol (⛊)
func RBACDebugw(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		fields := append([]interface{}{FieldSymbol, SymbolRBAC}, keysAndValues...)
		Logger.Debugw(msg, fields...)
	}
}

// WithSymbol returns a logger with the given symbol as a field.
// For ad-hoc symbol usage not covered by the helpers above.
func WithSymbol(symbol string) *zap.SugaredLogger {
	return Logger.With(FieldSymbol, symbol)
}

// SymbolInfow logs with any symbol - for dynamic symbol usage
func SymbolInfow(symbol, msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		fields := append([]interface{}{FieldSymbol, symbol}, keysAndValues...)
		Logger.Infow(msg, fields...)
	}
}
