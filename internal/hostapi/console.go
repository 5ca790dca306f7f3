package hostapi

import (
	"github.com/cryguy/adhesive/internal/core"
	"github.com/cryguy/adhesive/internal/logger"
	"go.uber.org/zap"
)

// MaxLogMessageSize caps one console message.
const MaxLogMessageSize = 4096

// SetupConsole replaces globalThis.console with a Go-backed version that
// writes managed output to the process logger, tagged with the thread that
// was running when it was produced.
func SetupConsole(rt core.Runtime) error {
	log := logger.Named("managed")

	if err := rt.RegisterFunc("__console", func(thread, level, message string) {
		if len(message) > MaxLogMessageSize {
			message = message[:MaxLogMessageSize] + "...(truncated)"
		}
		fields := []zap.Field{zap.String("thread", thread)}
		switch level {
		case "error":
			log.Error(message, fields...)
		case "warn":
			log.Warn(message, fields...)
		case "debug", "trace":
			log.Debug(message, fields...)
		default:
			log.Info(message, fields...)
		}
	}); err != nil {
		return err
	}

	consoleJS := `
(function() {
	var levels = ['log', 'info', 'warn', 'error', 'debug', 'trace'];
	var con = {};
	for (var i = 0; i < levels.length; i++) {
		(function(lvl) {
			con[lvl] = function() {
				var parts = [];
				for (var j = 0; j < arguments.length; j++) {
					var arg = arguments[j];
					if (typeof arg === 'object' && arg !== null) {
						try { parts.push(JSON.stringify(arg)); } catch (e) { parts.push('[object Object]'); }
					} else {
						parts.push(String(arg));
					}
				}
				var thread = globalThis.__adhesive ? globalThis.__adhesive.currentThread() : '';
				__console(thread, lvl, parts.join(' '));
			};
		})(levels[i]);
	}
	globalThis.console = con;
})();
`
	return rt.Eval(consoleJS)
}
