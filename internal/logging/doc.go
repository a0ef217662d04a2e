// Package logging provides slog loggers with per-module levels.
//
// Every package asks for its logger by module name:
//
//	logger := logging.GetLogger("scheduler")
//	logger.Info("Unit opened", "device", id, "session", session)
//
// Module levels come from configuration and can be changed while the
// service runs (PUT /api/logs/levels/{module}):
//
//	[logging]
//	level = "info"
//	format = "json"
//
//	[logging.modules]
//	v4l2 = "debug"
//	iidc = "debug"
//
// Records fan out to stdout (text or JSON), to the systemd journal when
// its socket is reachable, and to an in-memory ring buffer that backs
// GET /api/logs. Journal fields carry the upper-cased attribute keys, so
// a camera's traffic can be filtered with:
//
//	journalctl -t camunit MODULE=v4l2 DEVICE=usb-046d_C920-video-index0
//
// Loggers obtained before Initialize write text at info level and pick up
// the configured format and levels once Initialize runs.
package logging
