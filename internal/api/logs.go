package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/camunit/internal/events"
	"github.com/smazurov/camunit/internal/logging"
)

// LogHistoryInput filters buffered log entries.
type LogHistoryInput struct {
	Module string `query:"module" example:"capture" doc:"Only entries from this module"`
	Limit  int    `query:"limit" minimum:"0" maximum:"1000" example:"100" doc:"Newest entries to return, 0 for all"`
}

// LogHistoryResponse holds buffered log entries, oldest first.
type LogHistoryResponse struct {
	Body struct {
		Entries []events.LogEntryEvent `json:"entries" doc:"Log entries"`
	}
}

// LogLevelsResponse lists module log levels.
type LogLevelsResponse struct {
	Body struct {
		Levels map[string]string `json:"levels" doc:"Level per module"`
	}
}

// LogLevelRequest changes one module's level.
type LogLevelRequest struct {
	Module string `path:"module" example:"v4l2" doc:"Logger module"`
	Body   struct {
		Level string `json:"level" enum:"debug,info,warn,error" doc:"New level"`
	}
}

func logEvent(entry logging.LogEntry) events.LogEntryEvent {
	return events.LogEntryEvent{
		Timestamp:  entry.Timestamp.Format(time.RFC3339Nano),
		Level:      entry.Level,
		Module:     entry.Module,
		Message:    entry.Message,
		Attributes: entry.Attributes,
	}
}

func bufferedLogs(module string, limit int) []events.LogEntryEvent {
	out := []events.LogEntryEvent{}
	buffer := logging.GetBuffer()
	if buffer == nil {
		return out
	}
	for _, entry := range buffer.Tail(limit, module) {
		out = append(out, logEvent(entry))
	}
	return out
}

// registerLogRoutes registers log history, level control and streaming.
func (s *Server) registerLogRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-logs",
		Method:      http.MethodGet,
		Path:        "/api/logs",
		Summary:     "Log History",
		Description: "Buffered log entries, oldest first",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, input *LogHistoryInput) (*LogHistoryResponse, error) {
		resp := &LogHistoryResponse{}
		resp.Body.Entries = bufferedLogs(input.Module, input.Limit)
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "list-log-levels",
		Method:      http.MethodGet,
		Path:        "/api/logs/levels",
		Summary:     "Log Levels",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*LogLevelsResponse, error) {
		resp := &LogLevelsResponse{}
		resp.Body.Levels = logging.ModuleLevels()
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-log-level",
		Method:      http.MethodPut,
		Path:        "/api/logs/levels/{module}",
		Summary:     "Set Log Level",
		Description: "Change one module's log level until restart",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401, 422},
	}, func(_ context.Context, input *LogLevelRequest) (*LogLevelsResponse, error) {
		if err := logging.SetModuleLevel(input.Module, input.Body.Level); err != nil {
			return nil, huma.Error422UnprocessableEntity(err.Error())
		}
		resp := &LogLevelsResponse{}
		resp.Body.Levels = logging.ModuleLevels()
		return resp, nil
	})

	sse.Register(s.api, huma.Operation{
		OperationID: "logs-stream",
		Method:      http.MethodGet,
		Path:        "/api/logs/stream",
		Summary:     "Log Stream",
		Description: "Real-time log streaming via Server-Sent Events. Sends historical logs first, then streams new logs.",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"message": events.LogEntryEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		// Subscribe first so nothing logged while replaying is lost.
		eventCh := make(chan any, 100)
		unsubscribe := events.SubscribeToChannel[events.LogEntryEvent](s.eventBus, eventCh)
		defer unsubscribe()

		for _, event := range bufferedLogs("", 0) {
			if err := send.Data(event); err != nil {
				return
			}
		}

		streamEvents(ctx, send, eventCh)
	})
}
