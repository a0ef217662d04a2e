package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/camunit/internal/api/models"
	"github.com/smazurov/camunit/internal/capture"
	"github.com/smazurov/camunit/internal/scheduler"
)

// FormatSelectRequest commits a catalog entry.
type FormatSelectRequest struct {
	DeviceID string `path:"device_id" doc:"Device identifier"`
	Body     struct {
		Index int `json:"index" minimum:"0" example:"0" doc:"Catalog index"`
	}
}

// SnapshotResponse is the latest frame as raw bytes.
type SnapshotResponse struct {
	ContentType string `header:"Content-Type"`
	Pixel       string `header:"X-Frame-Pixel"`
	Width       int    `header:"X-Frame-Width"`
	Height      int    `header:"X-Frame-Height"`
	Stride      int    `header:"X-Frame-Stride"`
	Sequence    string `header:"X-Frame-Sequence"`
	Timestamp   string `header:"X-Frame-Timestamp"`
	Body        []byte
}

func unitData(u scheduler.UnitInfo) models.UnitData {
	data := models.UnitData{
		DeviceID:   u.Device.ID,
		SessionID:  u.SessionID,
		DeviceName: u.Device.Name,
		Driver:     u.Device.Driver,
		State:      string(u.State),
		OpenedAt:   u.OpenedAt,
		Stats: models.StatsData{
			Frames:        u.Stats.Frames,
			Bytes:         u.Bytes,
			FPS:           u.FPS,
			Dropped:       u.Stats.Dropped,
			Restarts:      u.Stats.Restarts,
			HandlerErrors: u.Stats.HandlerErrors,
			WouldBlock:    u.Stats.WouldBlock,
		},
	}
	if u.Format != nil {
		f := models.NewFormatInfo(u.FormatIndex, *u.Format)
		data.Format = &f
	}
	return data
}

func (s *Server) unitResponse(id string) (*models.UnitResponse, error) {
	info, err := s.units.Unit(id)
	if err != nil {
		return nil, unitError(err)
	}
	return &models.UnitResponse{Body: unitData(info)}, nil
}

func (s *Server) registerUnitRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-units",
		Method:      http.MethodGet,
		Path:        "/api/units",
		Summary:     "List Units",
		Description: "List opened capture units with their state and counters",
		Tags:        []string{"units"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.UnitListResponse, error) {
		units := s.units.Units()
		data := models.UnitListData{Units: make([]models.UnitData, 0, len(units))}
		for _, u := range units {
			data.Units = append(data.Units, unitData(u))
		}
		data.Count = len(data.Units)
		return &models.UnitListResponse{Body: data}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID:   "open-unit",
		Method:        http.MethodPost,
		Path:          "/api/units",
		Summary:       "Open Unit",
		Description:   "Open a device as a capture unit, optionally configuring and starting it",
		Tags:          []string{"units"},
		Security:      withAuth(),
		DefaultStatus: http.StatusCreated,
		Errors:        []int{400, 401, 404, 409, 422, 500},
	}, func(ctx context.Context, input *models.UnitOpenRequest) (*models.UnitResponse, error) {
		choice := scheduler.Idle
		if input.Body.Format != nil {
			choice = scheduler.FormatChoice{
				Index:   *input.Body.Format,
				Start:   input.Body.Start,
				Buffers: input.Body.Buffers,
			}
		}
		info, err := s.units.Open(ctx, input.Body.DeviceID, choice)
		if err != nil {
			return nil, unitError(err)
		}
		return &models.UnitResponse{Body: unitData(info)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-unit",
		Method:      http.MethodGet,
		Path:        "/api/units/{device_id}",
		Summary:     "Get Unit",
		Tags:        []string{"units"},
		Security:    withAuth(),
		Errors:      []int{401, 404},
	}, func(_ context.Context, input *DevicePathInput) (*models.UnitResponse, error) {
		return s.unitResponse(input.DeviceID)
	})

	huma.Register(s.api, huma.Operation{
		OperationID:   "close-unit",
		Method:        http.MethodDelete,
		Path:          "/api/units/{device_id}",
		Summary:       "Close Unit",
		Description:   "Stop, tear down and release a capture unit",
		Tags:          []string{"units"},
		Security:      withAuth(),
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{401, 404},
	}, func(_ context.Context, input *DevicePathInput) (*struct{}, error) {
		if err := s.units.Close(input.DeviceID); err != nil {
			return nil, unitError(err)
		}
		return nil, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "list-formats",
		Method:      http.MethodGet,
		Path:        "/api/units/{device_id}/formats",
		Summary:     "List Formats",
		Description: "List the unit's format catalog and the committed entry",
		Tags:        []string{"units"},
		Security:    withAuth(),
		Errors:      []int{401, 404},
	}, func(ctx context.Context, input *DevicePathInput) (*models.FormatListResponse, error) {
		var data models.FormatListData
		err := s.units.Do(ctx, input.DeviceID, func(u *capture.Unit) error {
			formats := u.Formats()
			data.Formats = make([]models.FormatInfo, 0, len(formats))
			for i, f := range formats {
				data.Formats = append(data.Formats, models.NewFormatInfo(i, f))
			}
			return nil
		})
		if err != nil {
			return nil, unitError(err)
		}
		if info, err := s.units.Unit(input.DeviceID); err == nil && info.Format != nil && info.FormatIndex >= 0 {
			index := info.FormatIndex
			data.Current = &index
		}
		return &models.FormatListResponse{Body: data}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-format",
		Method:      http.MethodPost,
		Path:        "/api/units/{device_id}/format",
		Summary:     "Set Format",
		Description: "Commit a catalog entry. A streaming unit is stopped and restarted around the change.",
		Tags:        []string{"units"},
		Security:    withAuth(),
		Errors:      []int{401, 404, 422, 500},
	}, func(ctx context.Context, input *FormatSelectRequest) (*models.UnitResponse, error) {
		if err := s.units.SetFormat(ctx, input.DeviceID, input.Body.Index); err != nil {
			return nil, unitError(err)
		}
		return s.unitResponse(input.DeviceID)
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "start-unit",
		Method:      http.MethodPost,
		Path:        "/api/units/{device_id}/start",
		Summary:     "Start Streaming",
		Tags:        []string{"units"},
		Security:    withAuth(),
		Errors:      []int{401, 404, 409, 500},
	}, func(ctx context.Context, input *DevicePathInput) (*models.UnitResponse, error) {
		if err := s.units.Start(ctx, input.DeviceID); err != nil {
			return nil, unitError(err)
		}
		return s.unitResponse(input.DeviceID)
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "stop-unit",
		Method:      http.MethodPost,
		Path:        "/api/units/{device_id}/stop",
		Summary:     "Stop Streaming",
		Tags:        []string{"units"},
		Security:    withAuth(),
		Errors:      []int{401, 404, 409, 500},
	}, func(ctx context.Context, input *DevicePathInput) (*models.UnitResponse, error) {
		if err := s.units.Stop(ctx, input.DeviceID); err != nil {
			return nil, unitError(err)
		}
		return s.unitResponse(input.DeviceID)
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "unit-snapshot",
		Method:      http.MethodGet,
		Path:        "/api/units/{device_id}/snapshot",
		Summary:     "Latest Frame",
		Description: "Return the most recent frame payload with its format in X-Frame headers",
		Tags:        []string{"units"},
		Security:    withAuth(),
		Errors:      []int{401, 404},
	}, func(ctx context.Context, input *DevicePathInput) (*SnapshotResponse, error) {
		frame, err := s.units.Snapshot(ctx, input.DeviceID)
		if err != nil {
			return nil, unitError(err)
		}
		return &SnapshotResponse{
			ContentType: "application/octet-stream",
			Pixel:       frame.Format.Pixel.String(),
			Width:       frame.Format.Width,
			Height:      frame.Format.Height,
			Stride:      frame.Format.Stride,
			Sequence:    strconv.FormatUint(frame.Sequence, 10),
			Timestamp:   strconv.FormatInt(frame.Timestamp, 10),
			Body:        frame.Data,
		}, nil
	})
}
