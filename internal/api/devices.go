package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/camunit/internal/api/models"
)

// DevicePathInput selects a device or unit by its stable id.
type DevicePathInput struct {
	DeviceID string `path:"device_id" example:"usb-046d_HD_Pro_Webcam_C920-video-index0" doc:"Stable device identifier"`
}

// DeviceListInput controls discovery.
type DeviceListInput struct {
	Refresh bool `query:"refresh" doc:"Rescan all drivers before answering"`
}

// DeviceItemResponse wraps a single device.
type DeviceItemResponse struct {
	Body models.DeviceInfo
}

func (s *Server) deviceData(ctx context.Context, refresh bool) (models.DeviceData, error) {
	list := s.devices.Devices()
	if refresh || len(list) == 0 {
		var err error
		list, err = s.devices.Refresh(ctx)
		if err != nil && len(list) == 0 {
			return models.DeviceData{}, err
		}
		if err != nil {
			s.logger.Warn("Device discovery incomplete", "error", err)
		}
	}
	data := models.DeviceData{Devices: make([]models.DeviceInfo, 0, len(list))}
	for _, d := range list {
		data.Devices = append(data.Devices, models.NewDeviceInfo(d))
	}
	data.Count = len(data.Devices)
	return data, nil
}

func (s *Server) registerDeviceRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-devices",
		Method:      http.MethodGet,
		Path:        "/api/devices",
		Summary:     "List Devices",
		Description: "List V4L2 and IIDC capture devices",
		Tags:        []string{"devices"},
		Security:    withAuth(),
		Errors:      []int{401, 500},
	}, func(ctx context.Context, input *DeviceListInput) (*models.DeviceResponse, error) {
		data, err := s.deviceData(ctx, input.Refresh)
		if err != nil {
			return nil, huma.Error500InternalServerError("Failed to get devices", err)
		}
		return &models.DeviceResponse{Body: data}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-device",
		Method:      http.MethodGet,
		Path:        "/api/devices/{device_id}",
		Summary:     "Get Device",
		Description: "Get one capture device",
		Tags:        []string{"devices"},
		Security:    withAuth(),
		Errors:      []int{401, 404},
	}, func(ctx context.Context, input *DevicePathInput) (*DeviceItemResponse, error) {
		data, err := s.deviceData(ctx, false)
		if err != nil {
			return nil, huma.Error500InternalServerError("Failed to get devices", err)
		}
		for _, d := range data.Devices {
			if d.DeviceID == input.DeviceID {
				return &DeviceItemResponse{Body: d}, nil
			}
		}
		return nil, huma.Error404NotFound(fmt.Sprintf("device %s not found", input.DeviceID))
	})
}
