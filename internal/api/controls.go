package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/camunit/internal/api/models"
	"github.com/smazurov/camunit/internal/capture"
	"github.com/smazurov/camunit/internal/scheduler"
)

// controlInfos converts a registry listing. DependsOn indexes into the
// same listing.
func controlInfos(list []capture.ControlDescriptor) []models.ControlInfo {
	out := make([]models.ControlInfo, 0, len(list))
	for _, d := range list {
		out = append(out, models.NewControlInfo(d, modeID(list, d)))
	}
	return out
}

func modeID(list []capture.ControlDescriptor, d capture.ControlDescriptor) string {
	if d.DependsOn < 0 || d.DependsOn >= len(list) {
		return ""
	}
	return list[d.DependsOn].ID
}

func (s *Server) registerControlRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-controls",
		Method:      http.MethodGet,
		Path:        "/api/units/{device_id}/controls",
		Summary:     "List Controls",
		Description: "List the unit's controls with their current values and ranges",
		Tags:        []string{"controls"},
		Security:    withAuth(),
		Errors:      []int{401, 404},
	}, func(ctx context.Context, input *DevicePathInput) (*models.ControlListResponse, error) {
		var data models.ControlListData
		err := s.units.Do(ctx, input.DeviceID, func(u *capture.Unit) error {
			data.Controls = controlInfos(u.Controls())
			return nil
		})
		if err != nil {
			return nil, unitError(err)
		}
		return &models.ControlListResponse{Body: data}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-control",
		Method:      http.MethodPut,
		Path:        "/api/units/{device_id}/controls/{control}",
		Summary:     "Set Control",
		Description: "Propose a control value. The response carries the value the device settled on.",
		Tags:        []string{"controls"},
		Security:    withAuth(),
		Errors:      []int{400, 401, 404, 422, 500},
	}, func(ctx context.Context, input *models.ControlSetRequest) (*models.ControlSetResponse, error) {
		var raw any
		switch {
		case input.Body.Option != "":
			raw = input.Body.Option
		case input.Body.Value != nil:
			raw = *input.Body.Value
		default:
			return nil, huma.Error400BadRequest("value or option is required")
		}
		res, err := s.units.SetControl(ctx, input.DeviceID, input.ControlID, raw, scheduler.SourceAPI)
		if err != nil {
			return nil, unitError(err)
		}
		var mode string
		_ = s.units.Do(ctx, input.DeviceID, func(u *capture.Unit) error {
			mode = modeID(u.Controls(), res.Control)
			return nil
		})
		return &models.ControlSetResponse{Body: models.ControlSetResult{
			Control: models.NewControlInfo(res.Control, mode),
			Actual:  res.Actual,
		}}, nil
	})
}
