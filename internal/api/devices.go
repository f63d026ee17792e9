package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/audionode/internal/devices"
	"github.com/smazurov/audionode/internal/diagnose"
)

// DeviceListData is the device enumeration payload. When discovery
// fails or finds nothing, the list is empty and a diagnosis explains
// why; no synthetic placeholder devices are invented.
type DeviceListData struct {
	Devices   []devices.Device    `json:"devices" doc:"Discovered audio devices"`
	Count     int                 `json:"count" example:"1" doc:"Number of devices"`
	Diagnosis *diagnose.Diagnosis `json:"diagnosis,omitempty" doc:"Explanation when enumeration failed"`
}

func (s *Server) registerDeviceRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-devices",
		Method:      http.MethodGet,
		Path:        "/api/devices",
		Summary:     "List Audio Devices",
		Description: "Enumerate capture devices. Results are cached briefly; pass refresh=true to re-probe the OS.",
		Tags:        []string{"devices"},
		Errors:      []int{401, 500},
		Security:    withAuth(),
	}, func(ctx context.Context, input *struct {
		Refresh bool `query:"refresh" example:"false" doc:"Bypass the enumeration cache"`
	}) (*Response[DeviceListData], error) {
		list, err := s.options.Devices.Enumerate(ctx, input.Refresh)
		data := DeviceListData{Devices: list, Count: len(list)}
		if err != nil {
			var enumErr *devices.EnumerationError
			if errors.As(err, &enumErr) {
				data.Diagnosis = &enumErr.Diagnosis
			} else {
				return nil, newErrorEnvelope(http.StatusInternalServerError,
					"backend-enumeration", "Device enumeration failed", err.Error())
			}
		}
		return respond(data), nil
	})
}
