package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/uvcnode/internal/api/models"
	"github.com/smazurov/uvcnode/internal/camera"
	"github.com/smazurov/uvcnode/internal/cameras"
	"github.com/smazurov/uvcnode/internal/config"
	"github.com/smazurov/uvcnode/internal/driver"
	"github.com/smazurov/uvcnode/internal/metrics"
)

func (s *Server) registerCameraRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-cameras",
		Method:      http.MethodGet,
		Path:        "/api/cameras",
		Summary:     "List Cameras",
		Description: "Get every configured camera with its live state",
		Tags:        []string{"cameras"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(_ context.Context, _ *struct{}) (*models.CameraListResponse, error) {
		list := s.cameras.List()
		resp := &models.CameraListResponse{Body: models.CameraListData{Cameras: make([]models.CameraData, 0, len(list))}}
		for _, st := range list {
			resp.Body.Cameras = append(resp.Body.Cameras, toCameraData(st))
		}
		resp.Body.Count = len(resp.Body.Cameras)
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID:   "create-camera",
		Method:        http.MethodPost,
		Path:          "/api/cameras",
		Summary:       "Create Camera",
		Description:   "Configure a camera and open its device. The camera is persisted to the cameras file when one is configured.",
		Tags:          []string{"cameras"},
		DefaultStatus: http.StatusCreated,
		Errors:        []int{400, 401, 409, 422, 500},
		Security:      withAuth(),
	}, func(_ context.Context, input *models.CameraRequest) (*models.CameraResponse, error) {
		spec := specFromRequest(input.Body)
		spec.Normalize()
		if err := spec.Validate(); err != nil {
			return nil, huma.Error400BadRequest(err.Error())
		}
		if _, err := s.cameras.Get(spec.ID); err == nil {
			return nil, huma.Error409Conflict("camera already exists")
		}

		if s.store != nil {
			saved, err := s.store.Add(spec)
			if err != nil {
				return nil, s.mapCameraError(err)
			}
			spec = saved
		}

		st, err := s.cameras.Open(spec)
		if err != nil {
			s.rollback(spec.ID)
			return nil, s.mapCameraError(err)
		}
		return &models.CameraResponse{Body: toCameraData(st)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-camera",
		Method:      http.MethodGet,
		Path:        "/api/cameras/{camera_id}",
		Summary:     "Get Camera",
		Description: "Get one configured camera",
		Tags:        []string{"cameras"},
		Errors:      []int{401, 404},
		Security:    withAuth(),
	}, func(_ context.Context, input *models.CameraIDInput) (*models.CameraResponse, error) {
		st, err := s.cameras.Get(input.CameraID)
		if err != nil {
			return nil, s.mapCameraError(err)
		}
		return &models.CameraResponse{Body: toCameraData(st)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "update-camera",
		Method:      http.MethodPut,
		Path:        "/api/cameras/{camera_id}",
		Summary:     "Update Camera",
		Description: "Replace a camera's configuration. The device is reopened.",
		Tags:        []string{"cameras"},
		Errors:      []int{400, 401, 404, 422, 500},
		Security:    withAuth(),
	}, func(_ context.Context, input *struct {
		models.CameraIDInput
		Body models.CameraRequestData
	}) (*models.CameraResponse, error) {
		if _, err := s.cameras.Get(input.CameraID); err != nil {
			return nil, s.mapCameraError(err)
		}
		spec := specFromRequest(input.Body)
		spec.ID = input.CameraID
		spec.Normalize()
		if err := spec.Validate(); err != nil {
			return nil, huma.Error400BadRequest(err.Error())
		}

		if s.store != nil {
			saved, err := s.store.Update(spec)
			if err != nil {
				return nil, s.mapCameraError(err)
			}
			spec = saved
		}
		if err := s.cameras.Close(spec.ID); err != nil && !errors.Is(err, cameras.ErrCameraNotFound) {
			return nil, s.mapCameraError(err)
		}
		st, err := s.cameras.Open(spec)
		if err != nil {
			return nil, s.mapCameraError(err)
		}
		return &models.CameraResponse{Body: toCameraData(st)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID:   "delete-camera",
		Method:        http.MethodDelete,
		Path:          "/api/cameras/{camera_id}",
		Summary:       "Delete Camera",
		Description:   "Close a camera and remove it from the configuration",
		Tags:          []string{"cameras"},
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{401, 404, 500},
		Security:      withAuth(),
	}, func(_ context.Context, input *models.CameraIDInput) (*struct{}, error) {
		if err := s.cameras.Close(input.CameraID); err != nil {
			return nil, s.mapCameraError(err)
		}
		s.rollback(input.CameraID)
		return &struct{}{}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "start-camera",
		Method:      http.MethodPost,
		Path:        "/api/cameras/{camera_id}/start",
		Summary:     "Start Streaming",
		Description: "Start streaming with the configured parameters, optionally overridden by the body",
		Tags:        []string{"cameras"},
		Errors:      []int{400, 401, 404, 409, 422, 503},
		Security:    withAuth(),
	}, func(_ context.Context, input *models.StartRequest) (*models.MessageResponse, error) {
		var params cameras.StartParams
		if input.Body != nil {
			params = cameras.StartParams{
				Format: string(input.Body.Format),
				Width:  input.Body.Width,
				Height: input.Body.Height,
				FPS:    input.Body.FPS,
			}
		}
		if err := s.cameras.Start(input.CameraID, params); err != nil {
			return nil, s.mapCameraError(err)
		}
		return models.NewMessage("streaming started"), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "stop-camera",
		Method:      http.MethodPost,
		Path:        "/api/cameras/{camera_id}/stop",
		Summary:     "Stop Streaming",
		Description: "Stop streaming and keep the device open",
		Tags:        []string{"cameras"},
		Errors:      []int{401, 404},
		Security:    withAuth(),
	}, func(_ context.Context, input *models.CameraIDInput) (*models.MessageResponse, error) {
		if err := s.cameras.Stop(input.CameraID); err != nil {
			return nil, s.mapCameraError(err)
		}
		return models.NewMessage("streaming stopped"), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-camera-frame",
		Method:      http.MethodGet,
		Path:        "/api/cameras/{camera_id}/frame",
		Summary:     "Latest Frame",
		Description: "Get the raw bytes of the most recent frame. Responds 204 when no fresh frame is available; each frame is served at most twice.",
		Tags:        []string{"cameras"},
		Errors:      []int{401, 404},
		Security:    withAuth(),
	}, func(_ context.Context, input *models.CameraIDInput) (*models.FrameResponse, error) {
		f, err := s.cameras.Frame(input.CameraID)
		if err != nil {
			return nil, s.mapCameraError(err)
		}
		if f == nil {
			return &models.FrameResponse{Status: http.StatusNoContent}, nil
		}
		return &models.FrameResponse{
			Status:      http.StatusOK,
			ContentType: frameContentType(f.Format),
			Format:      f.Format.String(),
			Width:       strconv.Itoa(f.Width),
			Height:      strconv.Itoa(f.Height),
			Sequence:    strconv.FormatUint(uint64(f.Sequence), 10),
			Body:        f.Data,
		}, nil
	})
}

// rollback drops id from the store, if there is one.
func (s *Server) rollback(id string) {
	if s.store == nil {
		return
	}
	if err := s.store.Remove(id); err != nil && !errors.Is(err, config.ErrCameraNotFound) {
		s.logger.Warn("Failed to remove camera from config", "camera_id", id, "error", err)
	}
}

func frameContentType(f camera.Format) string {
	switch f {
	case camera.FormatMJPEG:
		return "image/jpeg"
	case camera.FormatH264:
		return "video/h264"
	default:
		return "application/octet-stream"
	}
}

func specFromRequest(body models.CameraRequestData) config.CameraSpec {
	return config.CameraSpec{
		ID:        body.ID,
		VendorID:  body.VendorID,
		ProductID: body.ProductID,
		Serial:    body.Serial,
		Format:    string(body.Format),
		Width:     body.Width,
		Height:    body.Height,
		FPS:       body.FPS,
		Autostart: body.Autostart,
	}
}

func toCameraData(st cameras.Status) models.CameraData {
	data := models.CameraData{
		ID:           st.ID,
		VendorID:     st.Spec.VendorID,
		ProductID:    st.Spec.ProductID,
		Serial:       st.Serial,
		Product:      st.Product,
		Manufacturer: st.Manufacturer,
		Format:       st.Spec.Format,
		Width:        st.Spec.Width,
		Height:       st.Spec.Height,
		FPS:          st.Spec.FPS,
		Autostart:    st.Spec.Autostart,
		State:        st.State,
		Available:    st.Available,
		Wanted:       st.Wanted,
		Error:        st.Error,
		LastActivity: st.LastActivity,
		Attempts:     st.Attempts,
	}
	if data.Serial == "" {
		data.Serial = st.Spec.Serial
	}
	if m := metrics.GetCameraMetrics(st.ID); m != nil {
		data.FramesReceived = m.FramesReceived
		data.FramesServed = m.FramesServed
		data.StaleReads = m.StaleReads
		data.Errors = m.Errors
	}
	return data
}

// mapCameraError translates service and driver errors to HTTP errors.
func (s *Server) mapCameraError(err error) error {
	var camErr *camera.Error
	switch {
	case errors.Is(err, cameras.ErrCameraNotFound):
		return huma.Error404NotFound("camera not found", err)
	case errors.Is(err, cameras.ErrCameraExists):
		return huma.Error409Conflict("camera already exists", err)
	case errors.Is(err, cameras.ErrInvalidSpec):
		return huma.Error400BadRequest(err.Error())
	case errors.Is(err, camera.ErrNotAvailable):
		return huma.Error503ServiceUnavailable("camera not available", err)
	case errors.As(err, &camErr):
		return mapDriverError(camErr)
	}
	s.logger.Error("Unexpected camera error", "error", err)
	return huma.Error500InternalServerError("internal server error", err)
}

func mapDriverError(err *camera.Error) error {
	switch err.Code {
	case driver.ErrInvalidParam, driver.ErrInvalidMode, driver.ErrNotSupported:
		return huma.Error422UnprocessableEntity(err.Message, err)
	case driver.ErrBusy:
		return huma.Error409Conflict(err.Message, err)
	case driver.ErrAccess:
		return huma.Error403Forbidden(err.Message, err)
	case driver.ErrNoDevice, driver.ErrNotFound:
		return huma.Error503ServiceUnavailable(err.Message, err)
	case driver.ErrTimeout:
		return huma.Error504GatewayTimeout(err.Message, err)
	}
	return huma.Error500InternalServerError(err.Message, err)
}
