package exporters

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/smazurov/uvcnode/internal/metrics"
)

func TestHTTPHandler(t *testing.T) {
	metrics.RecordFrameReceived("http-test-camera", 1024)
	defer metrics.DeleteCameraMetrics("http-test-camera")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	HTTPHandler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body := w.Body.String()
	if !strings.Contains(body, `uvcnode_camera_frames_received_total{camera_id="http-test-camera"} 1`) {
		t.Errorf("expected camera counter in response:\n%s", body)
	}
}
