package api_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/asetapen/picinplace/internal/api"
	"github.com/asetapen/picinplace/internal/codec"
	"github.com/asetapen/picinplace/internal/config"
	"github.com/asetapen/picinplace/internal/display"
	"github.com/asetapen/picinplace/internal/events"
	"github.com/asetapen/picinplace/internal/frame"
	"github.com/asetapen/picinplace/internal/models"
	"github.com/asetapen/picinplace/internal/store"
)

type testServer struct {
	*httptest.Server
	mock  *display.Mock
	cfgSt *config.MemStore
}

// newTestServer wires the full stack behind the router: mock panel,
// in-memory config store, temp image directory.
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dir, err := os.MkdirTemp("", "picinplace-api-test-*")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	st, err := store.New(dir, codec.New(80, 48), models.DefaultConfig().MaxImages)
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	mock := display.NewMock()
	cfgSt := config.NewMemStore()
	bus := events.NewBus()

	ctrl, err := frame.New(st, mock, cfgSt, bus, "http://frame.local")
	if err != nil {
		t.Fatalf("frame.New: %v", err)
	}
	t.Cleanup(ctrl.Shutdown)
	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	srv := httptest.NewServer(api.NewRouter(ctrl, bus))
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, mock: mock, cfgSt: cfgSt}
}

func jpegBody(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 120, 72))
	for y := 0; y < 72; y++ {
		for x := 0; x < 120; x++ {
			img.Set(x, y, color.RGBA{40, 150, 90, 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("jpeg.Encode: %v", err)
	}
	return buf.Bytes()
}

// uploadMultipart posts body as the "file" field of a multipart form.
func uploadMultipart(t *testing.T, ts *testServer, filename string, body []byte) *http.Response {
	t.Helper()
	var form bytes.Buffer
	mw := multipart.NewWriter(&form)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := fw.Write(body); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	mw.Close()

	resp, err := http.Post(ts.URL+"/api/upload", mw.FormDataContentType(), &form)
	if err != nil {
		t.Fatalf("POST /api/upload: %v", err)
	}
	return resp
}

func get(t *testing.T, ts *testServer, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

func postJSON(t *testing.T, ts *testServer, path string, v interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	resp, err := http.Post(ts.URL+path, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func requireStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("status = %d, want %d; body: %s", resp.StatusCode, want, body)
	}
}

func TestUpload_Multipart(t *testing.T) {
	ts := newTestServer(t)
	before := ts.mock.RenderCount()

	resp := uploadMultipart(t, ts, "holiday.jpg", jpegBody(t))
	requireStatus(t, resp, http.StatusOK)

	var body struct {
		Message  string `json:"message"`
		Filename string `json:"filename"`
	}
	decodeJSON(t, resp, &body)
	if body.Message != "Image uploaded successfully" {
		t.Errorf("message = %q", body.Message)
	}
	if !strings.HasPrefix(body.Filename, "image_") || !strings.HasSuffix(body.Filename, ".jpg") {
		t.Errorf("filename = %q, want image_<timestamp>.jpg", body.Filename)
	}
	if ts.mock.RenderCount() != before+1 {
		t.Error("upload did not render immediately")
	}
}

func TestUpload_RawBody(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/upload?filename=pic.jpg", "image/jpeg", bytes.NewReader(jpegBody(t)))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	requireStatus(t, resp, http.StatusOK)
	resp.Body.Close()
}

func TestUpload_GarbageRejected(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/upload?filename=x.jpg", "application/octet-stream", strings.NewReader("not an image"))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	requireStatus(t, resp, http.StatusBadRequest)

	var appErr models.AppError
	decodeJSON(t, resp, &appErr)
	if appErr.Code != "DECODE_ERROR" {
		t.Errorf("code = %q, want DECODE_ERROR", appErr.Code)
	}
}

func TestUpload_EmptyBodyRejected(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/upload", "application/octet-stream", bytes.NewReader(nil))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	requireStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()
}

func TestUpload_RateLimited(t *testing.T) {
	ts := newTestServer(t)

	body := jpegBody(t)
	for i := 0; i < 3; i++ {
		resp := uploadMultipart(t, ts, "p.jpg", body)
		requireStatus(t, resp, http.StatusOK)
		resp.Body.Close()
	}
	resp := uploadMultipart(t, ts, "p.jpg", body)
	requireStatus(t, resp, http.StatusTooManyRequests)
	resp.Body.Close()
}

func TestGetImages(t *testing.T) {
	ts := newTestServer(t)

	resp := get(t, ts, "/api/images")
	requireStatus(t, resp, http.StatusOK)
	var state models.FrameState
	decodeJSON(t, resp, &state)
	if state.Total != 0 || len(state.Images) != 0 {
		t.Errorf("fresh state = %+v, want empty", state)
	}

	up := uploadMultipart(t, ts, "p.jpg", jpegBody(t))
	requireStatus(t, up, http.StatusOK)
	up.Body.Close()

	resp = get(t, ts, "/api/images")
	requireStatus(t, resp, http.StatusOK)
	decodeJSON(t, resp, &state)
	if state.Total != 1 || state.CurrentIndex != 0 || !state.Cycling {
		t.Errorf("state after upload = %+v", state)
	}
}

func TestGetConfig(t *testing.T) {
	ts := newTestServer(t)

	resp := get(t, ts, "/api/config")
	requireStatus(t, resp, http.StatusOK)

	var body struct {
		MaxImages     int     `json:"max_images"`
		CycleInterval int     `json:"cycle_interval"`
		Saturation    float64 `json:"saturation"`
		DisplayWidth  int     `json:"display_width"`
		DisplayHeight int     `json:"display_height"`
	}
	decodeJSON(t, resp, &body)
	def := models.DefaultConfig()
	if body.MaxImages != def.MaxImages || body.CycleInterval != def.CycleInterval || body.Saturation != def.Saturation {
		t.Errorf("config = %+v, want defaults %+v", body, def)
	}
	if body.DisplayWidth != models.DisplayWidth || body.DisplayHeight != models.DisplayHeight {
		t.Errorf("geometry = %dx%d, want %dx%d",
			body.DisplayWidth, body.DisplayHeight, models.DisplayWidth, models.DisplayHeight)
	}
}

func TestUpdateConfig(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts, "/api/config", map[string]interface{}{
		"max_images":     5,
		"cycle_interval": 300,
	})
	requireStatus(t, resp, http.StatusOK)
	var body struct {
		MaxImages     int     `json:"max_images"`
		CycleInterval int     `json:"cycle_interval"`
		Saturation    float64 `json:"saturation"`
	}
	decodeJSON(t, resp, &body)
	if body.MaxImages != 5 || body.CycleInterval != 300 {
		t.Errorf("updated config = %+v", body)
	}
	if body.Saturation != models.DefaultConfig().Saturation {
		t.Errorf("saturation = %v, want untouched default", body.Saturation)
	}
	if ts.cfgSt.SaveCount() != 1 {
		t.Errorf("saves = %d, want 1", ts.cfgSt.SaveCount())
	}
}

func TestUpdateConfig_ValidationError(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts, "/api/config", map[string]interface{}{"saturation": 1.5})
	requireStatus(t, resp, http.StatusBadRequest)
	var appErr models.AppError
	decodeJSON(t, resp, &appErr)
	if appErr.Code != "VALIDATION_ERROR" || appErr.Field != "saturation" {
		t.Errorf("error = %+v", appErr)
	}
	if ts.cfgSt.SaveCount() != 0 {
		t.Errorf("saves = %d, want 0", ts.cfgSt.SaveCount())
	}
}

func TestUpdateConfig_MalformedJSON(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/config", "application/json", strings.NewReader("{"))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	requireStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()
}

func TestCycle(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts, "/api/cycle/stop", nil)
	requireStatus(t, resp, http.StatusOK)
	var body struct {
		Message string `json:"message"`
	}
	decodeJSON(t, resp, &body)
	if body.Message != "Cycling stopped" {
		t.Errorf("message = %q", body.Message)
	}

	resp = postJSON(t, ts, "/api/cycle/start", nil)
	requireStatus(t, resp, http.StatusOK)
	decodeJSON(t, resp, &body)
	if body.Message != "Cycling started" {
		t.Errorf("message = %q", body.Message)
	}

	resp = postJSON(t, ts, "/api/cycle/sideways", nil)
	requireStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()
}

func TestDisplayImage(t *testing.T) {
	ts := newTestServer(t)
	for i := 0; i < 2; i++ {
		resp := uploadMultipart(t, ts, "p.jpg", jpegBody(t))
		requireStatus(t, resp, http.StatusOK)
		resp.Body.Close()
	}

	resp := get(t, ts, "/api/display/0")
	requireStatus(t, resp, http.StatusOK)
	var body struct {
		Message  string `json:"message"`
		Filename string `json:"filename"`
	}
	decodeJSON(t, resp, &body)
	if body.Message != "Image displayed" || body.Filename == "" {
		t.Errorf("body = %+v", body)
	}

	var state models.FrameState
	resp = get(t, ts, "/api/images")
	requireStatus(t, resp, http.StatusOK)
	decodeJSON(t, resp, &state)
	if state.CurrentIndex != 0 {
		t.Errorf("current index = %d, want 0", state.CurrentIndex)
	}
}

func TestDisplayImage_Errors(t *testing.T) {
	ts := newTestServer(t)

	resp := get(t, ts, "/api/display/7")
	requireStatus(t, resp, http.StatusBadRequest)
	var appErr models.AppError
	decodeJSON(t, resp, &appErr)
	if appErr.Code != "INDEX_ERROR" {
		t.Errorf("code = %q, want INDEX_ERROR", appErr.Code)
	}

	resp = get(t, ts, "/api/display/notanumber")
	requireStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()
}

func TestHEICSupport(t *testing.T) {
	ts := newTestServer(t)

	resp := get(t, ts, "/api/heic-support")
	requireStatus(t, resp, http.StatusOK)
	var body struct {
		Supported bool `json:"supported"`
	}
	decodeJSON(t, resp, &body)
	if body.Supported != codec.HEICSupported() {
		t.Errorf("supported = %v, want %v", body.Supported, codec.HEICSupported())
	}
}

func TestThumbnail(t *testing.T) {
	ts := newTestServer(t)

	up := uploadMultipart(t, ts, "p.jpg", jpegBody(t))
	requireStatus(t, up, http.StatusOK)
	var upBody struct {
		Filename string `json:"filename"`
	}
	decodeJSON(t, up, &upBody)

	resp := get(t, ts, "/api/thumbnail/"+upBody.Filename)
	requireStatus(t, resp, http.StatusOK)
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("Content-Type = %q, want image/jpeg", ct)
	}
	img, err := jpeg.Decode(resp.Body)
	if err != nil {
		t.Fatalf("decode thumbnail: %v", err)
	}
	if img.Bounds().Dx() > models.ThumbWidth || img.Bounds().Dy() > models.ThumbHeight {
		t.Errorf("thumbnail = %v, want within %dx%d", img.Bounds(), models.ThumbWidth, models.ThumbHeight)
	}
}

func TestThumbnail_NotFound(t *testing.T) {
	ts := newTestServer(t)

	resp := get(t, ts, "/api/thumbnail/image_19990101_000000.jpg")
	requireStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/images", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204", resp.StatusCode)
	}
	if origin := resp.Header.Get("Access-Control-Allow-Origin"); origin != "*" {
		t.Errorf("Allow-Origin = %q, want *", origin)
	}
}

func TestSubscribe_StreamsState(t *testing.T) {
	ts := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/subscribe", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /api/subscribe: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q, want text/event-stream", ct)
	}

	// The first frame carries the current state.
	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read first event: %v", err)
	}
	if !strings.HasPrefix(line, "data: ") {
		t.Fatalf("first line = %q, want data: prefix", line)
	}
	var state models.FrameState
	if err := json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(line), "data: ")), &state); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	if state.Total != 0 {
		t.Errorf("initial state total = %d, want 0", state.Total)
	}
}
