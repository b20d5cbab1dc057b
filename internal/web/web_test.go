package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"wristdisp/internal/config"
	"wristdisp/internal/display"
	"wristdisp/internal/model"
	"wristdisp/internal/schedule"
)

type fakeDisplay struct {
	busy     bool
	requests []model.Direction
	touches  []model.TouchSample
	asleep   bool
	powerErr error
}

func (f *fakeDisplay) State() display.State {
	return display.State{Width: 240, Height: 240, TotalLines: 320, Asleep: f.asleep}
}

func (f *fakeDisplay) SetPower(on bool) error {
	if f.powerErr != nil {
		return f.powerErr
	}
	f.asleep = !on
	return nil
}

func (f *fakeDisplay) SetFullRefresh(d model.Direction) bool {
	f.requests = append(f.requests, d)
	return !f.busy
}

func (f *fakeDisplay) SetNewTouchPoint(x, y uint16, contact bool) {
	f.touches = append(f.touches, model.TouchSample{X: x, Y: y, Contact: contact})
}

type fakePreview struct{}

func (fakePreview) Snapshot() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 0xFF, A: 0xFF})
	return img
}

func newTestServer(cfg *config.Config, d *fakeDisplay) http.Handler {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return NewServer(cfg, d, fakePreview{}).Handler()
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndState(t *testing.T) {
	h := newTestServer(nil, &fakeDisplay{})

	if rec := do(h, http.MethodGet, "/health", ""); rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Errorf("/health = %d %q", rec.Code, rec.Body.String())
	}

	rec := do(h, http.MethodGet, "/api/state", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("/api/state = %d", rec.Code)
	}
	var st display.State
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatal(err)
	}
	if st.Width != 240 || st.TotalLines != 320 {
		t.Errorf("state = %+v", st)
	}
}

type fakeSchedule schedule.State

func (f fakeSchedule) State() schedule.State { return schedule.State(f) }

func TestStateIncludesSchedule(t *testing.T) {
	next := time.Date(2026, 3, 14, 15, 10, 0, 0, time.UTC)
	srv := NewServer(config.DefaultConfig(), &fakeDisplay{}, nil)
	srv.SetSchedule(fakeSchedule{Entries: 2, Next: next, Accepted: 5, Ignored: 1})

	rec := do(srv.Handler(), http.MethodGet, "/api/state", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("/api/state = %d", rec.Code)
	}
	var got struct {
		display.State
		Schedule *schedule.State `json:"schedule"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Width != 240 {
		t.Errorf("display state lost: %+v", got.State)
	}
	want := schedule.State{Entries: 2, Next: next, Accepted: 5, Ignored: 1}
	if got.Schedule == nil || !got.Schedule.Next.Equal(want.Next) || got.Schedule.Accepted != 5 || got.Schedule.Ignored != 1 || got.Schedule.Entries != 2 {
		t.Errorf("schedule = %+v, want %+v", got.Schedule, want)
	}

	rec = do(newTestServer(nil, &fakeDisplay{}), http.MethodGet, "/api/state", "")
	if strings.Contains(rec.Body.String(), `"schedule"`) {
		t.Errorf("schedule reported without a scheduler: %s", rec.Body.String())
	}
}

func TestTouch(t *testing.T) {
	tests := []struct {
		name string
		body string
		code int
	}{
		{"press", `{"x":10,"y":20,"contact":true}`, http.StatusOK},
		{"outside", `{"x":240,"y":0,"contact":true}`, http.StatusBadRequest},
		{"negative", `{"x":-1,"y":0}`, http.StatusBadRequest},
		{"bad json", `{"x":`, http.StatusBadRequest},
		{"unknown field", `{"x":1,"y":1,"pressure":3}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &fakeDisplay{}
			rec := do(newTestServer(nil, d), http.MethodPost, "/api/touch", tt.body)
			if rec.Code != tt.code {
				t.Fatalf("code = %d, want %d: %s", rec.Code, tt.code, rec.Body.String())
			}
			if tt.code == http.StatusOK {
				if len(d.touches) != 1 || d.touches[0] != (model.TouchSample{X: 10, Y: 20, Contact: true}) {
					t.Errorf("touches = %+v", d.touches)
				}
			} else if len(d.touches) != 0 {
				t.Errorf("rejected touch reached the display: %+v", d.touches)
			}
		})
	}
}

func TestRefresh(t *testing.T) {
	tests := []struct {
		name string
		busy bool
		body string
		code int
	}{
		{"accepted", false, `{"direction":"left_anim"}`, http.StatusAccepted},
		{"busy", true, `{"direction":"down"}`, http.StatusConflict},
		{"missing", false, `{}`, http.StatusBadRequest},
		{"unknown", false, `{"direction":"sideways"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &fakeDisplay{busy: tt.busy}
			rec := do(newTestServer(nil, d), http.MethodPost, "/api/refresh", tt.body)
			if rec.Code != tt.code {
				t.Fatalf("code = %d, want %d: %s", rec.Code, tt.code, rec.Body.String())
			}
		})
	}
}

func TestPower(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		body   string
		code   int
		asleep bool
	}{
		{"off", nil, `{"on":false}`, http.StatusOK, true},
		{"on", nil, `{"on":true}`, http.StatusOK, false},
		{"missing", nil, `{}`, http.StatusBadRequest, false},
		{"no power control", display.ErrNoPower, `{"on":false}`, http.StatusNotImplemented, false},
		{"panel error", errors.New("spi down"), `{"on":false}`, http.StatusInternalServerError, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &fakeDisplay{powerErr: tt.err}
			rec := do(newTestServer(nil, d), http.MethodPost, "/api/power", tt.body)
			if rec.Code != tt.code {
				t.Fatalf("code = %d, want %d: %s", rec.Code, tt.code, rec.Body.String())
			}
			if d.asleep != tt.asleep {
				t.Errorf("asleep = %v, want %v", d.asleep, tt.asleep)
			}
		})
	}
}

func TestPreviewPNG(t *testing.T) {
	rec := do(newTestServer(nil, &fakeDisplay{}), http.MethodGet, "/preview.png", "")
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("preview = %d %s", rec.Code, rec.Header().Get("Content-Type"))
	}
	img, err := png.Decode(bytes.NewReader(rec.Body.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	if r, _, _, _ := img.At(1, 1).RGBA(); r != 0xFFFF {
		t.Errorf("pixel (1,1) red = %#x", r)
	}

	h := NewServer(config.DefaultConfig(), &fakeDisplay{}, nil).Handler()
	if rec := do(h, http.MethodGet, "/preview.png", ""); rec.Code != http.StatusNotFound {
		t.Errorf("preview without source = %d", rec.Code)
	}
}

func TestStaticAndUnknownAPI(t *testing.T) {
	h := newTestServer(nil, &fakeDisplay{})
	if rec := do(h, http.MethodGet, "/", ""); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "wristdisp") {
		t.Errorf("/ = %d", rec.Code)
	}
	if rec := do(h, http.MethodGet, "/api/nope", ""); rec.Code != http.StatusNotFound {
		t.Errorf("/api/nope = %d", rec.Code)
	}
}

func TestBasicAuth(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BasicAuth = &config.BasicAuthConfig{Username: "admin", Password: "secret"}
	h := newTestServer(cfg, &fakeDisplay{})

	if rec := do(h, http.MethodGet, "/health", ""); rec.Code != http.StatusOK {
		t.Errorf("/health behind auth = %d", rec.Code)
	}
	if rec := do(h, http.MethodGet, "/api/state", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("/api/state without credentials = %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/state", nil)
	req.SetBasicAuth("admin", "secret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("/api/state with credentials = %d", rec.Code)
	}

	cfg.BasicAuth.Password = ""
	if rec := do(newTestServer(cfg, &fakeDisplay{}), http.MethodGet, "/api/state", ""); rec.Code != http.StatusOK {
		t.Errorf("empty password should disable auth, got %d", rec.Code)
	}
}
