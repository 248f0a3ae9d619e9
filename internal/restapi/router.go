// Package restapi exposes the Agent manager's proxy operations over HTTP,
// mapping validation failures to 400 and transport/protocol failures to 500.
package restapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ampiolux/lcs-gateway/internal/lcscmd"
	"github.com/ampiolux/lcs-gateway/internal/lcsframe"
	"github.com/ampiolux/lcs-gateway/internal/manager"
	"github.com/ampiolux/lcs-gateway/internal/response"
)

// NewRouter builds the chi router exposing every REST endpoint backed by m.
func NewRouter(m *manager.Manager) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: false,
	}))

	h := &handlers{m: m}

	r.Get("/lcs/status", h.status)
	r.Get("/lcs/agents", h.agents)
	r.Get("/lcs/device-info", h.deviceInfo)
	r.Get("/lcs/lamps/{master}/{cu}/brightness", h.getBrightness)
	r.Get("/lcs/lamps/{master}/{cu}/color-temperature", h.getColorTemperature)
	r.Post("/lcs/lamps/{master}/{cu}/{lampNo}/control", h.dimLamp)
	r.Post("/lcs/lamps/{master}/{cu}/block-control", h.blockControl)
	r.Post("/lcs/lamps/{master}/{cu}/color-temperature", h.blockColorTemp)
	r.Post("/lcs/lamps/{master}/{cu}/all", h.allLamps)
	r.Post("/lcs/lamps/{master}/{cu}/{lampNo}/fade", h.fade)
	r.Post("/lcs/lamps/{master}/{cu}/wave", h.wave)
	r.Post("/lcs/scenes/{master}/{cu}/{sceneNo}/execute", h.executeScene)

	return r
}

type handlers struct {
	m *manager.Manager
}

type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeOK(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data})
}

// writeErr maps an error to 400 (bad input) or 500 (transport/protocol),
// matching the manager's validation-vs-transport error taxonomy.
func writeErr(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var invalidArg *lcscmd.InvalidArgumentError
	switch {
	case errors.As(err, &invalidArg),
		errors.Is(err, manager.ErrDuplicateID),
		errors.Is(err, manager.ErrUnknownAgent),
		errors.Is(err, manager.ErrNoDefaultAgent):
		status = http.StatusBadRequest
	}
	writeJSON(w, status, envelope{Success: false, Error: err.Error()})
}

func intParam(r *http.Request, name string) (int, error) {
	raw := chi.URLParam(r, name)
	return strconv.Atoi(raw)
}

func agentIDFromQuery(r *http.Request) string {
	return r.URL.Query().Get("agentId")
}

func deviceTypeFromQuery(r *http.Request) (lcsframe.DeviceType, error) {
	switch r.URL.Query().Get("deviceType") {
	case "", "LCS":
		return lcsframe.DeviceLCS, nil
	case "RCU4":
		return lcsframe.DeviceRCU4, nil
	case "RCU8":
		return lcsframe.DeviceRCU8, nil
	default:
		return 0, &lcscmd.InvalidArgumentError{Field: "deviceType", Value: -1}
	}
}

func typedResponseJSON(t response.Typed) map[string]interface{} {
	out := map[string]interface{}{
		"opcode": t.Opcode,
		"source": map[string]interface{}{
			"deviceType": t.Source.DeviceType,
			"master":     t.Source.Master,
			"cu":         t.Source.CU,
		},
		"timestamp": t.Timestamp,
	}
	switch t.Kind {
	case response.KindLampBrightness, response.KindColorTemperature:
		out["values"] = t.Values
	case response.KindLampControlAck:
		out["ok"] = t.OK
	case response.KindDeviceName:
		out["name"] = t.Name
	default:
		out["raw"] = t.Raw
	}
	return out
}

func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	writeOK(w, h.m.GetConnectionStatus())
}

func (h *handlers) agents(w http.ResponseWriter, r *http.Request) {
	writeOK(w, h.m.GetConnectionStatus().Agents)
}

func (h *handlers) deviceInfo(w http.ResponseWriter, r *http.Request) {
	resp, err := h.m.GetDeviceName(r.Context(), agentIDFromQuery(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, typedResponseJSON(resp))
}

func (h *handlers) getBrightness(w http.ResponseWriter, r *http.Request) {
	master, cu, err := masterCU(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	devType, err := deviceTypeFromQuery(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	resp, err := h.m.GetLampBrightness(r.Context(), agentIDFromQuery(r), devType, master, cu)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, typedResponseJSON(resp))
}

func (h *handlers) getColorTemperature(w http.ResponseWriter, r *http.Request) {
	master, cu, err := masterCU(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	resp, err := h.m.GetColorTemperature(r.Context(), agentIDFromQuery(r), master, cu)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, typedResponseJSON(resp))
}

type dimLampBody struct {
	Brightness int `json:"brightness"`
}

func (h *handlers) dimLamp(w http.ResponseWriter, r *http.Request) {
	master, cu, err := masterCU(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	lampNo, err := intParam(r, "lampNo")
	if err != nil {
		writeErr(w, &lcscmd.InvalidArgumentError{Field: "lampNo", Value: -1})
		return
	}
	var body dimLampBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeErr(w, &lcscmd.InvalidArgumentError{Field: "brightness", Value: -1})
		return
	}
	resp, err := h.m.DimLamp(r.Context(), agentIDFromQuery(r), master, cu, lampNo, body.Brightness)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, typedResponseJSON(resp))
}

type blockControlBody struct {
	LampList   []int `json:"lampList"`
	Brightness int   `json:"brightness"`
}

func (h *handlers) blockControl(w http.ResponseWriter, r *http.Request) {
	master, cu, err := masterCU(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	var body blockControlBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeErr(w, &lcscmd.InvalidArgumentError{Field: "body", Value: -1})
		return
	}
	resp, err := h.m.BlockLampControl(r.Context(), agentIDFromQuery(r), master, cu, body.LampList, body.Brightness)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, typedResponseJSON(resp))
}

type blockColorTempBody struct {
	LampList  []int `json:"lampList"`
	ColorTemp int   `json:"colorTemp"`
}

func (h *handlers) blockColorTemp(w http.ResponseWriter, r *http.Request) {
	master, cu, err := masterCU(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	var body blockColorTempBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeErr(w, &lcscmd.InvalidArgumentError{Field: "body", Value: -1})
		return
	}
	resp, err := h.m.BlockColorTemp(r.Context(), agentIDFromQuery(r), master, cu, body.LampList, body.ColorTemp)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, typedResponseJSON(resp))
}

type allLampsBody struct {
	Brightness int `json:"brightness"`
}

func (h *handlers) allLamps(w http.ResponseWriter, r *http.Request) {
	master, cu, err := masterCU(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	var body allLampsBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeErr(w, &lcscmd.InvalidArgumentError{Field: "brightness", Value: -1})
		return
	}
	resp, err := h.m.AllLamps(r.Context(), agentIDFromQuery(r), master, cu, body.Brightness)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, typedResponseJSON(resp))
}

type fadeBody struct {
	StartBrightness int `json:"startBrightness"`
	EndBrightness   int `json:"endBrightness"`
	Duration        int `json:"duration"`
}

func (h *handlers) fade(w http.ResponseWriter, r *http.Request) {
	master, cu, err := masterCU(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	lampNo, err := intParam(r, "lampNo")
	if err != nil {
		writeErr(w, &lcscmd.InvalidArgumentError{Field: "lampNo", Value: -1})
		return
	}
	var body fadeBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeErr(w, &lcscmd.InvalidArgumentError{Field: "body", Value: -1})
		return
	}
	if body.Duration <= 0 {
		body.Duration = 1
	}
	if err := h.m.Fade(r.Context(), agentIDFromQuery(r), master, cu, lampNo, body.StartBrightness, body.EndBrightness, body.Duration); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: map[string]string{"status": "started"}})
}

type waveBody struct {
	LampList   []int `json:"lampList"`
	Brightness int   `json:"brightness"`
	Interval   int   `json:"interval"`
}

func (h *handlers) wave(w http.ResponseWriter, r *http.Request) {
	master, cu, err := masterCU(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	var body waveBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeErr(w, &lcscmd.InvalidArgumentError{Field: "body", Value: -1})
		return
	}
	if body.Interval <= 0 {
		body.Interval = 500
	}
	if err := h.m.Wave(r.Context(), agentIDFromQuery(r), master, cu, body.LampList, body.Brightness, body.Interval); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: map[string]string{"status": "started"}})
}

type executeSceneBody struct {
	FadeTime int `json:"fadeTime"`
}

func (h *handlers) executeScene(w http.ResponseWriter, r *http.Request) {
	master, cu, err := masterCU(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	sceneNo, err := intParam(r, "sceneNo")
	if err != nil {
		writeErr(w, &lcscmd.InvalidArgumentError{Field: "sceneNo", Value: -1})
		return
	}
	var body executeSceneBody
	_ = json.NewDecoder(r.Body).Decode(&body) // fadeTime is optional
	resp, err := h.m.ExecuteScene(r.Context(), agentIDFromQuery(r), master, cu, sceneNo, body.FadeTime)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, typedResponseJSON(resp))
}

func masterCU(r *http.Request) (int, int, error) {
	master, err := intParam(r, "master")
	if err != nil {
		return 0, 0, &lcscmd.InvalidArgumentError{Field: "master", Value: -1}
	}
	cu, err := intParam(r, "cu")
	if err != nil {
		return 0, 0, &lcscmd.InvalidArgumentError{Field: "cu", Value: -1}
	}
	return master, cu, nil
}
