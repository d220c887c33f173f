package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mbocsi/qnob/services"
)

func (w *WebClient) HandleState(wr http.ResponseWriter, r *http.Request) {
	state, err := w.services.State.GetState(r.Context())
	if err != nil {
		w.handleError(wr, err)
		return
	}
	writeJSON(wr, http.StatusOK, state)
}

func (w *WebClient) HandleSetVolume(wr http.ResponseWriter, r *http.Request) {
	var req struct {
		Volume *int `json:"volume"`
	}
	if !decode(wr, r, &req) {
		return
	}
	if req.Volume == nil {
		w.handleError(wr, services.ServiceError{Code: services.ErrCodeInvalidInput, Message: "volume is required"})
		return
	}
	if err := w.services.State.SetVolume(r.Context(), *req.Volume); err != nil {
		w.handleError(wr, err)
		return
	}
	wr.WriteHeader(http.StatusNoContent)
}

func (w *WebClient) HandleMedia(wr http.ResponseWriter, r *http.Request) {
	if err := w.services.State.Media(r.Context(), chi.URLParam(r, "action")); err != nil {
		w.handleError(wr, err)
		return
	}
	wr.WriteHeader(http.StatusNoContent)
}

func (w *WebClient) HandleTransports(wr http.ResponseWriter, r *http.Request) {
	transports, err := w.services.Transport.ListTransports(r.Context())
	if err != nil {
		w.handleError(wr, err)
		return
	}
	writeJSON(wr, http.StatusOK, transports)
}

func (w *WebClient) HandleConnectSerial(wr http.ResponseWriter, r *http.Request) {
	var req struct {
		Port string `json:"port"`
		Baud int    `json:"baud"`
	}
	if !decode(wr, r, &req) {
		return
	}
	if err := w.services.Transport.ConnectSerial(r.Context(), req.Port, req.Baud); err != nil {
		w.handleError(wr, err)
		return
	}
	wr.WriteHeader(http.StatusNoContent)
}

func (w *WebClient) HandleConnectTCP(wr http.ResponseWriter, r *http.Request) {
	var req struct {
		Host string `json:"host"`
		Port string `json:"port"`
	}
	if !decode(wr, r, &req) {
		return
	}
	port := 0
	if req.Port != "" {
		p, err := strconv.Atoi(req.Port)
		if err != nil {
			w.handleError(wr, services.ServiceError{Code: services.ErrCodeInvalidInput, Message: "port " + strconv.Quote(req.Port) + " is not a number"})
			return
		}
		port = p
	}
	if err := w.services.Transport.ConnectTCP(r.Context(), req.Host, port); err != nil {
		w.handleError(wr, err)
		return
	}
	wr.WriteHeader(http.StatusNoContent)
}

func (w *WebClient) HandleDisconnectDevice(wr http.ResponseWriter, r *http.Request) {
	if err := w.services.Transport.DisconnectDevice(r.Context()); err != nil {
		w.handleError(wr, err)
		return
	}
	wr.WriteHeader(http.StatusNoContent)
}

func (w *WebClient) HandleConnectMQTT(wr http.ResponseWriter, r *http.Request) {
	if err := w.services.Transport.ConnectMQTT(r.Context()); err != nil {
		w.handleError(wr, err)
		return
	}
	wr.WriteHeader(http.StatusNoContent)
}

func (w *WebClient) HandleDisconnectMQTT(wr http.ResponseWriter, r *http.Request) {
	if err := w.services.Transport.DisconnectMQTT(); err != nil {
		w.handleError(wr, err)
		return
	}
	wr.WriteHeader(http.StatusNoContent)
}

func (w *WebClient) HandlePorts(wr http.ResponseWriter, r *http.Request) {
	ports, err := w.services.Transport.ListSerialPorts()
	if err != nil {
		w.handleError(wr, err)
		return
	}
	writeJSON(wr, http.StatusOK, ports)
}

func (w *WebClient) HandleScan(wr http.ResponseWriter, r *http.Request) {
	hosts, err := w.services.Transport.ScanNetwork(r.Context())
	if err != nil {
		w.handleError(wr, err)
		return
	}
	writeJSON(wr, http.StatusOK, hosts)
}

func (w *WebClient) HandleDiscover(wr http.ResponseWriter, r *http.Request) {
	found, err := w.services.Transport.Discover(r.Context())
	if err != nil {
		w.handleError(wr, err)
		return
	}
	writeJSON(wr, http.StatusOK, found)
}

// HandleLog returns the message log of one transport. Self-echoes are left
// out unless self=true.
func (w *WebClient) HandleLog(wr http.ResponseWriter, r *http.Request) {
	includeSelf := r.URL.Query().Get("self") == "true"
	entries, err := w.services.State.MessageLog(chi.URLParam(r, "kind"), includeSelf)
	if err != nil {
		w.handleError(wr, err)
		return
	}
	writeJSON(wr, http.StatusOK, entries)
}

func (w *WebClient) HandleClearLog(wr http.ResponseWriter, r *http.Request) {
	if err := w.services.State.ClearMessageLog(chi.URLParam(r, "kind")); err != nil {
		w.handleError(wr, err)
		return
	}
	wr.WriteHeader(http.StatusNoContent)
}

func (w *WebClient) HandleDeviceCommand(wr http.ResponseWriter, r *http.Request) {
	var req struct {
		Line string `json:"line"`
	}
	if !decode(wr, r, &req) {
		return
	}
	if err := w.services.Device.SendCommand(r.Context(), req.Line); err != nil {
		w.handleError(wr, err)
		return
	}
	wr.WriteHeader(http.StatusAccepted)
}

func (w *WebClient) HandleDeviceConfig(wr http.ResponseWriter, r *http.Request) {
	values, err := w.services.Device.LoadConfig(r.Context())
	if err != nil {
		w.handleError(wr, err)
		return
	}
	writeJSON(wr, http.StatusOK, values)
}

func (w *WebClient) HandleDeviceName(wr http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !decode(wr, r, &req) {
		return
	}
	if err := w.services.Device.SetName(r.Context(), req.Name); err != nil {
		w.handleError(wr, err)
		return
	}
	wr.WriteHeader(http.StatusAccepted)
}

func (w *WebClient) HandleDeviceWifi(wr http.ResponseWriter, r *http.Request) {
	var req struct {
		SSID     string `json:"ssid"`
		Password string `json:"password"`
		Slot     int    `json:"slot"`
	}
	if !decode(wr, r, &req) {
		return
	}
	if err := w.services.Device.ConnectWifi(r.Context(), req.SSID, req.Password, req.Slot); err != nil {
		w.handleError(wr, err)
		return
	}
	wr.WriteHeader(http.StatusAccepted)
}

func (w *WebClient) HandleStaticIP(wr http.ResponseWriter, r *http.Request) {
	var req services.StaticIPRequest
	if !decode(wr, r, &req) {
		return
	}
	if err := w.services.Device.SetStaticIP(r.Context(), req); err != nil {
		w.handleError(wr, err)
		return
	}
	wr.WriteHeader(http.StatusAccepted)
}

func (w *WebClient) HandleDisableStaticIP(wr http.ResponseWriter, r *http.Request) {
	if err := w.services.Device.DisableStaticIP(r.Context()); err != nil {
		w.handleError(wr, err)
		return
	}
	wr.WriteHeader(http.StatusAccepted)
}

func (w *WebClient) HandleSoundMQTT(wr http.ResponseWriter, r *http.Request) {
	var req services.SoundMQTTRequest
	if !decode(wr, r, &req) {
		return
	}
	if err := w.services.Device.ConfigureSoundMQTT(r.Context(), req); err != nil {
		w.handleError(wr, err)
		return
	}
	wr.WriteHeader(http.StatusAccepted)
}

func (w *WebClient) HandleConfig(wr http.ResponseWriter, r *http.Request) {
	writeJSON(wr, http.StatusOK, w.services.Config.GetConfig())
}

func (w *WebClient) HandleUpdateMQTT(wr http.ResponseWriter, r *http.Request) {
	var req services.MQTTRequest
	if !decode(wr, r, &req) {
		return
	}
	if err := w.services.Config.UpdateMQTT(req); err != nil {
		w.handleError(wr, err)
		return
	}
	wr.WriteHeader(http.StatusNoContent)
}

func decode(wr http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(wr, http.StatusBadRequest, services.ServiceError{Code: services.ErrCodeInvalidInput, Message: "Invalid JSON body"})
		return false
	}
	return true
}

func writeJSON(wr http.ResponseWriter, status int, v any) {
	wr.Header().Set("Content-Type", "application/json")
	wr.WriteHeader(status)
	if err := json.NewEncoder(wr).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// handleError handles service errors with proper HTTP status codes
func (w *WebClient) handleError(wr http.ResponseWriter, err error) {
	slog.Error("Service error", "error", err)

	var serviceErr services.ServiceError
	if errors.As(err, &serviceErr) {
		status := http.StatusInternalServerError
		switch serviceErr.Code {
		case services.ErrCodeNotFound:
			status = http.StatusNotFound
		case services.ErrCodeInvalidInput:
			status = http.StatusBadRequest
		case services.ErrCodeTimeout:
			status = http.StatusGatewayTimeout
		case services.ErrCodeConflict:
			status = http.StatusConflict
		case services.ErrCodeUnavailable:
			status = http.StatusServiceUnavailable
		}
		writeJSON(wr, status, serviceErr)
		return
	}

	writeJSON(wr, http.StatusInternalServerError, services.ServiceError{Code: services.ErrCodeInternal, Message: "Internal server error"})
}
