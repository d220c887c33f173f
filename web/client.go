// Package web serves the bridge's JSON API and pushes state notifications
// over websockets.
package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mbocsi/qnob/bridge"
	"github.com/mbocsi/qnob/services"
)

// WebClient is the HTTP presentation adapter over the service layer.
type WebClient struct {
	services *services.ServiceContainer
	hub      *Hub
}

func NewWebClient(serviceContainer *services.ServiceContainer, notifier *bridge.Notifier) *WebClient {
	return &WebClient{
		services: serviceContainer,
		hub:      NewHub(notifier),
	}
}

// Routes returns the HTTP routes for the API
func (w *WebClient) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/ws", w.hub.HandleWS)

	r.Route("/api", func(r chi.Router) {
		r.Get("/state", w.HandleState)
		r.Post("/volume", w.HandleSetVolume)
		r.Post("/media/{action}", w.HandleMedia)

		r.Get("/transports", w.HandleTransports)
		r.Post("/transports/serial", w.HandleConnectSerial)
		r.Post("/transports/tcp", w.HandleConnectTCP)
		r.Delete("/transports/device", w.HandleDisconnectDevice)
		r.Post("/transports/mqtt", w.HandleConnectMQTT)
		r.Delete("/transports/mqtt", w.HandleDisconnectMQTT)

		r.Get("/ports", w.HandlePorts)
		r.Get("/scan", w.HandleScan)
		r.Get("/discover", w.HandleDiscover)

		r.Get("/log/{kind}", w.HandleLog)
		r.Delete("/log/{kind}", w.HandleClearLog)

		r.Post("/device/command", w.HandleDeviceCommand)
		r.Get("/device/config", w.HandleDeviceConfig)
		r.Post("/device/name", w.HandleDeviceName)
		r.Post("/device/wifi", w.HandleDeviceWifi)
		r.Post("/device/static-ip", w.HandleStaticIP)
		r.Delete("/device/static-ip", w.HandleDisableStaticIP)
		r.Post("/device/sound-mqtt", w.HandleSoundMQTT)

		r.Get("/config", w.HandleConfig)
		r.Put("/config/mqtt", w.HandleUpdateMQTT)
	})
	return r
}
