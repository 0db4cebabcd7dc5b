// Package devices exposes the device directory over HTTP.
package devices

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/kilianp07/mqttbridge/core/device"
)

// Directory is the subset of device.Directory served by the handlers.
type Directory interface {
	Add(id, name string) (device.Device, error)
	Get(id string) (device.Device, bool)
	List(f device.Filter) []device.Device
}

const basePath = "/api/devices"

// NewHandler serves:
//
//	GET  /api/devices?state=pending|active
//	POST /api/devices        {"id": "...", "name": "..."}
//	GET  /api/devices/{id}
func NewHandler(dir Directory) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.Trim(strings.TrimPrefix(r.URL.Path, basePath), "/")
		switch {
		case id == "" && r.Method == http.MethodGet:
			list(w, r, dir)
		case id == "" && r.Method == http.MethodPost:
			add(w, r, dir)
		case id != "" && r.Method == http.MethodGet:
			dev, ok := dir.Get(id)
			if !ok {
				http.NotFound(w, r)
				return
			}
			writeJSON(w, http.StatusOK, dev)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
}

// Register mounts the handler on mux under /api/devices.
func Register(mux *http.ServeMux, dir Directory) {
	h := NewHandler(dir)
	mux.Handle(basePath, h)
	mux.Handle(basePath+"/", h)
}

func list(w http.ResponseWriter, r *http.Request, dir Directory) {
	state := device.State(r.URL.Query().Get("state"))
	switch state {
	case "", device.StatePending, device.StateActive:
	default:
		http.Error(w, "unknown state", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, dir.List(device.Filter{State: state}))
}

func add(w http.ResponseWriter, r *http.Request, dir Directory) {
	var body struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ID == "" {
		http.Error(w, "body must be {\"id\": ..., \"name\": ...}", http.StatusBadRequest)
		return
	}
	dev, err := dir.Add(body.ID, body.Name)
	if errors.Is(err, device.ErrDeviceExists) {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusCreated, dev)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
