package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-echonet/internal/bridges/hvac"
)

// DeviceResponse is one air conditioner as reported by the API.
type DeviceResponse struct {
	Name          string            `json:"name"`
	Address       string            `json:"address"`
	EOJ           string            `json:"eoj"`
	Power         string            `json:"power"`
	DiscoveredAt  time.Time         `json:"discovered_at"`
	StateTopics   map[string]string `json:"state_topics,omitempty"`
	CommandTopics []string          `json:"command_topics,omitempty"`
}

// DeviceListResponse is the body of GET /api/v1/devices.
type DeviceListResponse struct {
	Devices []DeviceResponse `json:"devices"`
	Count   int              `json:"count"`
}

func toDeviceResponse(d hvac.Device) DeviceResponse {
	return DeviceResponse{
		Name:         d.Name,
		Address:      d.Address,
		EOJ:          d.EOJ.String(),
		Power:        d.Power.String(),
		DiscoveredAt: d.DiscoveredAt.UTC(),
	}
}

func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	devices := s.bridge.Devices()

	resp := DeviceListResponse{
		Devices: make([]DeviceResponse, 0, len(devices)),
		Count:   len(devices),
	}
	for _, d := range devices {
		resp.Devices = append(resp.Devices, toDeviceResponse(d))
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleGetDevice returns one device together with its bus topics.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	d, err := s.bridge.Device(name)
	if errors.Is(err, hvac.ErrDeviceNotFound) {
		writeNotFound(w, "device not found: "+name)
		return
	}
	if err != nil {
		writeInternalError(w, "failed to load device")
		return
	}

	resp := toDeviceResponse(d)
	if tl, ok := s.bridge.(topicLister); ok {
		codec := tl.Codec()
		resp.CommandTopics = codec.CommandTopics(d.Name)
		resp.StateTopics = make(map[string]string)
		for _, topic := range codec.StateTopics(d.Name) {
			resp.StateTopics[topicSuffix(topic)] = topic
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// topicLister is implemented by bridges that expose their topic codec.
type topicLister interface {
	Codec() hvac.TopicCodec
}

func topicSuffix(topic string) string {
	return topic[strings.LastIndexByte(topic, '/')+1:]
}
