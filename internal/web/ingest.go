package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"mirrorcal/internal/bus"
	appLog "mirrorcal/internal/log"
	"mirrorcal/internal/model"
)

// notification is the body of POST /api/notifications/{name}. Which fields
// are read depends on the name.
type notification struct {
	ID        string             `json:"id"`
	URL       string             `json:"url"`
	Events    []json.RawMessage  `json:"events"`
	ErrorType string             `json:"error_type"`
	Data      *model.HolidayData `json:"data"`
}

type ingestResponse struct {
	Accepted int `json:"accepted"`
	Skipped  int `json:"skipped,omitempty"`
}

var errMissingURL = errors.New("url is required")

// handleNotification turns a posted notification into a bus message for the
// calendar module. Events that fail to decode are skipped, never fatal.
func (s *Server) handleNotification(w http.ResponseWriter, r *http.Request) {
	name := bus.Name(mux.Vars(r)["name"])

	r.Body = http.MaxBytesReader(w, r.Body, maxIngestBytes)
	var body notification
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.ID == "" {
		body.ID = s.cal.ID()
	}

	var (
		msg  bus.Message
		resp ingestResponse
	)
	switch name {
	case bus.CalendarEvents:
		if body.URL == "" {
			writeError(w, http.StatusBadRequest, errMissingURL.Error())
			return
		}
		events := decodeEvents(body.Events)
		resp = ingestResponse{Accepted: len(events), Skipped: len(body.Events) - len(events)}
		msg = bus.Message{Name: name, ID: body.ID, Payload: bus.CalendarEventsPayload{URL: body.URL, Events: events}}

	case bus.CalendarError:
		if body.URL == "" {
			writeError(w, http.StatusBadRequest, errMissingURL.Error())
			return
		}
		msg = bus.Message{Name: name, ID: body.ID, Payload: bus.CalendarErrorPayload{URL: body.URL, ErrorType: body.ErrorType}}

	case bus.SwedishDays:
		if body.Data == nil {
			writeError(w, http.StatusBadRequest, "data is required")
			return
		}
		msg = bus.Message{Name: name, ID: body.ID, Payload: bus.SwedishDaysPayload{Data: *body.Data}}

	case bus.FetchCalendar:
		if body.URL == "" {
			writeError(w, http.StatusBadRequest, errMissingURL.Error())
			return
		}
		if err := s.cal.RequestFetch(r.Context(), body.URL); err != nil {
			appLog.Error("fetch request failed", err)
			writeError(w, http.StatusServiceUnavailable, "fetch request failed")
			return
		}
		writeJSON(w, http.StatusAccepted, ingestResponse{Accepted: 1})
		return

	default:
		writeError(w, http.StatusNotFound, "unknown notification "+string(name))
		return
	}

	if err := s.bus.Publish(r.Context(), msg); err != nil {
		appLog.Error("publish notification failed", err, "name", string(name))
		writeError(w, http.StatusServiceUnavailable, "calendar module unavailable")
		return
	}
	appLog.Debug("notification accepted", "name", string(name), "accepted", resp.Accepted, "skipped", resp.Skipped)
	if name != bus.CalendarEvents {
		resp.Accepted = 1
	}
	writeJSON(w, http.StatusAccepted, resp)
}

// decodeEvents decodes each event on its own so one malformed entry does not
// cost the whole batch.
func decodeEvents(raw []json.RawMessage) []model.CalendarEvent {
	events := make([]model.CalendarEvent, 0, len(raw))
	for i, r := range raw {
		var ev model.CalendarEvent
		if err := json.Unmarshal(r, &ev); err != nil {
			appLog.Warn("skipping malformed event", "index", i, "err", err)
			continue
		}
		// The source key is assigned during aggregation.
		ev.URL = ""
		events = append(events, ev)
	}
	return events
}
