package api

import (
	"encoding/json"
	"io"
	"math"
	"net/http"
	"sort"

	"github.com/gorilla/mux"
	"github.com/jkaflik/cover2mqtt/internal/shutter"
	"github.com/sirupsen/logrus"
)

const maxBodySize = 4096

type aliased interface {
	Aliases() []string
}

// Covers resolves covers by name or alias.
type Covers struct {
	names []string
	index map[string]shutter.Shutter
}

func NewCovers(covers ...shutter.Shutter) *Covers {
	c := &Covers{index: map[string]shutter.Shutter{}}

	for _, s := range covers {
		c.names = append(c.names, s.Name())
		c.index[s.Name()] = s
	}
	for _, s := range covers {
		a, ok := s.(aliased)
		if !ok {
			continue
		}
		for _, alias := range a.Aliases() {
			if _, taken := c.index[alias]; taken {
				logrus.Warnf("%s: alias %s is already taken, ignored", s.Name(), alias)
				continue
			}
			c.index[alias] = s
		}
	}
	sort.Strings(c.names)

	return c
}

func (c *Covers) Get(name string) (shutter.Shutter, bool) {
	s, ok := c.index[name]
	return s, ok
}

// All returns covers ordered by name.
func (c *Covers) All() []shutter.Shutter {
	covers := make([]shutter.Shutter, 0, len(c.names))
	for _, name := range c.names {
		covers = append(covers, c.index[name])
	}
	return covers
}

type CoverResponse struct {
	Name     string        `json:"name"`
	State    shutter.State `json:"state"`
	Position int           `json:"position"`
	shutter.Attributes
}

func NewCoverResponse(name string, status shutter.Status) CoverResponse {
	return CoverResponse{
		Name:       name,
		State:      status.State,
		Position:   int(math.Round(status.Position)),
		Attributes: status.Attributes(),
	}
}

func coverResponse(s shutter.Shutter) CoverResponse {
	return NewCoverResponse(s.Name(), s.Status())
}

func listCovers(covers *Covers) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := []CoverResponse{}
		for _, s := range covers.All() {
			response = append(response, coverResponse(s))
		}

		writeJSON(w, http.StatusOK, response)
	}
}

// lookup resolves the {name} route variable, it writes a 404 when the cover is unknown.
func lookup(covers *Covers, w http.ResponseWriter, r *http.Request) (shutter.Shutter, bool) {
	name := mux.Vars(r)["name"]

	s, ok := covers.Get(name)
	if !ok {
		writeError(w, http.StatusNotFound, errNotFound, "cover "+name+" not found")
	}
	return s, ok
}

func getCover(covers *Covers) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := lookup(covers, w, r)
		if !ok {
			return
		}

		writeJSON(w, http.StatusOK, coverResponse(s))
	}
}

func commandCover(covers *Covers) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := lookup(covers, w, r)
		if !ok {
			return
		}

		var err error
		switch command := mux.Vars(r)["command"]; command {
		case "open":
			err = s.Open(r.Context())
		case "close":
			err = s.Close(r.Context())
		case "stop":
			err = s.Stop(r.Context())
		default:
			writeError(w, http.StatusBadRequest, errBadRequest, "unsupported command "+command)
			return
		}

		if err != nil {
			logrus.Errorf("%s: API command failed: %s", s.Name(), err)
			writeError(w, http.StatusInternalServerError, errInternalError, err.Error())
			return
		}

		writeJSON(w, http.StatusAccepted, coverResponse(s))
	}
}

type positionRequest struct {
	Position *float64 `json:"position"`
}

func setPosition(covers *Covers) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := lookup(covers, w, r)
		if !ok {
			return
		}

		var req positionRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&req); err != nil || req.Position == nil {
			writeError(w, http.StatusBadRequest, errBadRequest, "body must be {\"position\": <number>}")
			return
		}

		if err := s.SetPosition(r.Context(), *req.Position); err != nil {
			logrus.Errorf("%s: API position change failed: %s", s.Name(), err)
			writeError(w, http.StatusInternalServerError, errInternalError, err.Error())
			return
		}

		writeJSON(w, http.StatusAccepted, coverResponse(s))
	}
}

// lookupKnown resolves a cover accepting out-of-band state.
func lookupKnown(covers *Covers, w http.ResponseWriter, r *http.Request) (shutter.KnownStateShutter, bool) {
	s, ok := lookup(covers, w, r)
	if !ok {
		return nil, false
	}

	known, ok := s.(shutter.KnownStateShutter)
	if !ok {
		writeError(w, http.StatusNotImplemented, errNotSupported, "cover "+s.Name()+" does not accept known state")
	}
	return known, ok
}

func setKnownPosition(covers *Covers) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := lookupKnown(covers, w, r)
		if !ok {
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
		if err != nil {
			writeError(w, http.StatusBadRequest, errBadRequest, err.Error())
			return
		}
		known, err := shutter.ParseKnownPosition(body)
		if err != nil {
			writeError(w, http.StatusBadRequest, errBadRequest, err.Error())
			return
		}

		if err := s.SetKnownPosition(r.Context(), known.Position, known.Confident, known.PositionType); err != nil {
			writeError(w, http.StatusBadRequest, errBadRequest, err.Error())
			return
		}

		writeJSON(w, http.StatusOK, coverResponse(s))
	}
}

type actionRequest struct {
	Action string `json:"action"`
}

func setKnownAction(covers *Covers) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := lookupKnown(covers, w, r)
		if !ok {
			return
		}

		var req actionRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, errBadRequest, "body must be {\"action\": \"open|close|stop\"}")
			return
		}
		action, err := shutter.ParseAction(req.Action)
		if err != nil {
			writeError(w, http.StatusBadRequest, errBadRequest, err.Error())
			return
		}

		if err := s.SetKnownAction(r.Context(), action); err != nil {
			writeError(w, http.StatusBadRequest, errBadRequest, err.Error())
			return
		}

		writeJSON(w, http.StatusOK, coverResponse(s))
	}
}
