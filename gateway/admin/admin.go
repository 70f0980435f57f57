// Package admin implements the management API (list/get/add/update/delete
// mirroring the Registry) plus the operational surface every gateway node
// exposes alongside its proxy listener: Prometheus metrics and a readiness
// probe, returning errors as a plain {"message": string} body.
package admin

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/flowgate/gateway/gateway/apitypes"
	"github.com/flowgate/gateway/gateway/registry"
	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// apiError carries an HTTP status alongside the JSON message body returned
// for gateway errors.
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) write(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Status)
	json.NewEncoder(w).Encode(map[string]string{"message": e.Message})
}

func handleAPIError(h func(w http.ResponseWriter, r *http.Request, p httprouter.Params) *apiError) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		if err := h(w, r, p); err != nil {
			err.write(w)
		}
	}
}

// Server exposes the management API, metrics and readiness endpoints. ready
// flips to true once the gateway has finished wiring its proxy listener.
type Server struct {
	registry *registry.Registry
	router   *httprouter.Router
	ready    *bool
}

// NewServer builds the admin router bound to reg. ready is a pointer the
// caller flips once the rest of the gateway has finished starting.
func NewServer(reg *registry.Registry, ready *bool) *Server {
	s := &Server{registry: reg, router: httprouter.New(), ready: ready}

	s.router.GET("/apis", handleAPIError(s.list))
	s.router.GET("/apis/:id", handleAPIError(s.get))
	s.router.POST("/apis/:id", handleAPIError(s.add))
	s.router.PUT("/apis/:id", handleAPIError(s.update))
	s.router.DELETE("/apis/:id", handleAPIError(s.delete))
	s.router.GET("/metrics", wrapHandler(promhttp.Handler()))
	s.router.GET("/ready", handleAPIError(s.serveReady))

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func wrapHandler(h http.Handler) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		h.ServeHTTP(w, r)
	}
}

func (s *Server) serveReady(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) *apiError {
	if s.ready == nil || !*s.ready {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("not ready\n"))
		return nil
	}
	w.Write([]byte("ok\n"))
	return nil
}

func (s *Server) list(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) *apiError {
	apis := s.registry.ListAPIs()
	writeJSON(w, http.StatusOK, apis)
	return nil
}

func (s *Server) get(w http.ResponseWriter, _ *http.Request, p httprouter.Params) *apiError {
	def, ok := s.registry.GetAPI(p.ByName("id"))
	if !ok {
		return &apiError{Status: http.StatusNotFound, Message: "not_found"}
	}
	writeJSON(w, http.StatusOK, def)
	return nil
}

func (s *Server) add(w http.ResponseWriter, r *http.Request, p httprouter.Params) *apiError {
	var def apitypes.Definition
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		return &apiError{Status: http.StatusBadRequest, Message: "malformed definition"}
	}

	id := p.ByName("id")
	if err := s.registry.AddAPI(id, def); err != nil {
		return registryError(err)
	}
	log.WithField("api_id", id).Info("admin: added api")
	w.WriteHeader(http.StatusCreated)
	return nil
}

func (s *Server) update(w http.ResponseWriter, r *http.Request, p httprouter.Params) *apiError {
	var def apitypes.Definition
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		return &apiError{Status: http.StatusBadRequest, Message: "malformed definition"}
	}

	id := p.ByName("id")
	if err := s.registry.UpdateAPI(id, def); err != nil {
		return registryError(err)
	}
	log.WithField("api_id", id).Info("admin: updated api")
	w.WriteHeader(http.StatusOK)
	return nil
}

func (s *Server) delete(w http.ResponseWriter, _ *http.Request, p httprouter.Params) *apiError {
	id := p.ByName("id")
	if err := s.registry.DeleteAPI(id); err != nil {
		return registryError(err)
	}
	log.WithField("api_id", id).Info("admin: deleted api")
	w.WriteHeader(http.StatusOK)
	return nil
}

func registryError(err error) *apiError {
	switch {
	case errors.Is(err, registry.ErrAlreadyTracked):
		return &apiError{Status: http.StatusConflict, Message: "already_tracked"}
	case errors.Is(err, registry.ErrNotFound):
		return &apiError{Status: http.StatusNotFound, Message: "not_found"}
	default:
		return &apiError{Status: http.StatusInternalServerError, Message: err.Error()}
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
