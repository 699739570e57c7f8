package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

// degradationBreaker is the name the graceful degradation breaker is listed under
const degradationBreaker = "http"

// getCircuitBreakerStatusHandler returns the state of every circuit breaker
func (s *Server) getCircuitBreakerStatusHandler(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		degradationBreaker: s.gracefulDegradation.GetMetrics(),
	}
	for name, b := range s.breakers() {
		status[name] = b.GetMetrics()
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: status})
}

// resetCircuitBreakerHandler closes the named circuit breaker
func (s *Server) resetCircuitBreakerHandler(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	if name == degradationBreaker {
		s.gracefulDegradation.Reset()
	} else if b, ok := s.breakers()[name]; ok {
		b.Reset()
	} else {
		s.respondWithError(w, http.StatusNotFound, "Unknown circuit breaker")
		return
	}

	s.logger.Info("Circuit breaker reset", "name", name)

	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data: map[string]string{
			"message": "Circuit breaker reset successfully",
			"name":    name,
		},
	})
}
