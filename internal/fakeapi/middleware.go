package fakeapi

import (
	"fmt"
	"net/http"
	"strings"
)

// chainMiddleware wraps routeFunction so that mw[0] runs first.
func chainMiddleware(routeFunction http.HandlerFunc, mw ...func(http.HandlerFunc) http.HandlerFunc) http.HandlerFunc {
	chained := routeFunction
	for i := len(mw) - 1; i >= 0; i-- {
		chained = mw[i](chained)
	}
	return chained
}

// recoverMiddleware turns a handler panic into a 500 so a broken handler fails one test
// request instead of the whole test binary.
func (s *Server) recoverMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.log.Error().Str("path", r.URL.Path).Msgf("handler panic: %v", rec)
				writeError(w, http.StatusInternalServerError, fmt.Sprint(rec), nil)
			}
		}()
		next(w, r)
	}
}

// countMiddleware records the call and serves any queued failure for the route.
func (s *Server) countMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		route := r.Method + " " + strings.TrimPrefix(r.URL.Path, apiPrefix)

		s.mu.Lock()
		s.calls[route]++
		var status int
		if queued := s.failures[route]; len(queued) > 0 {
			status, s.failures[route] = queued[0], queued[1:]
		}
		s.mu.Unlock()

		s.log.Debug().Str("route", route).Int("injected_status", status).Msg("fake api call")
		if status != 0 {
			writeError(w, status, http.StatusText(status), nil)
			return
		}
		next(w, r)
	}
}
