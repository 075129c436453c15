package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/aau-network-security/phishdetect/classifier"
	"github.com/aau-network-security/phishdetect/config"
	"github.com/aau-network-security/phishdetect/detector"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

const APIKeyHeader = "X-API-Key"

var (
	ErrMissingAPIKey = errors.New("invalid or missing api key")
	ErrBadRequest    = errors.New("request body must be a json object with a url")
)

// Classifier is the inference contract served over http
type Classifier interface {
	Classify(ctx context.Context, raw string) (*detector.Response, error)
	Ready() bool
}

type checkRequest struct {
	URL string `json:"url"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type Server struct {
	Conf config.API
	Det  Classifier
	Log  config.ErrLogger
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Msgf("failed to write response: %s", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{err.Error()})
}

// statusOf maps classification errors to http status codes
func statusOf(err error) int {
	var ve *detector.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.Is(err, classifier.ErrFeatureAlignment):
		return http.StatusUnprocessableEntity
	case errors.Is(err, classifier.ErrModelNotLoaded):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) checkURL(w http.ResponseWriter, r *http.Request) {
	if s.Conf.MaxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.Conf.MaxBodyBytes)
	}
	var req checkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrBadRequest)
		return
	}

	resp, err := s.Det.Classify(r.Context(), req.URL)
	if err != nil {
		status := statusOf(err)
		if status == http.StatusInternalServerError {
			s.Log.Log(err, config.LogOptions{
				Tags: map[string]string{"request_id": middleware.GetReqID(r.Context())},
				Msg:  "failed to classify url",
			})
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if !s.Det.Ready() {
		writeError(w, http.StatusServiceUnavailable, classifier.ErrModelNotLoaded)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) requireKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Conf.APIKey != "" && r.Header.Get(APIKeyHeader) != s.Conf.APIKey {
			writeError(w, http.StatusUnauthorized, ErrMissingAPIKey)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// the browser extension calls the api from arbitrary origins
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, "+APIKeyHeader)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Msg("handled request")
	})
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(accessLog)
	r.Use(cors)

	r.Get("/healthz", s.healthz)
	r.Group(func(r chi.Router) {
		r.Use(s.requireKey)
		r.Post("/check-url", s.checkURL)
	})
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context, lis net.Listener) error {
	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.Conf.ReadTimeout,
		WriteTimeout: s.Conf.WriteTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.Serve(lis)
	}()
	log.Info().Msgf("serving api on %s", lis.Addr())

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != http.ErrServerClosed {
		return err
	}
	return nil
}
