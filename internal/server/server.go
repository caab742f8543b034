// Package server is the HTTP completion endpoint the chat client posts to.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"threadchat/internal/advisor"
	"threadchat/internal/logging"
)

// Generator produces the reply to one message.
type Generator interface {
	Generate(ctx context.Context, message string) (string, error)
}

const (
	msgInvalidJSON  = "Invalid JSON"
	msgEmptyMessage = "Message cannot be empty"
	msgInvalidKey   = "Invalid API key"
	msgRateLimited  = "Rate limit exceeded. Please try again later."
	msgAPIError     = "Error communicating with OpenAI API"
	msgInternal     = "An internal server error occurred"
)

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Response string `json:"response"`
	Status   string `json:"status"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Status string `json:"status"`
}

// Server routes the chat API.
type Server struct {
	router    chi.Router
	generator Generator
	logger    zerolog.Logger
	origins   map[string]bool
	registry  *prometheus.Registry

	requests *prometheus.CounterVec
	duration prometheus.Histogram
}

// Option configures a Server.
type Option func(*Server)

// WithAllowedOrigins sets the origins allowed by CORS.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		for _, o := range origins {
			s.origins[strings.TrimRight(o, "/")] = true
		}
	}
}

// New builds the router.
func New(gen Generator, logger zerolog.Logger, opts ...Option) *Server {
	s := &Server{
		generator: gen,
		logger:    logger.With().Str("component", "server").Logger(),
		origins:   map[string]bool{},
		registry:  prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chat_requests_total",
				Help: "Chat requests by response status code.",
			},
			[]string{"status"},
		),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chat_request_duration_seconds",
			Help:    "Time spent answering chat requests.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registry.MustRegister(s.requests, s.duration)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.cors)

	r.Route("/api", func(r chi.Router) {
		r.Get("/test", s.handleTest)
		r.Post("/chat", s.handleChat)
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.origins[origin] {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Add("Vary", "Origin")
			if r.Method == http.MethodOptions {
				h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Accept")
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleTest(w http.ResponseWriter, r *http.Request) {
	s.logger.Info().Msg("test endpoint called")
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "CORS is working!"})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	log := s.logger.With().Str("request_id", middleware.GetReqID(r.Context())).Logger()

	status, body := s.chat(r, log)
	writeJSON(w, status, body)

	s.requests.WithLabelValues(strconv.Itoa(status)).Inc()
	s.duration.Observe(time.Since(start).Seconds())
}

func (s *Server) chat(r *http.Request, log zerolog.Logger) (int, any) {
	var req chatRequest
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		log.Error().Msg("request is not JSON")
		return fail(http.StatusBadRequest, msgInvalidJSON)
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		log.Error().Err(err).Msg("decode chat request")
		return fail(http.StatusBadRequest, msgInvalidJSON)
	}
	if req.Message == "" {
		log.Error().Msg("empty message")
		return fail(http.StatusBadRequest, msgEmptyMessage)
	}

	log.Info().Str("message", logging.Preview(req.Message, 50)).Msg("processing chat request")
	reply, err := s.generator.Generate(r.Context(), req.Message)
	switch {
	case err == nil:
		log.Info().Msg("generated response")
		return http.StatusOK, chatResponse{Response: reply, Status: "success"}
	case errors.Is(err, advisor.ErrUnauthorized):
		log.Error().Err(err).Msg("upstream authentication failed")
		return fail(http.StatusUnauthorized, msgInvalidKey)
	case errors.Is(err, advisor.ErrRateLimited):
		log.Error().Err(err).Msg("upstream rate limit")
		return fail(http.StatusTooManyRequests, msgRateLimited)
	case errors.Is(err, advisor.ErrUpstream), errors.Is(err, advisor.ErrEmptyReply):
		log.Error().Err(err).Msg("upstream api error")
		return fail(http.StatusServiceUnavailable, msgAPIError)
	default:
		log.Error().Err(err).Msg("unexpected chat error")
		return fail(http.StatusInternalServerError, msgInternal)
	}
}

func fail(status int, msg string) (int, any) {
	return status, errorResponse{Error: msg, Status: "fail"}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
