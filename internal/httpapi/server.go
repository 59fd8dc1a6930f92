package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/mohamed-oubenma/smarTube/internal/keypool"
	"github.com/mohamed-oubenma/smarTube/internal/service"
	"github.com/mohamed-oubenma/smarTube/internal/transcript"
)

type actionRunner interface {
	Actions(ctx context.Context) ([]service.Action, error)
	SaveActions(ctx context.Context, actions []service.Action) ([]service.Action, error)
	RunAction(ctx context.Context, actionID, videoURL, labelOverride string) (service.ActionResult, error)
	AskQuestion(ctx context.Context, videoURL, question string) (string, error)
}

type transcriptSource interface {
	GetOrFetch(ctx context.Context, videoURL string, forceRefresh bool) (*transcript.Data, error)
}

// Server is the local HTTP API the panel and options UI talk to.
type Server struct {
	runner      actionRunner
	transcripts transcriptSource
	keys        *keypool.Manager

	mux    *http.ServeMux
	server *http.Server
}

type Option func(*Server)

// WithKeyManager enables the credential-management endpoints.
func WithKeyManager(keys *keypool.Manager) Option {
	return func(s *Server) {
		s.keys = keys
	}
}

func NewServer(runner actionRunner, transcripts transcriptSource, opts ...Option) *Server {
	s := &Server{
		runner:      runner,
		transcripts: transcripts,
		mux:         http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/actions", s.handleActions)
	s.mux.HandleFunc("/api/actions/run", s.handleRunAction)
	s.mux.HandleFunc("/api/questions", s.handleQuestion)
	s.mux.HandleFunc("/api/transcript", s.handleTranscript)
	s.mux.HandleFunc("/api/keys", s.handleKeys)
	s.mux.HandleFunc("/api/keys/", s.handleKeyByID)
	s.mux.HandleFunc("/api/healthz", s.handleHealthz)
}
