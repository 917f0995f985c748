// Package web serves the diagnostic dashboard: an upload form, the current
// diagnosis with its advice, a radar chart and probability table, and the
// session history.
package web

import (
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/microcosm-cc/bluemonday"
	"github.com/sdeoras/cotton/advice"
	"github.com/sdeoras/cotton/diagnosis"
	"github.com/sdeoras/cotton/session"
)

//go:embed templates static
var assets embed.FS

const cookieName = "cotton_session"

type Options struct {
	Pipeline       *diagnosis.Pipeline
	Sessions       *session.Store
	MaxUploadBytes int64
}

type Server struct {
	router    chi.Router
	pipeline  *diagnosis.Pipeline
	sessions  *session.Store
	advice    map[string]adviceView
	tmpl      *template.Template
	maxUpload int64
	now       func() time.Time
}

func New(opts Options) (*Server, error) {
	if err := advice.Validate(opts.Pipeline.Labels); err != nil {
		return nil, err
	}
	tmpl, err := template.New("").Funcs(funcs).ParseFS(assets, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	s := &Server{
		pipeline:  opts.Pipeline,
		sessions:  opts.Sessions,
		advice:    sanitizeAdvice(opts.Pipeline.Labels),
		tmpl:      tmpl,
		maxUpload: opts.MaxUploadBytes,
		now:       time.Now,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.healthz)
	r.Handle("/static/*", http.FileServer(http.FS(assets)))
	r.Get("/", s.index)
	r.Post("/diagnose", s.diagnose)
	r.Post("/history", s.record)
	r.Get("/image/{id}", s.image)
	s.router = r
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// sanitizeAdvice renders each record's markup once, keeping only inline
// emphasis.
func sanitizeAdvice(labels []string) map[string]adviceView {
	p := bluemonday.NewPolicy()
	p.AllowElements("em", "strong", "b", "i")

	out := make(map[string]adviceView, len(labels))
	for _, label := range labels {
		rec, _ := advice.Lookup(label)
		out[label] = adviceView{
			ImmediateAction:    template.HTML(p.Sanitize(rec.ImmediateAction)),
			BiologicalSolution: template.HTML(p.Sanitize(rec.BiologicalSolution)),
			ExpertNote:         template.HTML(p.Sanitize(rec.ExpertNote)),
		}
	}
	return out
}

func sessionID(r *http.Request) string {
	if c, err := r.Cookie(cookieName); err == nil {
		return c.Value
	}
	return ""
}

// existing returns the caller's session, or nil when the request carries no
// live session cookie. Read-only routes use it so that they never allocate.
func (s *Server) existing(r *http.Request) *session.Session {
	sess, ok := s.sessions.Lookup(sessionID(r))
	if !ok {
		return nil
	}
	return sess
}

// session returns the caller's session, issuing a cookie for new ones.
func (s *Server) session(w http.ResponseWriter, r *http.Request) *session.Session {
	sess, created := s.sessions.Get(sessionID(r))
	if created {
		http.SetCookie(w, &http.Cookie{
			Name:     cookieName,
			Value:    sess.ID,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return sess
}
