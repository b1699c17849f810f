// Package web serves the analysis dashboard.
package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/KaramelBytes/vizloom/internal/ai"
	"github.com/KaramelBytes/vizloom/internal/dataset"
	"github.com/KaramelBytes/vizloom/internal/executor"
	"github.com/KaramelBytes/vizloom/internal/logger"
	"github.com/KaramelBytes/vizloom/internal/metrics"
	"github.com/KaramelBytes/vizloom/internal/pipeline"
	"github.com/KaramelBytes/vizloom/internal/session"
)

//go:embed templates/*.html
var templatesFS embed.FS

const (
	cookieName   = "vizloom"
	sessionIDKey = "id"
)

// RuntimeFactory builds a model runtime for the API key entered in a session.
type RuntimeFactory func(apiKey string) (ai.Runtime, error)

// Options configures the dashboard.
type Options struct {
	Addr string
	// SessionSecret signs the session cookie; a random key is generated when empty.
	SessionSecret  []byte
	SessionTTL     time.Duration
	AllowedOrigins []string
	MaxUploadBytes int64
	PreviewRows    int
	ChartWidth     int
	ChartHeight    int
	Provider       string
	Dataset        dataset.Options
	Pipeline       pipeline.Options
}

// Server is the dashboard HTTP server.
type Server struct {
	opt     Options
	runtime RuntimeFactory
	exec    executor.Executor
	store   *session.Store
	cookies *sessions.CookieStore
	rec     *metrics.Recorder
	log     *zap.Logger
	engine  *gin.Engine
}

// New wires the routes. store and rec may be shared with other components.
func New(opt Options, rf RuntimeFactory, ex executor.Executor, store *session.Store, rec *metrics.Recorder, log *zap.Logger) (*Server, error) {
	if rf == nil || ex == nil || store == nil {
		return nil, errors.New("web: runtime factory, executor and session store are required")
	}
	if opt.MaxUploadBytes <= 0 {
		opt.MaxUploadBytes = 10 << 20
	}
	if opt.PreviewRows <= 0 {
		opt.PreviewRows = 5
	}
	secret := opt.SessionSecret
	if len(secret) == 0 {
		secret = securecookie.GenerateRandomKey(32)
		if secret == nil {
			return nil, errors.New("web: could not generate session key")
		}
	}
	cookies := sessions.NewCookieStore(secret)
	cookies.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(opt.SessionTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	s := &Server{
		opt:     opt,
		runtime: rf,
		exec:    ex,
		store:   store,
		cookies: cookies,
		rec:     rec,
		log:     logger.OrNop(log),
	}

	tmpl, err := template.New("").Funcs(templateFuncs).ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLog())
	r.SetHTMLTemplate(tmpl)

	r.GET("/", s.dashboard)
	r.POST("/key", s.setKey)
	r.POST("/upload", s.upload)
	r.POST("/ask", s.ask)
	r.POST("/clear", s.clear)
	r.GET("/api/v1/history", s.history)
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "vizloom", "sessions": s.store.Len()})
	})
	r.GET("/metrics", gin.WrapH(rec.Handler()))
	s.engine = r
	return s, nil
}

// Handler returns the router wrapped in the CORS policy.
func (s *Server) Handler() http.Handler {
	if len(s.opt.AllowedOrigins) == 0 {
		return s.engine
	}
	return cors.New(cors.Options{
		AllowedOrigins:   s.opt.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
	}).Handler(s.engine)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opt.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go s.store.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("dashboard listening", zap.String("addr", s.opt.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.log.Info("shutting down dashboard")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)))
	}
}

// current resolves the visitor's session, issuing a cookie for new visitors.
func (s *Server) current(c *gin.Context) (*session.Session, *sessions.Session) {
	cs, err := s.cookies.Get(c.Request, cookieName)
	if err != nil {
		s.log.Debug("discarding invalid session cookie", zap.Error(err))
	}
	id, _ := cs.Values[sessionIDKey].(string)
	sess := s.store.GetOrCreate(id)
	if sess.ID != id {
		cs.Values[sessionIDKey] = sess.ID
		s.save(c, cs)
	}
	return sess, cs
}

func (s *Server) save(c *gin.Context, cs *sessions.Session) {
	if err := cs.Save(c.Request, c.Writer); err != nil {
		s.log.Warn("save session cookie", zap.Error(err))
	}
}

// flashRedirect stores msg for the next page view and redirects to the dashboard.
func (s *Server) flashRedirect(c *gin.Context, cs *sessions.Session, msg string) {
	if msg != "" {
		cs.AddFlash(msg)
	}
	s.save(c, cs)
	c.Redirect(http.StatusSeeOther, "/")
}
