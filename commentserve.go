package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/drewp/commentserve/comments"
	"github.com/drewp/commentserve/database"
	"github.com/gorilla/feeds"
	"github.com/gorilla/mux"
	"github.com/sourcegraph/sitemap"
	"go.uber.org/zap"
)

type CommentServe struct {
	config *Config
	store  *comments.Store
	log    *zap.Logger
}

type HTTPError struct {
	Err     error
	Message string
	Code    int
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

type appHandler func(http.ResponseWriter, *http.Request) error

func NewCommentServe(config *Config, store *comments.Store, log *zap.Logger) *CommentServe {
	return &CommentServe{config: config, store: store, log: log}
}

func (cs *CommentServe) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(cs.logRequests)
	r.Handle("/", cs.handler(cs.indexHandler)).Methods("GET")
	for _, public := range []bool{false, true} {
		prefix := ""
		if public {
			prefix = "/public"
		}
		r.Handle(prefix+"/comments", cs.handler(cs.commentsHandler(public))).Methods("GET")
		r.Handle(prefix+"/comments", cs.handler(cs.postHandler(public))).Methods("POST")
		r.Handle(prefix+"/commentCount", cs.handler(cs.countHandler(public))).Methods("GET")
	}
	r.Handle("/comments.xml", cs.handler(cs.feedHandler)).Methods("GET")
	r.Handle("/sitemap.xml", cs.handler(cs.sitemapHandler)).Methods("GET")
	r.Handle("/classify", cs.handler(cs.classifyHandler)).Methods("POST")
	return r
}

func (cs *CommentServe) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              cs.config.Server,
		Handler:           cs.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		cs.log.Info("starting server", zap.String("addr", srv.Addr))
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdown)
	cs.store.Wait()
	return err
}

type handler struct {
	fn  appHandler
	log *zap.Logger
}

func (cs *CommentServe) handler(fn appHandler) http.Handler {
	return handler{fn: fn, log: cs.log}
}

func (h handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	err := h.fn(w, r)
	if err == nil {
		return
	}
	he := httpError(err)
	if he.Code >= http.StatusInternalServerError {
		h.log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	http.Error(w, he.Message, he.Code)
}

// httpError maps store errors to responses.
func httpError(err error) *HTTPError {
	var he *HTTPError
	if errors.As(err, &he) {
		if he.Message == "" {
			he.Message = http.StatusText(he.Code)
		}
		return he
	}
	switch {
	case errors.Is(err, comments.ErrValidation), errors.Is(err, comments.ErrSpam):
		return &HTTPError{Err: err, Message: err.Error(), Code: http.StatusBadRequest}
	case errors.Is(err, comments.ErrAbuse):
		return &HTTPError{Err: err, Message: err.Error(), Code: http.StatusForbidden}
	case errors.Is(err, comments.ErrThrottled):
		return &HTTPError{Err: err, Message: "Please wait before posting again", Code: http.StatusTooManyRequests}
	}
	return &HTTPError{Err: err, Message: http.StatusText(http.StatusInternalServerError), Code: http.StatusInternalServerError}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (cs *CommentServe) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		cs.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("took", time.Since(start)))
	})
}

func (cs *CommentServe) agent(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(cs.config.AgentHeader))
}

func postParam(r *http.Request) string {
	if p := r.FormValue("post"); p != "" {
		return p
	}
	return r.FormValue("uri")
}

func plain(w http.ResponseWriter, format string, args ...interface{}) error {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

func (cs *CommentServe) indexHandler(w http.ResponseWriter, r *http.Request) error {
	return plain(w, "commentserve")
}

func (cs *CommentServe) commentsHandler(public bool) appHandler {
	return func(w http.ResponseWriter, r *http.Request) error {
		start := time.Now()
		post := postParam(r)
		if post == "" {
			return &HTTPError{Message: "need 'uri' param", Code: http.StatusBadRequest}
		}
		agent := cs.agent(r)
		if agent == "" && !public {
			return plain(w, "Must login to see comments")
		}

		queryStart := time.Now()
		rows, err := cs.store.ListComments(r.Context(), post, comments.Options{})
		if err != nil {
			return err
		}
		queryTime := time.Since(queryStart)

		s := NewSession(cs.config)
		s.Set("IncludeJs", r.FormValue("js") != "" && r.FormValue("js") != "0")
		s.Set("Public", public)
		s.Set("Parent", post)
		s.Set("Rows", rows)
		if agent != "" {
			if you, ok, err := cs.store.ResolveDisplayName(r.Context(), agent); err == nil && ok {
				s.Set("You", you)
			}
		}
		var buf bytes.Buffer
		if err := s.render(&buf, "comments.html"); err != nil {
			return err
		}
		fmt.Fprintf(&buf, "<!-- %.2f ms (%.2f ms in query) -->", ms(time.Since(start)), ms(queryTime))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, err = w.Write(buf.Bytes())
		return err
	}
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func (cs *CommentServe) postHandler(public bool) appHandler {
	return func(w http.ResponseWriter, r *http.Request) error {
		agent := cs.agent(r)
		if agent == "" && !public {
			return &HTTPError{Message: "Must login to post comments", Code: http.StatusForbidden}
		}
		ref, err := cs.store.AddComment(r.Context(), comments.Submission{
			Parent:        postParam(r),
			Caller:        comments.Caller(agent),
			Name:          r.FormValue("name"),
			Email:         r.FormValue("email"),
			Content:       r.FormValue("content"),
			Format:        r.FormValue("format"),
			SourceAddress: r.Header.Get(cs.config.ForwardedHeader),
		})
		if err != nil {
			return err
		}
		if ref.Probe {
			return plain(w, "not adding test comment")
		}
		return plain(w, "added")
	}
}

func (cs *CommentServe) countHandler(public bool) appHandler {
	return func(w http.ResponseWriter, r *http.Request) error {
		if !public && cs.agent(r) == "" {
			return plain(w, "Must login to see comments")
		}
		post := postParam(r)
		if post == "" {
			return &HTTPError{Message: "need 'post' param", Code: http.StatusBadRequest}
		}
		n, err := cs.store.CountComments(r.Context(), post)
		if err != nil {
			return err
		}
		return plain(w, "%s", countString(n))
	}
}

func countString(n int) string {
	if n == 1 {
		return "1 comment"
	}
	return fmt.Sprintf("%d comments", n)
}

func (cs *CommentServe) feedHandler(w http.ResponseWriter, r *http.Request) error {
	post := postParam(r)
	if post == "" {
		return &HTTPError{Message: "need 'post' param", Code: http.StatusBadRequest}
	}
	rows, err := cs.store.ListComments(r.Context(), post, comments.Options{})
	if err != nil {
		return err
	}
	feed := &feeds.Feed{
		Title:       cs.config.Title + ": " + post,
		Link:        &feeds.Link{Href: post},
		Description: cs.config.Description,
		Created:     time.Now(),
	}
	for i := len(rows) - 1; i >= 0; i-- {
		c := rows[i]
		author := c.CreatorName
		if author == "" {
			author = "anonymous"
		}
		feed.Items = append(feed.Items, &feeds.Item{
			Id:          c.ID,
			Title:       "Comment from " + author,
			Link:        &feeds.Link{Href: post},
			Author:      &feeds.Author{Name: author},
			Description: c.Content,
			Created:     c.Created,
		})
	}
	w.Header().Set("Content-Type", "application/rss+xml")
	return feed.WriteRss(w)
}

func (cs *CommentServe) sitemapHandler(w http.ResponseWriter, r *http.Request) error {
	threads, err := cs.store.Parents(r.Context())
	if err != nil {
		return err
	}
	var urlSet sitemap.URLSet
	for _, t := range threads {
		last := t.Last
		urlSet.URLs = append(urlSet.URLs, sitemap.URL{
			Loc:        t.Parent,
			LastMod:    &last,
			ChangeFreq: sitemap.Weekly,
			Priority:   0.5,
		})
	}
	xml, err := sitemap.Marshal(&urlSet)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/xml")
	_, err = w.Write(xml)
	return err
}

func (cs *CommentServe) classifyHandler(w http.ResponseWriter, r *http.Request) error {
	if !cs.config.isAdmin(cs.agent(r)) {
		return &HTTPError{Message: "Not allowed", Code: http.StatusForbidden}
	}
	class, err := database.ParseClass(r.FormValue("class"))
	if err != nil {
		return &HTTPError{Err: err, Message: err.Error(), Code: http.StatusBadRequest}
	}
	comment := r.FormValue("comment")
	if comment == "" {
		return &HTTPError{Message: "need 'comment' param", Code: http.StatusBadRequest}
	}
	if err := cs.store.Classify(r.Context(), comment, class); err != nil {
		return err
	}
	return plain(w, "%s is %s", comment, classString(class))
}

func classString(c database.Class) string {
	if c == database.ClassNone {
		return "unclassified"
	}
	return string(c)
}
