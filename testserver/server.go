// Package testserver provides a small site for exercising link checks and
// page analysis without reaching the public demo applications.
package testserver

import (
	"fmt"
	"html/template"
	"math/rand"
	"net/http"
	"strconv"
	"time"
)

// Server is a configurable HTTP test site.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates a new test site with all endpoints configured.
func NewServer() *Server {
	s := &Server{
		mux: http.NewServeMux(),
	}
	s.registerHandlers()
	return s
}

// Handler returns the http.Handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// GET patterns also match HEAD, which is what link checks send.
func (s *Server) registerHandlers() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /status/{code}", s.handleStatus)
	s.mux.HandleFunc("GET /delay/{ms}", s.handleDelay)
	s.mux.HandleFunc("GET /redirect/{n}", s.handleRedirect)
	s.mux.HandleFunc("GET /loop", s.handleLoop)
	s.mux.HandleFunc("GET /fail-rate", s.handleFailRate)
	s.mux.HandleFunc("GET /page", s.handlePage)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `{"status":"ok"}`)
}

// handleStatus returns the specified HTTP status code.
// Example: HEAD /status/404 returns 404 Not Found
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	code, err := strconv.Atoi(r.PathValue("code"))
	if err != nil || code < 200 || code > 599 {
		http.Error(w, "invalid status code", http.StatusBadRequest)
		return
	}
	w.WriteHeader(code)
	fmt.Fprintf(w, "%d %s", code, http.StatusText(code))
}

// handleDelay waits for the specified duration before responding. It stops
// early when the client gives up.
func (s *Server) handleDelay(w http.ResponseWriter, r *http.Request) {
	ms, err := strconv.Atoi(r.PathValue("ms"))
	if err != nil || ms < 0 {
		http.Error(w, "invalid delay", http.StatusBadRequest)
		return
	}

	timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
	defer timer.Stop()
	select {
	case <-r.Context().Done():
		return
	case <-timer.C:
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "delayed %dms", ms)
}

// handleRedirect redirects n times before landing on /status/200.
// Example: GET /redirect/3 -> /redirect/2 -> /redirect/1 -> /status/200
func (s *Server) handleRedirect(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(r.PathValue("n"))
	if err != nil || n < 0 {
		http.Error(w, "invalid redirect count", http.StatusBadRequest)
		return
	}
	next := "/status/200"
	if n > 1 {
		next = "/redirect/" + strconv.Itoa(n-1)
	}
	http.Redirect(w, r, next, http.StatusFound)
}

// handleLoop redirects to itself forever.
func (s *Server) handleLoop(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/loop", http.StatusFound)
}

// handleFailRate fails a percentage of requests with 500 status.
// Example: GET /fail-rate?rate=10 fails 10% of requests
func (s *Server) handleFailRate(w http.ResponseWriter, r *http.Request) {
	rate, err := strconv.Atoi(r.URL.Query().Get("rate"))
	if err != nil || rate < 0 || rate > 100 {
		rate = 0
	}

	if rand.Intn(100) < rate {
		http.Error(w, "simulated failure", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "success")
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head><title>Scout Test Site</title></head>
<body>
<h1>Links</h1>
<ul>
{{range .}}<li><a href="{{.}}">{{.}}</a></li>
{{end}}</ul>
<form action="/status/200">
<input type="text" name="username">
<input type="password" name="password">
<button type="submit">Log In</button>
</form>
<img src="/status/200" alt="logo">
</body>
</html>
`))

// PageLinks are the hrefs rendered on /page, in order.
var PageLinks = []string{
	"/status/200",
	"/status/404",
	"/redirect/2",
	"/delay/50",
	"/loop",
}

// handlePage renders an HTML page linking to the other endpoints.
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	pageTemplate.Execute(w, PageLinks)
}
