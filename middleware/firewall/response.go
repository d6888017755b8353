package firewall

import (
	"io"
	"net/http"
)

const (
	bodyDenied      = "Unauthorized bot access"
	bodyRateLimited = "Too Many Requests"
	bodyUnavailable = "Service Unavailable"

	// respostas do firewall nunca vão para cache compartilhado
	cacheControlPrivate = "private, no-cache, no-store, must-revalidate, s-maxage=0"
)

func privateNoStore(h http.Header) {
	h.Set("Cache-Control", cacheControlPrivate)
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "0")
}

func writeText(w http.ResponseWriter, status int, body string) {
	h := w.Header()
	privateNoStore(h)
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Del("Content-Length")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

// statusWriter repassa direto e guarda o status, para a telemetria.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (s *statusWriter) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusWriter) Write(p []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(p)
}

func (s *statusWriter) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *statusWriter) Unwrap() http.ResponseWriter { return s.ResponseWriter }

func (s *statusWriter) Status() int {
	if s.status == 0 {
		return http.StatusOK
	}
	return s.status
}

// gatedWriter retém só status e headers. No primeiro WriteHeader (ou Write/Flush)
// a fase pós-resposta decide: ou a resposta segue e o corpo passa direto, ou o
// firewall escreve a própria resposta e o corpo da aplicação é descartado.
type gatedWriter struct {
	w      http.ResponseWriter
	header http.Header
	// decide devolve true quando já escreveu uma resposta substituta em w.
	decide func(status int) bool

	status   int
	replaced bool
}

func newGatedWriter(w http.ResponseWriter, decide func(status int) bool) *gatedWriter {
	return &gatedWriter{w: w, header: make(http.Header), decide: decide}
}

func (g *gatedWriter) Header() http.Header {
	if g.status != 0 && !g.replaced {
		return g.w.Header()
	}
	return g.header
}

func (g *gatedWriter) WriteHeader(code int) {
	if g.status != 0 {
		return
	}
	// 1xx informativo não é a resposta final
	if code >= 100 && code < 200 && code != http.StatusSwitchingProtocols {
		g.copyHeader()
		g.w.WriteHeader(code)
		return
	}
	g.status = code
	if g.decide(code) {
		g.replaced = true
		return
	}
	g.copyHeader()
	g.w.WriteHeader(code)
}

func (g *gatedWriter) copyHeader() {
	dst := g.w.Header()
	for k, v := range g.header {
		dst[k] = v
	}
}

func (g *gatedWriter) Write(p []byte) (int, error) {
	if g.status == 0 {
		g.WriteHeader(http.StatusOK)
	}
	if g.replaced {
		return len(p), nil
	}
	return g.w.Write(p)
}

func (g *gatedWriter) Flush() {
	if g.status == 0 {
		g.WriteHeader(http.StatusOK)
	}
	if g.replaced {
		return
	}
	if f, ok := g.w.(http.Flusher); ok {
		f.Flush()
	}
}

func (g *gatedWriter) Unwrap() http.ResponseWriter { return g.w }

// finish fecha handlers que não escreveram nada (200 implícito).
func (g *gatedWriter) finish() {
	if g.status == 0 {
		g.WriteHeader(http.StatusOK)
	}
}
