package linkcheck

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

// Tracer writes a human-readable transcript of probes. A nil *Tracer is a
// no-op.
type Tracer struct {
	out io.Writer
	mu  sync.Mutex
}

func NewTracer(out io.Writer) *Tracer {
	if out == nil {
		return nil
	}
	return &Tracer{out: out}
}

func (t *Tracer) LogRequest(href string, req *http.Request) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "\n>>> %s %s\n", req.Method, href)
	writeHeaders(&buf, req.Header)
	fmt.Fprint(t.out, buf.String())
}

func (t *Tracer) LogResponse(href string, resp *http.Response, elapsed time.Duration) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "<<< %s (%s)\n", href, elapsed.Round(time.Millisecond))
	fmt.Fprintf(&buf, "  Status: %d %s\n", resp.StatusCode, http.StatusText(resp.StatusCode))
	if resp.Request != nil && resp.Request.URL.String() != href {
		fmt.Fprintf(&buf, "  Final URL: %s\n", resp.Request.URL)
	}
	writeHeaders(&buf, resp.Header)
	fmt.Fprint(t.out, buf.String())
}

func (t *Tracer) LogError(href, msg string, elapsed time.Duration) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, "!!! %s (%s)\n  %s\n", href, elapsed.Round(time.Millisecond), msg)
}

func writeHeaders(buf *bytes.Buffer, h http.Header) {
	if len(h) == 0 {
		return
	}
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)
	buf.WriteString("  Headers:\n")
	for _, name := range names {
		fmt.Fprintf(buf, "    %s: %s\n", name, strings.Join(h[name], ", "))
	}
}
