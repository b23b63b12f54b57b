package transcriber

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"net/http/httptrace"
	"sync"
	"time"
)

type TracedClient struct {
	client *http.Client

	mu   sync.Mutex
	last *NetworkMetrics
}

func NewTracedClient() *TracedClient {
	return &TracedClient{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        4,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
				ForceAttemptHTTP2:   true,
			},
			Timeout: 2 * time.Minute,
		},
	}
}

type TracedResponse struct {
	Body       []byte
	StatusCode int
	Header     http.Header
	Metrics    *NetworkMetrics
}

type traceState struct {
	metrics                          *NetworkMetrics
	getConnStart, dnsStart, tcpStart time.Time
	tlsStart, gotConn, wroteHeaders  time.Time
	wroteRequest, firstByte          time.Time
}

func newTrace(ctx context.Context) (context.Context, *traceState) {
	st := &traceState{metrics: &NetworkMetrics{}}
	m := st.metrics
	trace := &httptrace.ClientTrace{
		GetConn: func(_ string) { st.getConnStart = time.Now() },
		GotConn: func(info httptrace.GotConnInfo) {
			st.gotConn = time.Now()
			m.ConnWait = st.gotConn.Sub(st.getConnStart)
			m.ConnReused = info.Reused
		},
		DNSStart:          func(_ httptrace.DNSStartInfo) { st.dnsStart = time.Now() },
		DNSDone:           func(_ httptrace.DNSDoneInfo) { m.DNS = time.Since(st.dnsStart) },
		ConnectStart:      func(_, _ string) { st.tcpStart = time.Now() },
		ConnectDone:       func(_, _ string, _ error) { m.TCP = time.Since(st.tcpStart) },
		TLSHandshakeStart: func() { st.tlsStart = time.Now() },
		TLSHandshakeDone: func(cs tls.ConnectionState, _ error) {
			m.TLS = time.Since(st.tlsStart)
			m.TLSProtocol = cs.NegotiatedProtocol
		},
		WroteHeaders: func() {
			st.wroteHeaders = time.Now()
			m.ReqHeaders = st.wroteHeaders.Sub(st.gotConn)
		},
		WroteRequest: func(_ httptrace.WroteRequestInfo) {
			st.wroteRequest = time.Now()
			m.ReqBody = st.wroteRequest.Sub(st.wroteHeaders)
		},
		GotFirstResponseByte: func() {
			st.firstByte = time.Now()
			m.TTFB = st.firstByte.Sub(st.wroteRequest)
		},
	}
	return httptrace.WithClientTrace(ctx, trace), st
}

func (c *TracedClient) Do(req *http.Request) (*TracedResponse, error) {
	ctx, st := newTrace(req.Context())
	req = req.WithContext(ctx)
	st.metrics.SentBytes = req.ContentLength
	reqStart := time.Now()

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	st.metrics.Download = time.Since(st.firstByte)
	st.metrics.Total = time.Since(reqStart)
	c.record(st.metrics)

	return &TracedResponse{
		Body:       body,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Metrics:    st.metrics,
	}, nil
}

func (c *TracedClient) record(m *NetworkMetrics) {
	c.mu.Lock()
	c.last = m
	c.mu.Unlock()
}

// Last returns the metrics of the most recent request, nil before the first.
func (c *TracedClient) Last() *NetworkMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// HTTPClient returns an *http.Client sharing this client's connection
// pool that traces every request it sends. Used by SDKs that take their
// own client.
func (c *TracedClient) HTTPClient() *http.Client {
	return &http.Client{
		Transport: &tracedTransport{owner: c, base: c.client.Transport},
		Timeout:   c.client.Timeout,
	}
}

type tracedTransport struct {
	owner *TracedClient
	base  http.RoundTripper
}

func (t *tracedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx, st := newTrace(req.Context())
	st.metrics.SentBytes = req.ContentLength
	start := time.Now()
	resp, err := t.base.RoundTrip(req.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	st.metrics.Total = time.Since(start)
	t.owner.record(st.metrics)
	return resp, nil
}

// Warm opens a connection to url so the first real request can reuse it.
// It returns the TLS handshake time, zero when nothing was measured.
func (c *TracedClient) Warm(url string) time.Duration {
	var tlsStart time.Time
	var tlsDuration time.Duration

	trace := &httptrace.ClientTrace{
		TLSHandshakeStart: func() { tlsStart = time.Now() },
		TLSHandshakeDone:  func(_ tls.ConnectionState, _ error) { tlsDuration = time.Since(tlsStart) },
	}

	req, err := http.NewRequest("HEAD", url, nil)
	if err != nil {
		return 0
	}
	req = req.WithContext(httptrace.WithClientTrace(req.Context(), trace))
	resp, err := c.client.Do(req)
	if err != nil {
		return 0
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return tlsDuration
}
