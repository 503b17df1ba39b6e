// Package lookoutstream consumes the Lookout Mobile Risk API's
// Server-Sent-Events stream of security and audit events. It supports live
// tailing and bounded historical replay, filters by event type, and
// resumes by event id across transparent reconnects.
package lookoutstream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/canopysec/lookoutstream/auth"
	"github.com/canopysec/lookoutstream/internal/httpclient"
	"github.com/canopysec/lookoutstream/obs"
	"github.com/canopysec/lookoutstream/sse"
)

const (
	// DefaultBaseURL is the production Lookout API host.
	DefaultBaseURL = "https://api.lookout.com"

	streamPath = "/mra/stream/v2/events"

	// heartbeatEvent is the vendor keep-alive; it never reaches consumers
	// and never advances the resume cursor.
	heartbeatEvent = "heartbeat"

	defaultBaseBackoff = 1 * time.Second
	defaultMaxBackoff  = 30 * time.Second
	defaultMaxAttempts = 10
)

// phase is the session manager's connection lifecycle state.
type phase int

const (
	phaseDisconnected phase = iota
	phaseConnecting
	phaseStreaming
	phaseReconnecting
	phaseClosed
)

func (p phase) String() string {
	switch p {
	case phaseDisconnected:
		return "disconnected"
	case phaseConnecting:
		return "connecting"
	case phaseStreaming:
		return "streaming"
	case phaseReconnecting:
		return "reconnecting"
	case phaseClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// sessionState is mutated only by the goroutine driving Run. The cursor
// only ever takes values observed on decoded events; it is the sole resume
// point across reconnects.
type sessionState struct {
	lastEventID string
	failures    int
	retryHint   time.Duration
}

// Client is the stream session manager. It owns the connection lifecycle:
// connect, read, failure classification, backoff, reconnect with the
// resume cursor. One Client drives one connection at a time; Run may be
// called repeatedly (not concurrently).
type Client struct {
	creds       *auth.Provider
	httpClient  *http.Client
	baseURL     string
	logger      *slog.Logger
	backoff     backoffPolicy
	maxAttempts int
	now         func() time.Time
}

// New constructs a Client around the given credential provider.
func New(creds *auth.Provider, opts ...Option) *Client {
	c := &Client{
		creds:       creds,
		baseURL:     DefaultBaseURL,
		logger:      slog.Default(),
		backoff:     newBackoffPolicy(defaultBaseBackoff, defaultMaxBackoff),
		maxAttempts: defaultMaxAttempts,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = httpclient.NewStreaming()
	}
	return c
}

// Run opens the stream described by req and forwards matching events to
// onEvent until the context is canceled or a permanent failure occurs.
// It returns nil on cancellation and a *StreamError otherwise. Transient
// failures are retried with backoff and never surface unless the retry
// budget is exhausted.
func (c *Client) Run(ctx context.Context, req StreamRequest, onEvent func(Event)) (err error) {
	sessionID := uuid.NewString()
	ctx, recorder := obs.StartOp(ctx, "lookoutstream.Run",
		attribute.String("stream.mode", string(req.Mode)),
		attribute.String("stream.session_id", sessionID),
	)
	defer func() { recorder.End(err) }()

	log := c.logger.With("session_id", sessionID)
	disp := newDispatcher(req, onEvent, log)
	sess := &sessionState{lastEventID: req.LastEventID}

	state := phaseConnecting
	var cause error

	for {
		switch state {
		case phaseConnecting:
			resp, cerr := c.connect(ctx, req, sess)
			if cerr != nil {
				if ctx.Err() != nil {
					log.Info("stream canceled during connect")
					return nil
				}
				if !IsRetryable(cerr) {
					log.Error("stream terminated", "error", cerr)
					return WrapError(cerr, ErrConnect)
				}
				cause = cerr
				sess.retryHint = RetryAfterHint(cerr)
				state = phaseReconnecting
				continue
			}
			log.Info("stream connected", "cursor", sess.lastEventID)
			state = phaseStreaming

			serr := c.stream(ctx, resp, sess, disp, log)
			if serr == nil {
				// Only cancellation ends streaming without an error.
				log.Info("stream closed", "cursor", sess.lastEventID)
				return nil
			}
			cause = serr
			state = phaseReconnecting

		case phaseReconnecting:
			obs.RecordReconnect()
			if sess.failures >= c.maxAttempts {
				log.Error("retry budget exhausted", "attempts", sess.failures, "error", cause)
				return NewError(codeOf(cause), fmt.Sprintf("giving up after %d attempts", sess.failures),
					WithWrapped(cause))
			}
			delay := c.backoff.delay(sess.failures, sess.retryHint)
			sess.failures++
			log.Warn("reconnecting",
				"attempt", sess.failures,
				"delay", delay,
				"cursor", sess.lastEventID,
				"cause", cause)
			if !sleepCtx(ctx, delay) {
				log.Info("stream canceled during backoff")
				return nil
			}
			state = phaseConnecting

		default:
			return NewError(ErrInternal, fmt.Sprintf("unexpected session state %s", state))
		}
	}
}

// connect ensures a valid credential, builds the request with the current
// resume cursor, and opens the stream. A 401-class rejection triggers
// exactly one credential refresh before being treated as permanent.
func (c *Client) connect(ctx context.Context, req StreamRequest, sess *sessionState) (*http.Response, error) {
	start := time.Now()
	resp, err := c.dial(ctx, req, sess.lastEventID)
	if authRejected(err) {
		c.creds.Invalidate()
		resp, err = c.dial(ctx, req, sess.lastEventID)
		if authRejected(err) {
			return nil, err
		}
	}
	if err != nil {
		return nil, err
	}
	obs.RecordConnectLatency(time.Since(start))
	return resp, nil
}

func (c *Client) dial(ctx context.Context, req StreamRequest, cursor string) (*http.Response, error) {
	cred, err := c.creds.Token(ctx)
	if err != nil {
		var ae *auth.Error
		if errors.As(err, &ae) {
			return nil, NewError(ErrAuth, "credential acquisition failed",
				WithStatus(ae.Status), WithWrapped(err))
		}
		if ctx.Err() != nil {
			return nil, NewError(ErrCanceled, "canceled during credential acquisition", WithWrapped(err))
		}
		return nil, NewError(ErrAuth, "credential acquisition failed", WithWrapped(err))
	}

	endpoint := strings.TrimRight(c.baseURL, "/") + streamPath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, NewError(ErrInternal, "build stream request", WithWrapped(err))
	}
	httpReq.URL.RawQuery = req.query(cursor).Encode()
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")
	httpReq.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	if cursor != "" {
		httpReq.Header.Set("Last-Event-ID", cursor)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, NewError(ErrCanceled, "canceled during connect", WithWrapped(err))
		}
		return nil, NewError(ErrConnect, "stream connection failed",
			WithRetryable(true), WithWrapped(err))
	}

	if err := classifyResponse(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp, nil
}

// classifyResponse maps a non-streamable response onto the error taxonomy:
// 401/403 auth (refresh once, then permanent), other 4xx permanent
// validation, 5xx transient, and a non-event-stream body transient (some
// gateways serve an HTML error page with a 200).
func classifyResponse(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return NewError(ErrAuth, fmt.Sprintf("stream rejected credentials: %s", resp.Status),
			WithStatus(resp.StatusCode))
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return NewError(ErrValidation, fmt.Sprintf("stream rejected request: %s", resp.Status),
			WithStatus(resp.StatusCode))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return NewError(ErrConnect, fmt.Sprintf("stream unavailable: %s", resp.Status),
			WithStatus(resp.StatusCode), WithRetryable(true))
	}

	ct, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if ct != "" && ct != "text/event-stream" {
		return NewError(ErrConnect, fmt.Sprintf("unexpected content type %q", ct),
			WithStatus(resp.StatusCode), WithRetryable(true))
	}
	return nil
}

// stream drives the read loop for one connection. It returns nil only on
// cancellation; every other exit is a transient stream_read error for the
// reconnect path. The resume cursor advances on every decoded event, even
// ones the type filter later drops.
func (c *Client) stream(ctx context.Context, resp *http.Response, sess *sessionState, disp *dispatcher, log *slog.Logger) error {
	defer resp.Body.Close()

	dec := sse.NewDecoder(resp.Body)
	for {
		frame, err := dec.Next()
		sess.retryHint = dec.RetryHint()
		if err != nil {
			var mf *sse.MalformedFrameError
			if errors.As(err, &mf) {
				if mf.Frame.Event == heartbeatEvent {
					// Keep-alive with no payload; not worth a diagnostic.
					continue
				}
				obs.RecordMalformedFrame()
				log.Warn("skipping malformed frame", "reason", mf.Reason, "event", mf.Frame.Event, "id", mf.Frame.ID)
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			// io.EOF here is a server-initiated close; reconnect either way.
			return NewError(ErrStreamRead, "stream read failed",
				WithRetryable(true), WithRetryAfter(sess.retryHint), WithWrapped(err))
		}

		if frame.Event == heartbeatEvent {
			continue
		}

		ev, err := eventFromFrame(frame, c.now())
		if err != nil {
			obs.RecordMalformedFrame()
			log.Warn("skipping undecodable event", "id", frame.ID, "event", frame.Event, "error", err)
			continue
		}

		if ev.ID != "" {
			sess.lastEventID = ev.ID
		}
		// A decoded event proves the stream is healthy again.
		sess.failures = 0
		obs.RecordEvent(attribute.String("event.type", string(ev.Type)))
		disp.dispatch(ev)
	}
}

// sleepCtx waits for d or until the context ends. It reports whether the
// full delay elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// authRejected reports whether err is a 401/403 from the stream endpoint,
// the one auth failure that warrants a credential refresh. A rejection
// from the token endpoint itself is permanent and never refreshed.
func authRejected(err error) bool {
	var ae *auth.Error
	if errors.As(err, &ae) {
		return false
	}
	var se *StreamError
	if !errors.As(err, &se) {
		return false
	}
	return se.Code == ErrAuth &&
		(se.Status == http.StatusUnauthorized || se.Status == http.StatusForbidden)
}

func codeOf(err error) ErrorCode {
	var se *StreamError
	if errors.As(err, &se) {
		return se.Code
	}
	return ErrConnect
}
