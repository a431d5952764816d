// Package resolve turns a streamer id into the connection coordinates of
// their live chat room via the player live API.
package resolve

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/injooinjoo/streaming-agent/internal/v1/metrics"
)

// DefaultEndpoint is the production player live API.
const DefaultEndpoint = "https://live.sooplive.co.kr/afreeca/player_live_api.php"

const defaultTimeout = 15 * time.Second

// ErrNotLive reports a streamer who is not currently broadcasting. It is a
// routine outcome, not a fault, and callers typically retry later.
var ErrNotLive = errors.New("streamer is not live")

// Error wraps a failed resolve attempt with the streamer it was for.
type Error struct {
	StreamerID string
	Err        error
}

func (e *Error) Error() string { return fmt.Sprintf("resolve %s: %v", e.StreamerID, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// LiveDetail is the resolved coordinate set for one live broadcast. It is
// immutable for the lifetime of a session; reconnecting means resolving
// again.
type LiveDetail struct {
	// Live mirrors the API's RESULT flag.
	Live bool
	// ChatDomain is the chat host, already lowercased.
	ChatDomain string
	// ChatPort is the advertised port. The WebSocket endpoint listens on
	// ChatPort+1; use WebsocketURL rather than adding the offset by hand.
	ChatPort int
	// ChatNo is the opaque room number used in the join payload.
	ChatNo       string
	StreamerID   string
	StreamerNick string
	Title        string
	// FTK and BPS are carried for consumers; the chat session ignores them.
	FTK string
	BPS int
	// Locale hints, passed through untouched.
	GeoCC           string
	GeoRC           string
	AcceptLanguage  string
	ServiceLanguage string
	// ViewPresets is the quality preset list, kept opaque.
	ViewPresets json.RawMessage
}

// WebsocketURL builds the chat endpoint for this broadcast. The path uses
// the streamer id, not the chat room number.
func (d *LiveDetail) WebsocketURL(streamerID string) string {
	return fmt.Sprintf("wss://%s:%d/Websocket/%s", d.ChatDomain, d.ChatPort+1, streamerID)
}

// The live API is loose with scalar types: numeric fields arrive as JSON
// numbers or digit strings depending on the endpoint revision, and CHATNO
// flips between string and number. flexInt and flexString accept both.

type flexInt int

func (v *flexInt) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" {
		*v = 0
		return nil
	}
	if len(s) > 0 && s[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
	}
	if s == "" {
		*v = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("numeric field %q: %w", s, err)
	}
	*v = flexInt(n)
	return nil
}

type flexString string

func (v *flexString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*v = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = flexString(s)
		return nil
	}
	*v = flexString(data)
	return nil
}

type channelDoc struct {
	Result          flexInt         `json:"RESULT"`
	ChatDomain      string          `json:"CHDOMAIN"`
	ChatPort        flexInt         `json:"CHPT"`
	ChatNo          flexString      `json:"CHATNO"`
	StreamerID      string          `json:"BJID"`
	StreamerNick    string          `json:"BJNICK"`
	Title           string          `json:"TITLE"`
	FTK             string          `json:"FTK"`
	BPS             flexInt         `json:"BPS"`
	GeoCC           string          `json:"geo_cc"`
	GeoRC           string          `json:"geo_rc"`
	AcceptLanguage  string          `json:"acpt_lang"`
	ServiceLanguage string          `json:"svc_lang"`
	ViewPresets     json.RawMessage `json:"VIEWPRESET"`
}

type liveResponse struct {
	Channel channelDoc `json:"CHANNEL"`
}

// Resolver queries the player live API.
type Resolver struct {
	endpoint string
	client   *http.Client
	tracer   trace.Tracer
}

// NewResolver builds a resolver. endpoint "" selects DefaultEndpoint and a
// nil client selects a default with a request timeout; pass a client to
// control TLS, proxies, or timeouts.
func NewResolver(endpoint string, client *http.Client) *Resolver {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &Resolver{
		endpoint: endpoint,
		client:   client,
		tracer:   otel.Tracer("github.com/injooinjoo/streaming-agent/internal/v1/resolve"),
	}
}

// Resolve fetches the live detail for a streamer. It returns ErrNotLive
// (wrapped in *Error) when the streamer is offline; every other failure is
// a request, status, or decode error. Exactly one resolve happens per
// session.
func (r *Resolver) Resolve(ctx context.Context, streamerID string) (*LiveDetail, error) {
	ctx, span := r.tracer.Start(ctx, "resolve.live_detail",
		trace.WithAttributes(attribute.String("streamer_id", streamerID)))
	defer span.End()

	start := time.Now()
	detail, err := r.fetch(ctx, streamerID)
	metrics.ResolveDuration.Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		metrics.ResolveRequests.WithLabelValues("ok").Inc()
		span.SetAttributes(attribute.String("chat_domain", detail.ChatDomain))
		return detail, nil
	case errors.Is(err, ErrNotLive):
		metrics.ResolveRequests.WithLabelValues("not_live").Inc()
		span.SetStatus(otelcodes.Error, "not live")
		return nil, &Error{StreamerID: streamerID, Err: err}
	default:
		metrics.ResolveRequests.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, "resolve failed")
		return nil, &Error{StreamerID: streamerID, Err: err}
	}
}

func (r *Resolver) fetch(ctx context.Context, streamerID string) (*LiveDetail, error) {
	form := url.Values{
		"bid":           {streamerID},
		"bno":           {""},
		"type":          {"live"},
		"confirm_adult": {"false"},
		"player_type":   {"html5"},
		"mode":          {"landing"},
		"from_api":      {"0"},
		"pwd":           {""},
		"stream_type":   {"common"},
		"quality":       {"HD"},
	}

	endpoint := r.endpoint + "?bjid=" + url.QueryEscape(streamerID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("live api request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("live api status %d", resp.StatusCode)
	}

	var doc liveResponse
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode live api response: %w", err)
	}

	ch := doc.Channel
	if ch.Result == 0 {
		return nil, ErrNotLive
	}

	return &LiveDetail{
		Live:            true,
		ChatDomain:      strings.ToLower(ch.ChatDomain),
		ChatPort:        int(ch.ChatPort),
		ChatNo:          string(ch.ChatNo),
		StreamerID:      ch.StreamerID,
		StreamerNick:    ch.StreamerNick,
		Title:           ch.Title,
		FTK:             ch.FTK,
		BPS:             int(ch.BPS),
		GeoCC:           ch.GeoCC,
		GeoRC:           ch.GeoRC,
		AcceptLanguage:  ch.AcceptLanguage,
		ServiceLanguage: ch.ServiceLanguage,
		ViewPresets:     ch.ViewPresets,
	}, nil
}
