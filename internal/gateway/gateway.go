// Package gateway is the client for the third-party WhatsApp messaging
// gateway. Every call is keyed by the merchant credential.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// maxMediaBytes bounds downloaded inbound media.
const maxMediaBytes = 10 << 20

// InboundItem is one received message as reported by the gateway.
type InboundItem struct {
	ID      string
	Phone   string
	Message string
	URL     string
	Date    time.Time
}

// InboundPage is one page of the received-messages listing.
type InboundPage struct {
	Items    []InboundItem
	Page     int
	LastPage int
}

// HasMore reports whether pages after this one exist.
func (p *InboundPage) HasMore() bool {
	return p.Page < p.LastPage
}

// Client talks to the messaging gateway over HTTP.
type Client struct {
	baseURL string
	client  HTTPClient
}

// New creates a Client for the gateway rooted at baseURL.
func New(baseURL string, client HTTPClient) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

type inboundResponse struct {
	Status   bool          `json:"status"`
	Reason   string        `json:"reason"`
	Data     []inboundItem `json:"data"`
	Page     flexInt       `json:"page"`
	LastPage flexInt       `json:"last_page"`
}

type inboundItem struct {
	ID      flexString `json:"id"`
	Phone   string     `json:"phone"`
	Message string     `json:"message"`
	URL     string     `json:"url"`
	Date    string     `json:"date"`
}

type statusResponse struct {
	Status bool   `json:"status"`
	Reason string `json:"reason"`
}

// FetchInbound returns one page (1-based) of received messages for the
// credential.
func (c *Client) FetchInbound(ctx context.Context, credential string, page int) (*InboundPage, error) {
	q := url.Values{}
	q.Set("token", credential)
	q.Set("page", strconv.Itoa(page))

	resp, err := c.client.Do(ctx, &HTTPRequest{
		Method: http.MethodGet,
		URL:    c.baseURL + "/messages?" + q.Encode(),
	})
	if err != nil {
		return nil, fmt.Errorf("gateway: fetch inbound: %w", redactURLError(err))
	}
	if ge := ClassifyHTTPError(resp.StatusCode, string(resp.Body)); ge != nil {
		return nil, ge
	}

	var body inboundResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return nil, fmt.Errorf("gateway: decode inbound page: %w", err)
	}
	if !body.Status {
		return nil, classifyRejection(body.Reason)
	}

	out := &InboundPage{
		Items:    make([]InboundItem, 0, len(body.Data)),
		Page:     int(body.Page),
		LastPage: int(body.LastPage),
	}
	if out.Page == 0 {
		out.Page = page
	}
	for _, it := range body.Data {
		out.Items = append(out.Items, InboundItem{
			ID:      string(it.ID),
			Phone:   it.Phone,
			Message: it.Message,
			URL:     it.URL,
			Date:    ParseDate(it.Date),
		})
	}
	return out, nil
}

// SendText delivers a text message to recipient.
func (c *Client) SendText(ctx context.Context, credential, recipient, text string) error {
	q := url.Values{}
	q.Set("token", credential)
	q.Set("phone", recipient)
	q.Set("message", text)

	resp, err := c.client.Do(ctx, &HTTPRequest{
		Method: http.MethodGet,
		URL:    c.baseURL + "/send-message?" + q.Encode(),
	})
	if err != nil {
		return fmt.Errorf("gateway: send text: %w", redactURLError(err))
	}
	return checkSendResponse(resp)
}

// SendImage delivers an image with an optional caption to recipient.
func (c *Client) SendImage(ctx context.Context, credential, recipient, caption, filename string, image []byte) error {
	body, contentType, err := buildImageForm(credential, recipient, caption, filename, image)
	if err != nil {
		return fmt.Errorf("gateway: build image form: %w", err)
	}

	resp, err := c.client.Do(ctx, &HTTPRequest{
		Method:  http.MethodPost,
		URL:     c.baseURL + "/send-image",
		Headers: map[string]string{"Content-Type": contentType},
		Body:    body,
	})
	if err != nil {
		return fmt.Errorf("gateway: send image: %w", redactURLError(err))
	}
	return checkSendResponse(resp)
}

// DownloadMedia fetches the media referenced by an inbound message.
func (c *Client) DownloadMedia(ctx context.Context, mediaURL string) ([]byte, error) {
	resp, err := c.client.Do(ctx, &HTTPRequest{Method: http.MethodGet, URL: mediaURL})
	if err != nil {
		return nil, fmt.Errorf("gateway: download media: %w", redactURLError(err))
	}
	if ge := ClassifyHTTPError(resp.StatusCode, string(resp.Body)); ge != nil {
		return nil, ge
	}
	if len(resp.Body) == 0 {
		return nil, errors.New("gateway: download media: empty body")
	}
	if len(resp.Body) > maxMediaBytes {
		return nil, fmt.Errorf("gateway: download media: %d bytes exceeds limit", len(resp.Body))
	}
	return resp.Body, nil
}

func checkSendResponse(resp *HTTPResponse) error {
	if ge := ClassifyHTTPError(resp.StatusCode, string(resp.Body)); ge != nil {
		return ge
	}
	var body statusResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		// Some gateway builds answer sends with a bare "OK".
		return nil
	}
	if !body.Status {
		return classifyRejection(body.Reason)
	}
	return nil
}

func buildImageForm(credential, recipient, caption, filename string, image []byte) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := [][2]string{{"token", credential}, {"phone", recipient}, {"caption", caption}}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", err
		}
	}

	if filename == "" {
		filename = "image.png"
	}
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(image); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// redactURLError strips the query string from a transport error so the
// credential never reaches logs.
func redactURLError(err error) error {
	var ue *url.Error
	if !errors.As(err, &ue) {
		return err
	}
	redacted := ue.URL
	if i := strings.IndexByte(redacted, '?'); i >= 0 {
		redacted = redacted[:i]
	}
	return &url.Error{Op: ue.Op, URL: redacted, Err: ue.Err}
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"02-01-2006 15:04:05",
}

// ParseDate parses a gateway timestamp. Unknown formats yield the zero time.
func ParseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(sec, 0).UTC()
	}
	return time.Time{}
}

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(strings.TrimSpace(string(b)))
	if *f == "null" {
		*f = ""
	}
	return nil
}

// flexInt accepts a JSON number or a numeric string.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("invalid integer %q", s)
	}
	*f = flexInt(n)
	return nil
}
