package acuity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/araquach/acuity-datahub/internal/models"
)

// TransportError is any failure to fetch a page: network, non-2xx status or
// a body that is not the expected JSON array.
type TransportError struct {
	Resource   string
	Page       int
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	where := e.Resource
	if e.Page > 0 {
		where = fmt.Sprintf("%s page=%d", e.Resource, e.Page)
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("acuity %s: status=%d: %v", where, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("acuity %s: %v", where, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Filters narrows the /appointments listing.
type Filters struct {
	CalendarID string
	MinDate    time.Time
	MaxDate    time.Time
	PageSize   int
	// Canceled is passed through as the "canceled" query value; "all"
	// returns active and cancelled appointments together.
	Canceled string
}

type Client struct {
	BaseURL string
	UserID  string
	APIKey  string
	HTTP    *http.Client
	Logger  *logrus.Logger

	// MaxRetries bounds retries of one request after network errors, 429s
	// and 5xx responses.
	MaxRetries   int
	RetryInitial time.Duration
	RetryMax     time.Duration
}

func NewClient(baseURL, userID, apiKey string, timeout time.Duration, maxRetries int, lg *logrus.Logger) *Client {
	if timeout <= 0 {
		timeout = 25 * time.Second
	}
	return &Client{
		BaseURL: baseURL,
		UserID:  userID,
		APIKey:  apiKey,
		Logger:  lg,
		HTTP: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        100,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		MaxRetries:   maxRetries,
		RetryInitial: 500 * time.Millisecond,
		RetryMax:     10 * time.Second,
	}
}

func (c *Client) FetchCalendars(ctx context.Context) ([]models.AcuityCalendar, error) {
	body, err := c.get(ctx, "calendars", 0, nil)
	if err != nil {
		return nil, err
	}
	var out []models.AcuityCalendar
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, &TransportError{Resource: "calendars", Err: fmt.Errorf("decode: %w", err)}
	}
	return out, nil
}

func (c *Client) FetchAppointmentTypes(ctx context.Context) ([]models.AcuityAppointmentType, error) {
	body, err := c.get(ctx, "appointment-types", 0, nil)
	if err != nil {
		return nil, err
	}
	var out []models.AcuityAppointmentType
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, &TransportError{Resource: "appointment-types", Err: fmt.Errorf("decode: %w", err)}
	}
	return out, nil
}

// FetchAppointmentsPage fetches one page (1-based). It never loops; the
// caller decides when to stop. A record that fails to decode is returned
// with DecodeErr set so the rest of the page survives.
func (c *Client) FetchAppointmentsPage(ctx context.Context, f Filters, page int) ([]models.AcuityAppointment, error) {
	if page < 1 {
		page = 1
	}
	size := f.PageSize
	if size <= 0 {
		size = 100
	}

	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("max", strconv.Itoa(size))
	if f.CalendarID != "" {
		q.Set("calendarID", f.CalendarID)
	}
	if !f.MinDate.IsZero() {
		q.Set("minDate", f.MinDate.Format("2006-01-02"))
	}
	if !f.MaxDate.IsZero() {
		q.Set("maxDate", f.MaxDate.Format("2006-01-02"))
	}
	if f.Canceled != "" {
		q.Set("canceled", f.Canceled)
	}

	body, err := c.get(ctx, "appointments", page, q)
	if err != nil {
		return nil, err
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &TransportError{Resource: "appointments", Page: page, Err: fmt.Errorf("decode: %w", err)}
	}

	out := make([]models.AcuityAppointment, 0, len(raw))
	for _, r := range raw {
		var a models.AcuityAppointment
		if err := json.Unmarshal(r, &a); err != nil {
			var idOnly struct {
				ID models.FlexString `json:"id"`
			}
			_ = json.Unmarshal(r, &idOnly)
			a = models.AcuityAppointment{ID: idOnly.ID, DecodeErr: err}
		}
		out = append(out, a)
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, resource string, page int, q url.Values) ([]byte, error) {
	u, err := url.Parse(fmt.Sprintf("%s/%s", c.BaseURL, resource))
	if err != nil {
		return nil, &TransportError{Resource: resource, Page: page, Err: err}
	}
	if q != nil {
		u.RawQuery = q.Encode()
	}

	var body []byte
	attempt := 0
	op := func() error {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return backoff.Permanent(&TransportError{Resource: resource, Page: page, Err: err})
		}
		req.SetBasicAuth(c.UserID, c.APIKey)
		req.Header.Set("Accept", "application/json")

		resp, err := c.HTTP.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(&TransportError{Resource: resource, Page: page, Err: ctx.Err()})
			}
			return &TransportError{Resource: resource, Page: page, Err: err}
		}
		defer resp.Body.Close()

		b, readErr := io.ReadAll(resp.Body)
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			terr := &TransportError{
				Resource:   resource,
				Page:       page,
				StatusCode: resp.StatusCode,
				Err:        fmt.Errorf("body=%s", truncate(string(b), 300)),
			}
			if retryable(resp.StatusCode) {
				return terr
			}
			return backoff.Permanent(terr)
		}
		if readErr != nil {
			return &TransportError{Resource: resource, Page: page, Err: readErr}
		}
		body = b
		return nil
	}

	notify := func(err error, wait time.Duration) {
		if c.Logger != nil {
			c.Logger.Printf("🔁 acuity %s page=%d attempt %d failed (%v); retrying in %s", resource, page, attempt, err, wait)
		}
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(backoff.WithMaxRetries(c.backoff(), uint64(max(c.MaxRetries, 0))), ctx), notify); err != nil {
		var terr *TransportError
		if errors.As(err, &terr) {
			return nil, terr
		}
		return nil, &TransportError{Resource: resource, Page: page, Err: err}
	}
	return body, nil
}

func (c *Client) backoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if c.RetryInitial > 0 {
		b.InitialInterval = c.RetryInitial
	}
	if c.RetryMax > 0 {
		b.MaxInterval = c.RetryMax
	}
	b.MaxElapsedTime = 0
	return b
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
