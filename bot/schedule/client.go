// Package schedule talks to the schedule service that resolves faculties,
// courses, groups, teachers and day timetables.
package schedule

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/smartschedule/schedulebot/core/logger"
	"github.com/smartschedule/schedulebot/core/netutil"
)

const (
	component    = "schedule"
	maxBodyBytes = 2 << 20
)

var (
	// ErrNotFound is returned when the service has nothing for the request.
	ErrNotFound = errors.New("schedule: not found")
	// ErrBodyTooLarge is returned when a response exceeds maxBodyBytes.
	ErrBodyTooLarge = errors.New("schedule: response body too large")
)

// StatusError reports an unexpected HTTP status.
type StatusError struct {
	Path string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("schedule: %s returned status %d", e.Path, e.Code)
}

// Teacher is one entry of the admin export.
type Teacher struct {
	Name string `json:"teacher_name"`
	Code string `json:"teacher_code"`
}

// Options configures Client.
type Options struct {
	BaseURL       string
	WebAppBaseURL string
	Timeout       time.Duration
	// HTTPClient overrides the retrying client, mostly for tests.
	HTTPClient *http.Client
}

// Client is safe for concurrent use.
type Client struct {
	base    string
	webBase string
	http    *http.Client
}

// New builds a client for the service at opts.BaseURL.
func New(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		hc = netutil.NewHTTPClient(netutil.ClientOptions{
			Timeout:     opts.Timeout,
			RetryStatus: true,
		})
	}
	base := strings.TrimRight(opts.BaseURL, "/")
	web := strings.TrimRight(opts.WebAppBaseURL, "/")
	if web == "" {
		web = base
	}
	return &Client{base: base, webBase: web, http: hc}
}

// Faculties lists every faculty.
func (c *Client) Faculties(ctx context.Context) ([]string, error) {
	var out []string
	err := c.getJSON(ctx, "/get_faculties", nil, &out)
	return out, err
}

// Courses lists the courses of faculty.
func (c *Client) Courses(ctx context.Context, faculty string) ([]string, error) {
	var out []string
	err := c.getJSON(ctx, "/get_courses", url.Values{"faculty": {faculty}}, &out)
	return out, err
}

// Groups lists the groups of a faculty course.
func (c *Client) Groups(ctx context.Context, faculty, course string) ([]string, error) {
	var out []string
	err := c.getJSON(ctx, "/get_groups", url.Values{"faculty": {faculty}, "course": {course}}, &out)
	return out, err
}

// Day returns the formatted timetable of a group for day.
func (c *Client) Day(ctx context.Context, faculty, course, group, day string) (string, error) {
	path := "/get_day/" + url.PathEscape(faculty) + "/" + url.PathEscape(course) + "/" + url.PathEscape(group)
	return c.getText(ctx, path, url.Values{"day": {day}})
}

// TeacherDay returns the formatted timetable of a teacher for day.
func (c *Client) TeacherDay(ctx context.Context, code, day string) (string, error) {
	return c.getText(ctx, "/get_teacher_day/"+url.PathEscape(code), url.Values{"day": {day}})
}

// CheckTeacherCode validates code and returns the teacher's name when valid.
func (c *Client) CheckTeacherCode(ctx context.Context, code string) (string, bool, error) {
	body, err := json.Marshal(map[string]string{"teacher_code": code})
	if err != nil {
		return "", false, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/check_teacher_code", bytes.NewReader(body))
	if err != nil {
		return "", false, fmt.Errorf("schedule: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, raw, err := c.do(req, "/check_teacher_code")
	if err != nil {
		return "", false, err
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return "", false, &StatusError{Path: "/check_teacher_code", Code: resp.StatusCode}
	}

	var result struct {
		Status      string `json:"status"`
		TeacherName string `json:"teacher_name"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		if resp.StatusCode/100 != 2 {
			return "", false, &StatusError{Path: "/check_teacher_code", Code: resp.StatusCode}
		}
		return "", false, fmt.Errorf("schedule: decode /check_teacher_code: %w", err)
	}
	if result.Status != "success" {
		return "", false, nil
	}
	return result.TeacherName, true, nil
}

// TeachersWithCodes lists every teacher and access code.
func (c *Client) TeachersWithCodes(ctx context.Context) ([]Teacher, error) {
	var out []Teacher
	err := c.getJSON(ctx, "/get_teachers_with_codes", nil, &out)
	return out, err
}

// GroupLink is the full-schedule page of a group.
func (c *Client) GroupLink(faculty, course, group string) string {
	return c.webBase + "/" + url.PathEscape(faculty) + "/" + url.PathEscape(course) + "/" + url.PathEscape(group)
}

// TeacherLink is the full-schedule page of a teacher.
func (c *Client) TeacherLink(code string) string {
	return c.webBase + "/teacher/" + url.PathEscape(code)
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	raw, err := c.get(ctx, path, query)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("schedule: decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) getText(ctx context.Context, path string, query url.Values) (string, error) {
	raw, err := c.get(ctx, path, query)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	target := c.base + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("schedule: build request: %w", err)
	}
	resp, raw, err := c.do(req, path)
	if err != nil {
		return nil, err
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode/100 != 2:
		return nil, &StatusError{Path: path, Code: resp.StatusCode}
	}
	return raw, nil
}

func (c *Client) do(req *http.Request, path string) (*http.Response, []byte, error) {
	ctx := req.Context()
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		logger.Warn(ctx, component, "request.fail",
			slog.String("path", path),
			logger.Err(err),
			slog.Duration("duration", logger.Took(start)),
		)
		return nil, nil, fmt.Errorf("schedule: %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, nil, fmt.Errorf("schedule: read %s: %w", path, err)
	}
	if len(raw) > maxBodyBytes {
		logger.Warn(ctx, component, "request.too_large",
			slog.String("path", path),
			slog.Int("http_code", resp.StatusCode),
		)
		return nil, nil, fmt.Errorf("%w: %s over %d bytes", ErrBodyTooLarge, path, maxBodyBytes)
	}
	logger.Debug(ctx, component, "request.done",
		slog.String("path", path),
		slog.Int("http_code", resp.StatusCode),
		slog.Int("bytes", len(raw)),
		slog.Duration("duration", logger.Took(start)),
	)
	return resp, raw, nil
}
