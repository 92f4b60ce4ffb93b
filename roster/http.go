package roster

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/ETS-Next-Gen/writing-observer-sub002/errors"
)

// HTTPConfig points the roster at a JSON endpoint answering
//
//	GET <base_url><path>  ->  {"students": [{"user_id": "s1", ...}, ...]}
//
// where path contains a {course_id} placeholder.
type HTTPConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Path      string        `mapstructure:"path"`
	Token     string        `mapstructure:"token"`
	Timeout   time.Duration `mapstructure:"timeout"`
	Retries   int           `mapstructure:"retries"`
	RetryWait time.Duration `mapstructure:"retry_wait"`
}

func (c *HTTPConfig) applyDefaults() {
	if c.Path == "" {
		c.Path = "/courses/{course_id}/students"
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.RetryWait <= 0 {
		c.RetryWait = 200 * time.Millisecond
	}
}

// HTTPSource fetches rosters from a roster service.
type HTTPSource struct {
	client *resty.Client
	path   string
}

// NewHTTPSource builds a source over cfg. Transport failures and 5xx
// answers are retried cfg.Retries times.
func NewHTTPSource(cfg HTTPConfig) *HTTPSource {
	cfg.applyDefaults()
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.Retries).
		SetRetryWaitTime(cfg.RetryWait).
		SetHeader("Accept", "application/json").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})
	if cfg.Token != "" {
		client.SetAuthToken(cfg.Token)
	}
	return &HTTPSource{client: client, path: cfg.Path}
}

// Students fetches the course's students sorted by user_id.
func (s *HTTPSource) Students(ctx context.Context, courseID string) ([]map[string]any, error) {
	if err := validCourseID(courseID); err != nil {
		return nil, err
	}

	var body rosterFile
	resp, err := s.client.R().
		SetContext(ctx).
		SetPathParam("course_id", courseID).
		SetResult(&body).
		Get(s.path)
	switch {
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case err != nil:
		return nil, errors.ServiceUnavailable("roster").WithCause(err)
	case resp.StatusCode() == http.StatusNotFound:
		return nil, errors.NotFound("course", courseID)
	case resp.IsError():
		return nil, errors.ServiceUnavailable("roster").
			WithDetail("status", resp.StatusCode()).
			WithCause(fmt.Errorf("GET %s: %s", resp.Request.URL, resp.Status()))
	}

	if err := normalize(body.Students); err != nil {
		return nil, fmt.Errorf("roster: course %s: %w", courseID, err)
	}
	return body.Students, nil
}
