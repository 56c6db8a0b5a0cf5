// Package lmsclient is the REST client of the upstream LMS: it fetches
// papers and student records and delivers submissions. It never retries;
// every retry is a deliberate user action.
package lmsclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/model"
)

// ErrNotFound is returned when the LMS answers 404.
var ErrNotFound = errors.New("lms: not found")

// APIError is a non-2xx answer from the LMS.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("lms: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("lms: %d", e.Status)
}

// Is lets errors.Is(err, ErrNotFound) match a 404 APIError.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

// envelope mirrors the LMS response envelope.
type envelope[T any] struct {
	Data  T          `json:"data"`
	Error *errorBody `json:"error,omitempty"`
}

func (e *envelope[T]) body() *errorBody { return e.Error }

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Client talks to the LMS REST API.
type Client struct {
	http *resty.Client
	log  zerolog.Logger
}

// New creates a Client for baseURL.
func New(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	hc := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetRetryCount(0)

	return &Client{
		http: hc,
		log:  log.With().Str("component", "lms_client").Logger(),
	}
}

// FetchPaper returns the ordered questions (with answer key) of a paper.
func (c *Client) FetchPaper(ctx context.Context, token, paperID string) (*model.Paper, error) {
	var out envelope[model.Paper]
	resp, err := c.request(ctx, token).
		SetPathParam("paper_id", paperID).
		SetResult(&out).
		SetError(&out).
		Get("/student/papers/{paper_id}")
	if err := c.check(resp, err, "fetch paper"); err != nil {
		return nil, err
	}
	if out.Data.ID == "" {
		out.Data.ID = paperID
	}
	return &out.Data, nil
}

// Submit delivers an attempt and returns the persisted result identifier.
func (c *Client) Submit(ctx context.Context, token string, payload model.SubmissionPayload) (*model.SubmissionReceipt, error) {
	var out envelope[model.SubmissionReceipt]
	resp, err := c.request(ctx, token).
		SetPathParam("paper_id", payload.PaperID).
		SetBody(payload).
		SetResult(&out).
		SetError(&out).
		Post("/student/papers/{paper_id}/submissions")
	if err := c.check(resp, err, "submit"); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// GetStudent returns the profile of the token's student.
func (c *Client) GetStudent(ctx context.Context, token string) (*model.Student, error) {
	var out envelope[model.Student]
	resp, err := c.request(ctx, token).
		SetResult(&out).
		SetError(&out).
		Get("/student/me")
	if err := c.check(resp, err, "get student"); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// FetchPhoto downloads a student photo. Relative URLs resolve against the
// LMS base URL.
func (c *Client) FetchPhoto(ctx context.Context, token, url string) ([]byte, error) {
	resp, err := c.request(ctx, token).
		SetHeader("Accept", "image/*").
		Get(url)
	if err := c.check(resp, err, "fetch photo"); err != nil {
		return nil, err
	}
	return resp.Body(), nil
}

// Submitter binds a token so the client can serve as a session submitter.
func (c *Client) Submitter(token string) *TokenSubmitter {
	return &TokenSubmitter{client: c, token: token}
}

// TokenSubmitter submits on behalf of one student.
type TokenSubmitter struct {
	client *Client
	token  string
}

func (s *TokenSubmitter) Submit(ctx context.Context, payload model.SubmissionPayload) (*model.SubmissionReceipt, error) {
	return s.client.Submit(ctx, s.token, payload)
}

func (c *Client) request(ctx context.Context, token string) *resty.Request {
	req := c.http.R().SetContext(ctx)
	if token != "" {
		req.SetAuthToken(token)
	}
	return req
}

func (c *Client) check(resp *resty.Response, err error, op string) error {
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !resp.IsError() {
		return nil
	}

	apiErr := &APIError{Status: resp.StatusCode()}
	if e, ok := resp.Error().(interface{ body() *errorBody }); ok && e.body() != nil {
		apiErr.Code = e.body().Code
		apiErr.Message = e.body().Message
	}

	c.log.Warn().
		Str("op", op).
		Int("status", apiErr.Status).
		Str("code", apiErr.Code).
		Str("url", resp.Request.URL).
		Msg("LMS request failed")

	return fmt.Errorf("%s: %w", op, apiErr)
}
