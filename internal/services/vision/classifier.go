// Package vision forwards waste images to an external classification service.
package vision

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"time"

	"WasteFlow/internal/domain/models"
	pkghttp "WasteFlow/pkg/http"
	"WasteFlow/pkg/logger"
)

var ErrEmptyImage = errors.New("empty image")

// Classifier posts the image as multipart/form-data field "file" and expects
// {"class": "...", "confidence": 0.0} back.
type Classifier struct {
	url      string
	attempts int
	client   *pkghttp.Client
	log      *logger.Logger
}

type Option func(*Classifier)

func WithClient(c *pkghttp.Client) Option {
	return func(cl *Classifier) { cl.client = c }
}

func WithLogger(l *logger.Logger) Option {
	return func(cl *Classifier) { cl.log = l }
}

// WithRetries sets how many times a request is tried. Client errors (4xx) are not retried.
func WithRetries(attempts int) Option {
	return func(cl *Classifier) { cl.attempts = attempts }
}

func New(url string, opts ...Option) *Classifier {
	c := &Classifier{url: url, attempts: 1}
	for _, opt := range opts {
		opt(c)
	}
	if c.client == nil {
		c.client = pkghttp.NewClient()
	}
	if c.log == nil {
		c.log = logger.Nop()
	}
	if c.attempts < 1 {
		c.attempts = 1
	}
	return c
}

func (c *Classifier) Classify(ctx context.Context, image []byte, filename string) (models.Classification, error) {
	var out models.Classification
	if len(image) == 0 {
		return out, ErrEmptyImage
	}
	if filename == "" {
		filename = "upload.jpg"
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", filepath.Base(filename))
	if err != nil {
		return out, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return out, fmt.Errorf("write form file: %w", err)
	}
	if err := w.Close(); err != nil {
		return out, fmt.Errorf("close multipart: %w", err)
	}

	err = c.post(ctx, w.FormDataContentType(), body.Bytes(), &out)
	if err != nil {
		c.log.Warn("classification request failed", logger.String("url", c.url), logger.Error(err))
		return models.Classification{}, fmt.Errorf("classify image: %w", err)
	}
	c.log.Debug("image classified",
		logger.String("class", out.Class),
		logger.Float64("confidence", out.Confidence))
	return out, nil
}

func (c *Classifier) post(ctx context.Context, contentType string, body []byte, dest *models.Classification) error {
	for i := 1; ; i++ {
		err := c.client.SendAndParse(ctx, &pkghttp.RequestOptions{
			Method:  http.MethodPost,
			URL:     c.url,
			Headers: map[string]string{"Content-Type": contentType},
			Body:    body,
		}, dest)
		if err == nil || !retryable(err) || i >= c.attempts {
			return err
		}
		select {
		case <-time.After(time.Duration(i) * 50 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func retryable(err error) bool {
	var se *pkghttp.StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= 500
	}
	return true
}
