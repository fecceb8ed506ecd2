// Package books posts and deletes recommendations through the gateway.
// Listing goes through the feed package; this covers the write side.
package books

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"bookworm/internal/gateway"
	"bookworm/pkg/domain"
)

var (
	// ErrMissingFields indicates required fields were empty; no network call
	// is made.
	ErrMissingFields = errors.New("all fields are required")
	// ErrInvalidRating indicates a rating outside 1..5.
	ErrInvalidRating = errors.New("rating must be between 1 and 5")
)

// Client performs book write operations.
type Client struct {
	gw *gateway.Gateway
}

// NewClient constructs a book operations client.
func NewClient(gw *gateway.Gateway) *Client {
	return &Client{gw: gw}
}

// CreateInput describes a new recommendation. Rating is 1-based, 1 through 5
// inclusive. Image is read fully and sent as a multipart file part.
type CreateInput struct {
	Title       string
	Description string
	Rating      int
	ImageName   string
	Image       io.Reader
}

func (in CreateInput) validate() error {
	if strings.TrimSpace(in.Title) == "" || strings.TrimSpace(in.Description) == "" || in.Image == nil {
		return ErrMissingFields
	}
	if in.Rating < 1 || in.Rating > 5 {
		return ErrInvalidRating
	}
	return nil
}

// Create posts a recommendation as a multipart form.
func (c *Client) Create(ctx context.Context, in CreateInput) (domain.Book, error) {
	if err := in.validate(); err != nil {
		return domain.Book{}, err
	}
	name := strings.TrimSpace(in.ImageName)
	if name == "" {
		name = "upload.jpg"
	}
	form := gateway.NewForm().
		AddField("title", strings.TrimSpace(in.Title)).
		AddField("description", strings.TrimSpace(in.Description)).
		AddField("rating", strconv.Itoa(in.Rating)).
		AddFile("image", name, in.Image)

	var created domain.Book
	if err := c.gw.DoJSON(ctx, http.MethodPost, "/books", form, &created); err != nil {
		return domain.Book{}, err
	}
	return created, nil
}

// InlineInput is the JSON deployment variant of CreateInput: the image is
// embedded as a base64 data URI instead of a multipart part.
type InlineInput struct {
	Title        string
	Description  string
	Rating       int
	ImageDataURI string
}

// CreateInline posts a recommendation as JSON with an embedded image.
func (c *Client) CreateInline(ctx context.Context, in InlineInput) (domain.Book, error) {
	if strings.TrimSpace(in.Title) == "" || strings.TrimSpace(in.Description) == "" || strings.TrimSpace(in.ImageDataURI) == "" {
		return domain.Book{}, ErrMissingFields
	}
	if in.Rating < 1 || in.Rating > 5 {
		return domain.Book{}, ErrInvalidRating
	}
	payload := map[string]any{
		"title":       strings.TrimSpace(in.Title),
		"description": strings.TrimSpace(in.Description),
		"rating":      in.Rating,
		"image":       in.ImageDataURI,
	}
	var created domain.Book
	if err := c.gw.DoJSON(ctx, http.MethodPost, "/books", payload, &created); err != nil {
		return domain.Book{}, err
	}
	return created, nil
}

// Delete removes a recommendation by id.
func (c *Client) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrMissingFields
	}
	return c.gw.DoJSON(ctx, http.MethodDelete, "/books/"+id, nil, nil)
}

// EncodeImage builds a data URI for CreateInline from raw image bytes.
func EncodeImage(mimeType string, data []byte) string {
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	return fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data))
}
