package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxBodySize bounds how much of a response body is read.
const maxBodySize = 64 << 10

// response is a fully read HTTP response. The body is closed.
type response struct {
	Status int
	Header http.Header
	Body   []byte
}

// BodyOrStatus returns the body if there is one, otherwise the status line.
// It is meant to be used as an error message for non-200 responses.
func (r *response) BodyOrStatus() string {
	if body := strings.TrimSpace(string(r.Body)); body != "" {
		return body
	}
	return fmt.Sprintf("%v %v", r.Status, http.StatusText(r.Status))
}

func (p *Prober) do(ctx context.Context, method string, url string, header http.Header) (resp *response, err error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return
	}
	for key, values := range header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	r, err := p.client.Do(req)
	if err != nil {
		err = fmt.Errorf("failed to read from %v: %w", url, err)
		return
	}
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		err = fmt.Errorf("failed to read body from %v: %w", url, err)
		return
	}
	resp = &response{
		Status: r.StatusCode,
		Header: r.Header,
		Body:   body,
	}
	return
}
