package resolve

import (
	"context"

	"github.com/mircov/lessongrab"
)

// stubClient serves canned documents by URL and records every fetch.
type stubClient struct {
	texts map[string]string
	calls []string
}

func newStubClient(texts map[string]string) *stubClient {
	return &stubClient{texts: texts}
}

func (c *stubClient) FetchText(ctx context.Context, url string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c.calls = append(c.calls, url)
	if text, ok := c.texts[url]; ok {
		return text, nil
	}
	return "", &lessongrab.NetworkError{URL: url, StatusCode: 404}
}

func (c *stubClient) FetchBinary(ctx context.Context, url string) ([]byte, error) {
	text, err := c.FetchText(ctx, url)
	if err != nil {
		return nil, err
	}
	return []byte(text), nil
}

func chunkURLs(chunks []Chunk) []string {
	urls := make([]string, 0, len(chunks))
	for _, c := range chunks {
		urls = append(urls, c.URL)
	}
	return urls
}
