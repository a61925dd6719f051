package document

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

const (
	defaultFetchTimeout  = 30 * time.Second
	defaultFetchMaxBytes = 5 << 20
	defaultUserAgent     = "chroma-admin/1.0 (+url-import)"
)

// ErrInvalidURL URL不合法或协议不受支持
var ErrInvalidURL = errors.New("invalid url")

// FetchOption URL抓取配置项
type FetchOption func(*fetchConfig)

type fetchConfig struct {
	timeout   time.Duration
	maxBytes  int64
	userAgent string
	client    *resty.Client
}

// WithFetchTimeout 设置抓取超时
func WithFetchTimeout(d time.Duration) FetchOption {
	return func(c *fetchConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithMaxBytes 设置响应体大小上限，超出部分被截断
func WithMaxBytes(n int64) FetchOption {
	return func(c *fetchConfig) {
		if n > 0 {
			c.maxBytes = n
		}
	}
}

// WithHTTPClient 使用自定义resty客户端
func WithHTTPClient(client *resty.Client) FetchOption {
	return func(c *fetchConfig) {
		c.client = client
	}
}

// FetchURL 下载网页并抽取标题与正文
// text/plain与markdown直接按文本处理，其余按HTML解析
func FetchURL(ctx context.Context, rawURL string, opts ...FetchOption) (*Document, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, errors.Wrapf(ErrInvalidURL, "%q", rawURL)
	}

	cfg := &fetchConfig{
		timeout:   defaultFetchTimeout,
		maxBytes:  defaultFetchMaxBytes,
		userAgent: defaultUserAgent,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.client == nil {
		cfg.client = resty.New().SetRedirectPolicy(resty.FlexibleRedirectPolicy(5))
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	resp, err := cfg.client.R().
		SetContext(ctx).
		SetHeader("User-Agent", cfg.userAgent).
		SetHeader("Accept", "text/html,text/plain;q=0.9,*/*;q=0.5").
		SetDoNotParseResponse(true).
		Get(u.String())
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch %s", u.String())
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() >= 400 {
		return nil, fmt.Errorf("failed to fetch %s: status %d", u.String(), resp.StatusCode())
	}

	reader := io.LimitReader(body, cfg.maxBytes)
	mediaType, _, _ := mime.ParseMediaType(resp.Header().Get("Content-Type"))

	doc := &Document{
		Source: u.String(),
		Meta:   map[string]string{"content_type": mediaType},
	}

	switch {
	case mediaType == "text/plain" || mediaType == "text/markdown":
		data, err := io.ReadAll(reader)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read response body")
		}
		doc.Content = normalizeText(string(data))
	default:
		page, err := extractHTML(reader)
		if err != nil {
			return nil, errors.Wrap(err, "failed to parse html")
		}
		doc.Content = page.Content
		doc.Title = page.Title
	}

	if doc.Title == "" {
		doc.Title = u.Host + u.Path
	}
	if strings.TrimSpace(doc.Content) == "" {
		return nil, fmt.Errorf("no text content found at %s", u.String())
	}
	return doc, nil
}
