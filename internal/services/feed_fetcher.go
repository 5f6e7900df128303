package services

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"apartel/internal/models"
	"apartel/pkg/breaker"
	apperrors "apartel/pkg/errors"
)

// FeedFetcher 拉取外部日历源
type FeedFetcher interface {
	Fetch(ctx context.Context, feed models.ICalConnection) error
}

// MockFeedFetcher 不发起网络请求，只校验上下文
type MockFeedFetcher struct{}

func (MockFeedFetcher) Fetch(ctx context.Context, feed models.ICalConnection) error {
	return ctx.Err()
}

// FeedFetcherFunc 函数适配器
type FeedFetcherFunc func(ctx context.Context, feed models.ICalConnection) error

func (f FeedFetcherFunc) Fetch(ctx context.Context, feed models.ICalConnection) error {
	return f(ctx, feed)
}

var icalMagic = []byte("BEGIN:VCALENDAR")

// HTTPFeedFetcher 通过 HTTP 拉取 iCal，按主机熔断
type HTTPFeedFetcher struct {
	client   *http.Client
	breakers *breaker.Group
}

// NewHTTPFeedFetcher 创建 HTTP 拉取器
func NewHTTPFeedFetcher(timeout time.Duration) *HTTPFeedFetcher {
	return &HTTPFeedFetcher{
		client:   &http.Client{Timeout: timeout},
		breakers: breaker.NewGroup(5, time.Minute),
	}
}

// Fetch 要求 2xx 且响应体以 BEGIN:VCALENDAR 开头
func (f *HTTPFeedFetcher) Fetch(ctx context.Context, feed models.ICalConnection) error {
	u, err := url.Parse(feed.ImportURL)
	if err != nil || u.Host == "" {
		return apperrors.Wrap(apperrors.KindExternalFetchFailed, "Invalid calendar import URL.", err)
	}

	err = f.breakers.Get(u.Host).Call(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "text/calendar")

		resp, err := f.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("unexpected status %d", resp.StatusCode)
		}

		head, _ := bufio.NewReader(resp.Body).Peek(64)
		head = bytes.TrimPrefix(head, []byte("\xef\xbb\xbf"))
		if !bytes.HasPrefix(bytes.TrimSpace(head), icalMagic) {
			return fmt.Errorf("response is not an iCalendar document")
		}
		return nil
	})
	if err != nil {
		return apperrors.Wrap(apperrors.KindExternalFetchFailed, fmt.Sprintf("Failed to fetch calendar from %s.", u.Host), err)
	}
	return nil
}
