package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"marketpay/internal/config"

	"github.com/cenkalti/backoff/v4"
)

const defaultTimeout = 15 * time.Second

// StatusError 渠道返回非 2xx
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status=%d, body=%s", ErrProviderStatus.Error(), e.Code, e.Body)
}

func (e *StatusError) Unwrap() error {
	return ErrProviderStatus
}

func isNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}

// client 渠道 HTTP 调用的公共部分：超时、鉴权头、JSON 编解码
type client struct {
	baseURL string
	timeout time.Duration
	headers map[string]string
	http    *http.Client
}

func newClient(cfg config.ProviderConfig, headers map[string]string) *client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: timeout,
		headers: headers,
		http:    &http.Client{},
	}
}

func (c *client) do(ctx context.Context, method, path string, in, out interface{}) error {
	if c.baseURL == "" {
		return ErrNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("序列化请求失败: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("请求渠道失败: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("读取渠道响应失败: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode, Body: string(raw)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("解析渠道响应失败: %w", err)
	}
	return nil
}

// get 查询类请求可以安全重试，5xx 和网络错误退避后再试，4xx 直接返回
func (c *client) get(ctx context.Context, path string, out interface{}) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxElapsedTime = c.timeout

	return backoff.Retry(func() error {
		err := c.do(ctx, http.MethodGet, path, nil, out)
		var se *StatusError
		if errors.As(err, &se) && se.Code < http.StatusInternalServerError {
			return backoff.Permanent(err)
		}
		if errors.Is(err, ErrNotConfigured) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(b, 2), ctx))
}

func (c *client) post(ctx context.Context, path string, in, out interface{}) error {
	return c.do(ctx, http.MethodPost, path, in, out)
}
