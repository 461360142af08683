package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/vkurennov/medarchive/internal/core/domain"
	"github.com/vkurennov/medarchive/internal/infrastructure/resilience"
)

// Fetcher downloads inbound files from the messaging channel's file servers.
type Fetcher struct {
	client   *resty.Client
	maxSize  int64
	executor *resilience.Executor
}

type Options struct {
	Timeout            time.Duration
	RetryCount         int
	MaxSize            int64
	ResilienceExecutor *resilience.Executor
}

func New(options Options) *Fetcher {
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	retries := options.RetryCount
	if retries <= 0 {
		retries = 2
	}
	// With an executor the retry policy lives there, not in the transport.
	if options.ResilienceExecutor != nil {
		retries = 0
	}
	maxSize := options.MaxSize
	if maxSize <= 0 {
		maxSize = 32 << 20
	}

	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(retries).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second)

	return &Fetcher{client: client, maxSize: maxSize, executor: options.ResilienceExecutor}
}

func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	var body []byte
	call := func(ctx context.Context) error {
		resp, err := f.client.R().SetContext(ctx).Get(url)
		if err != nil {
			return domain.WrapError(domain.ErrTemporary, "fetch file", err)
		}
		if resp.IsError() {
			return &StatusError{StatusCode: resp.StatusCode(), Status: resp.Status()}
		}
		raw := resp.Body()
		if int64(len(raw)) > f.maxSize {
			return domain.WrapError(domain.ErrInvalidInput, "fetch file",
				fmt.Errorf("file of %d bytes exceeds limit %d", len(raw), f.maxSize))
		}
		body = raw
		return nil
	}

	var err error
	if f.executor != nil {
		err = f.executor.Execute(ctx, "fetch.download", call, classifyFetchError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, wrapTemporaryIfNeeded("fetch file", err)
	}
	return body, nil
}
