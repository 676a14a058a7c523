package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"
)

const (
	headerBlobType  = "x-ms-blob-type"
	headerRequestID = "x-ms-client-request-id"
	headerVersion   = "x-ms-version"
	headerErrorCode = "x-ms-error-code"

	blobTypeAppend       = "AppendBlob"
	errCodeInvalidType   = "InvalidBlobType"
	appendBlockQueryPart = "comp=appendblock"
)

// AzureAppendBlob appends to an Azure Storage append blob addressed by a
// pre-signed (SAS) URL. The token in the URL is treated as opaque.
type AzureAppendBlob struct {
	client     *http.Client
	createURL  string
	appendURL  string
	apiVersion string
	logger     *log.Logger

	mu      sync.Mutex
	created bool
}

var _ Appender = (*AzureAppendBlob)(nil)

type AzureOptions struct {
	HTTPClient *http.Client
	APIVersion string // optional x-ms-version header
	Logger     *log.Logger
}

func NewAzureAppendBlob(endpoint string, opts AzureOptions) (*AzureAppendBlob, error) {
	u, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q is not an absolute http(s) URL", ErrInvalidEndpoint, endpoint)
	}
	if strings.Trim(u.Path, "/") == "" {
		return nil, fmt.Errorf("%w: %q has no blob path", ErrInvalidEndpoint, endpoint)
	}

	client := opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	createURL := u.String()
	appendURL := *u
	if appendURL.RawQuery == "" {
		appendURL.RawQuery = appendBlockQueryPart
	} else {
		appendURL.RawQuery += "&" + appendBlockQueryPart
	}

	return &AzureAppendBlob{
		client:     client,
		createURL:  createURL,
		appendURL:  appendURL.String(),
		apiVersion: strings.TrimSpace(opts.APIVersion),
		logger:     logger,
	}, nil
}

// Create issues the one-time PUT that makes the blob an append blob. After a
// successful call further calls are no-ops.
func (a *AzureAppendBlob) Create(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.created {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, a.createURL, http.NoBody)
	if err != nil {
		return fmt.Errorf("build create request: %w", err)
	}
	req.Header.Set(headerBlobType, blobTypeAppend)
	a.setCommonHeaders(req)

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("create append blob: %w", err)
	}
	defer drainAndClose(resp.Body)

	code := resp.Header.Get(headerErrorCode)
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
	case resp.StatusCode == http.StatusConflict && code != errCodeInvalidType:
		a.logger.Printf("[azure] append blob already exists (%s), reusing", code)
	default:
		return &StatusError{Op: "create append blob", StatusCode: resp.StatusCode, Code: code}
	}

	a.created = true
	return nil
}

// Created reports whether Create has succeeded.
func (a *AzureAppendBlob) Created() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.created
}

func (a *AzureAppendBlob) Append(ctx context.Context, chunk []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, a.appendURL, bytes.NewReader(chunk))
	if err != nil {
		return fmt.Errorf("build append request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	a.setCommonHeaders(req)

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("append block: %w", err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Op: "append block", StatusCode: resp.StatusCode, Code: resp.Header.Get(headerErrorCode)}
	}
	return nil
}

func (a *AzureAppendBlob) setCommonHeaders(req *http.Request) {
	req.Header.Set(headerRequestID, uuid.NewString())
	if a.apiVersion != "" {
		req.Header.Set(headerVersion, a.apiVersion)
	}
}

func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 64<<10))
	_ = body.Close()
}
