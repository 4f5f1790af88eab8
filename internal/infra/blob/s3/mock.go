package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// NewMockForTests returns a *Store backed by an in-memory fake HTTP transport.
// Only the S3 operations required by the blob.Store interface are implemented,
// including If-Match / If-None-Match preconditions on PutObject.
func NewMockForTests() *Store {
	return newMockStore(newMockTransport(0), "")
}

func newMockStore(rt http.RoundTripper, prefix string) *Store {
	cfg, _ := config.LoadDefaultConfig(context.Background(),
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("AKIA", "SECRET", "")),
	)
	return newWithConfig(cfg, Config{Bucket: "mock-bucket", Prefix: prefix, Endpoint: "https://mock.s3.local", PathStyle: true},
		func(o *s3.Options) {
			o.HTTPClient = &http.Client{Transport: rt}
			o.RetryMaxAttempts = 1
		})
}

// mockTransport fakes a single bucket. pageSize > 0 truncates list responses
// to exercise continuation tokens.
type mockTransport struct {
	mu       sync.Mutex
	state    map[string]mockObj
	revision int
	pageSize int
	requests []*http.Request
}

type mockObj struct {
	body        []byte
	contentType string
	etag        string
	metadata    map[string]string
}

func newMockTransport(pageSize int) *mockTransport {
	return &mockTransport{state: make(map[string]mockObj), pageSize: pageSize}
}

func (m *mockTransport) RoundTrip(req *http.Request) (*http.Response, error) { //nolint:cyclop
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 2)
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}
	if req.Method == http.MethodGet && req.URL.Query().Get("list-type") == "2" {
		return m.list(req), nil
	}
	switch req.Method {
	case http.MethodHead:
		if st, ok := m.state[key]; ok {
			return respond(http.StatusOK, nil, st.headers()), nil
		}
		return respond(http.StatusNotFound, nil, http.Header{}), nil
	case http.MethodPut:
		body, _ := io.ReadAll(req.Body)
		if dec, ok := decodeChunkedLite(body); ok { // handle aws-chunked encoding
			body = dec
		}
		existing, exists := m.state[key]
		if req.Header.Get("If-None-Match") == "*" && exists {
			return errorResponse(http.StatusPreconditionFailed, "PreconditionFailed"), nil
		}
		if match := req.Header.Get("If-Match"); match != "" {
			if !exists {
				return errorResponse(http.StatusNotFound, "NoSuchKey"), nil
			}
			if match != existing.etag {
				return errorResponse(http.StatusPreconditionFailed, "PreconditionFailed"), nil
			}
		}
		m.revision++
		obj := mockObj{
			body:        body,
			contentType: req.Header.Get("Content-Type"),
			etag:        "\"rev-" + strconv.Itoa(m.revision) + "\"",
			metadata:    map[string]string{},
		}
		for h, v := range req.Header {
			if name, ok := strings.CutPrefix(strings.ToLower(h), "x-amz-meta-"); ok && len(v) > 0 {
				obj.metadata[name] = v[0]
			}
		}
		m.state[key] = obj
		return respond(http.StatusOK, nil, http.Header{"ETag": {obj.etag}}), nil
	case http.MethodGet:
		if st, ok := m.state[key]; ok {
			return respond(http.StatusOK, st.body, st.headers()), nil
		}
		return errorResponse(http.StatusNotFound, "NoSuchKey"), nil
	case http.MethodDelete:
		delete(m.state, key)
		return respond(http.StatusNoContent, nil, http.Header{}), nil
	}
	return respond(http.StatusNotImplemented, nil, http.Header{}), nil
}

func (m *mockTransport) list(req *http.Request) *http.Response {
	prefix := req.URL.Query().Get("prefix")
	after := req.URL.Query().Get("continuation-token")
	var keys []string
	for k := range m.state {
		if strings.HasPrefix(k, prefix) && k > after {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	truncated := m.pageSize > 0 && len(keys) > m.pageSize
	if truncated {
		keys = keys[:m.pageSize]
	}
	var b strings.Builder
	b.WriteString("<?xml version=\"1.0\"?><ListBucketResult>")
	fmt.Fprintf(&b, "<IsTruncated>%t</IsTruncated>", truncated)
	if truncated {
		fmt.Fprintf(&b, "<NextContinuationToken>%s</NextContinuationToken>", keys[len(keys)-1])
	}
	for _, k := range keys {
		st := m.state[k]
		fmt.Fprintf(&b, "<Contents><Key>%s</Key><Size>%d</Size><ETag>%s</ETag><LastModified>2024-01-01T00:00:00Z</LastModified></Contents>",
			k, len(st.body), strings.ReplaceAll(st.etag, "\"", "&quot;"))
	}
	b.WriteString("</ListBucketResult>")
	return respond(http.StatusOK, []byte(b.String()), http.Header{"Content-Type": {"application/xml"}})
}

func (o mockObj) headers() http.Header {
	h := http.Header{
		"Content-Length": {strconv.Itoa(len(o.body))},
		"Content-Type":   {o.contentType},
		"ETag":           {o.etag},
		"Last-Modified":  {time.Now().UTC().Format(http.TimeFormat)},
	}
	for k, v := range o.metadata {
		h.Set("X-Amz-Meta-"+k, v)
	}
	return h
}

func respond(status int, body []byte, h http.Header) *http.Response {
	return &http.Response{StatusCode: status, Body: io.NopCloser(bytes.NewReader(body)), Header: h, ContentLength: int64(len(body))}
}

func errorResponse(status int, code string) *http.Response {
	body := fmt.Sprintf("<?xml version=\"1.0\"?><Error><Code>%s</Code><Message>%s</Message></Error>", code, code)
	return respond(status, []byte(body), http.Header{"Content-Type": {"application/xml"}})
}

// decodeChunkedLite decodes a minimal single-chunk aws-chunked style payload: <hex>\r\n<body>\r\n0\r\n...
func decodeChunkedLite(b []byte) ([]byte, bool) {
	parts := strings.Split(string(b), "\r\n")
	if len(parts) < 3 {
		return nil, false
	}
	sz, perr := strconv.ParseInt(strings.SplitN(parts[0], ";", 2)[0], 16, 64)
	if perr != nil || sz <= 0 || int64(len(parts[1])) != sz || !strings.HasPrefix(parts[2], "0") {
		return nil, false
	}
	return []byte(parts[1]), true
}
