package storage

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

func applyObjectStorageDefaults(cfg ObjectStorageConfig) ObjectStorageConfig {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultObjectStorageRequestTimeout
	}
	return cfg
}

func (cfg ObjectStorageConfig) requestTimeout() time.Duration {
	if cfg.RequestTimeout <= 0 {
		return defaultObjectStorageRequestTimeout
	}
	return cfg.RequestTimeout
}

// disabledObjectClient stands in when no bucket is configured. Uploads are
// rejected at the API layer before reaching it, so its methods are no-ops.
type disabledObjectClient struct{}

func (disabledObjectClient) Enabled() bool { return false }

func (disabledObjectClient) Upload(ctx context.Context, key, contentType string, body []byte) (ObjectRef, error) {
	return ObjectRef{}, nil
}

func (disabledObjectClient) Delete(ctx context.Context, key string) error {
	return nil
}

// newObjectStorageClient builds the media client that holds avatars, cover
// images, thumbnails, and video files. Any SigV4-speaking S3 endpoint works;
// MinIO is the usual development target. Missing bucket or endpoint disables
// uploads rather than failing startup.
func newObjectStorageClient(cfg ObjectStorageConfig) objectStorageClient {
	cfg = applyObjectStorageDefaults(cfg)
	bucket := strings.TrimSpace(cfg.Bucket)
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if bucket == "" || endpoint == "" {
		return disabledObjectClient{}
	}
	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}
	if strings.Contains(endpoint, "://") {
		if parsed, err := url.Parse(endpoint); err == nil {
			endpoint = parsed.Host
		}
	}
	base := &url.URL{Scheme: scheme, Host: endpoint}
	if base.Host == "" {
		return disabledObjectClient{}
	}
	cfg.Bucket = bucket
	return &bucketClient{
		cfg:  cfg,
		base: base,
		http: &http.Client{Timeout: cfg.RequestTimeout},
	}
}

// bucketClient issues signed PUT and DELETE requests against one bucket.
type bucketClient struct {
	cfg  ObjectStorageConfig
	base *url.URL
	http *http.Client
}

func (c *bucketClient) Enabled() bool { return true }

func (c *bucketClient) Upload(ctx context.Context, key, contentType string, body []byte) (ObjectRef, error) {
	finalKey := c.prefixed(key)
	request, err := c.newSignedRequest(ctx, http.MethodPut, finalKey, contentType, body)
	if err != nil {
		return ObjectRef{}, err
	}
	if err := c.do(request, "upload", finalKey); err != nil {
		return ObjectRef{}, err
	}
	return ObjectRef{Key: finalKey, URL: c.publicURL(finalKey)}, nil
}

func (c *bucketClient) Delete(ctx context.Context, key string) error {
	finalKey := c.prefixed(key)
	request, err := c.newSignedRequest(ctx, http.MethodDelete, finalKey, "", nil)
	if err != nil {
		return err
	}
	return c.do(request, "delete", finalKey)
}

func (c *bucketClient) newSignedRequest(ctx context.Context, method, finalKey, contentType string, body []byte) (*http.Request, error) {
	target := c.objectURL(finalKey)
	request, err := http.NewRequestWithContext(ctx, method, target.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", strings.ToLower(method), err)
	}
	if contentType != "" {
		request.Header.Set("Content-Type", contentType)
	}
	c.sign(request, payloadHash(body))
	return request, nil
}

func (c *bucketClient) do(request *http.Request, verb, finalKey string) error {
	response, err := c.http.Do(request)
	if err != nil {
		return fmt.Errorf("%s object %s: %w", verb, finalKey, err)
	}
	defer func() {
		_ = response.Body.Close()
	}()
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return fmt.Errorf("%s object %s: unexpected status %d", verb, finalKey, response.StatusCode)
	}
	return nil
}

// prefixed nests the key under the configured prefix unless it already is.
func (c *bucketClient) prefixed(key string) string {
	trimmed := strings.TrimLeft(strings.TrimSpace(key), "/")
	prefix := strings.Trim(strings.TrimSpace(c.cfg.Prefix), "/")
	if prefix == "" {
		return trimmed
	}
	if trimmed == "" {
		return prefix
	}
	if trimmed == prefix || strings.HasPrefix(trimmed, prefix+"/") {
		return trimmed
	}
	return prefix + "/" + trimmed
}

func (c *bucketClient) objectURL(finalKey string) *url.URL {
	basePath := strings.TrimRight(c.base.Path, "/")
	path := "/" + strings.TrimLeft(c.cfg.Bucket, "/")
	if trimmedKey := strings.TrimLeft(finalKey, "/"); trimmedKey != "" {
		path += "/" + trimmedKey
	}
	if basePath != "" {
		path = basePath + path
	}
	u := *c.base
	u.Path = path
	return &u
}

// publicURL is what gets stored on models and served to clients, typically a
// CDN in front of the bucket. Empty when no public endpoint is configured.
func (c *bucketClient) publicURL(key string) string {
	base := strings.TrimRight(strings.TrimSpace(c.cfg.PublicEndpoint), "/")
	if base == "" {
		return ""
	}
	trimmedKey := strings.TrimLeft(key, "/")
	if trimmedKey == "" {
		return base
	}
	return base + "/" + trimmedKey
}

// sign applies AWS Signature Version 4 for the s3 service. Without
// credentials the request goes out unsigned, which suits anonymous-write
// development buckets.
func (c *bucketClient) sign(req *http.Request, contentHash string) {
	req.Host = req.URL.Host
	req.Header.Set("Host", req.URL.Host)
	req.Header.Set("x-amz-content-sha256", contentHash)
	accessKey := strings.TrimSpace(c.cfg.AccessKey)
	secretKey := strings.TrimSpace(c.cfg.SecretKey)
	if accessKey == "" || secretKey == "" {
		return
	}
	region := strings.TrimSpace(c.cfg.Region)
	if region == "" {
		region = "us-east-1"
	}
	now := time.Now().UTC()
	amzDate := now.Format("20060102T150405Z")
	dateStamp := now.Format("20060102")
	req.Header.Set("x-amz-date", amzDate)

	headerList, signedHeaders := signableHeaders(req)
	canonicalRequest := strings.Join([]string{
		req.Method,
		escapedPath(req.URL),
		sortedQuery(req.URL),
		headerList,
		signedHeaders,
		contentHash,
	}, "\n")
	requestDigest := sha256.Sum256([]byte(canonicalRequest))
	scope := strings.Join([]string{dateStamp, region, "s3", "aws4_request"}, "/")
	stringToSign := strings.Join([]string{
		"AWS4-HMAC-SHA256",
		amzDate,
		scope,
		hex.EncodeToString(requestDigest[:]),
	}, "\n")
	signature := hmacHex(signingKey(secretKey, dateStamp, region), stringToSign)
	req.Header.Set("Authorization", fmt.Sprintf(
		"AWS4-HMAC-SHA256 Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		accessKey, scope, signedHeaders, signature,
	))
}

// signableHeaders lowercases, trims, and sorts every header except
// Authorization, returning the canonical block and the signed-headers list.
func signableHeaders(req *http.Request) (string, string) {
	byName := make(map[string][]string)
	for key, values := range req.Header {
		lower := strings.ToLower(key)
		if lower == "authorization" {
			continue
		}
		cleaned := make([]string, 0, len(values))
		for _, v := range values {
			cleaned = append(cleaned, strings.TrimSpace(v))
		}
		byName[lower] = cleaned
	}
	if _, ok := byName["host"]; !ok && req.Host != "" {
		byName["host"] = []string{req.Host}
	}
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)
	var block strings.Builder
	for _, name := range names {
		block.WriteString(name)
		block.WriteByte(':')
		block.WriteString(strings.Join(byName[name], ","))
		block.WriteByte('\n')
	}
	return block.String(), strings.Join(names, ";")
}

func escapedPath(u *url.URL) string {
	if u == nil {
		return "/"
	}
	path := u.EscapedPath()
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		return "/" + path
	}
	return path
}

func sortedQuery(u *url.URL) string {
	if u == nil {
		return ""
	}
	values, err := url.ParseQuery(u.RawQuery)
	if err != nil || len(values) == 0 {
		return ""
	}
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	var builder strings.Builder
	for idx, key := range keys {
		if idx > 0 {
			builder.WriteByte('&')
		}
		sort.Strings(values[key])
		for vIdx, value := range values[key] {
			if vIdx > 0 {
				builder.WriteByte('&')
			}
			builder.WriteString(url.QueryEscape(key))
			builder.WriteByte('=')
			builder.WriteString(url.QueryEscape(value))
		}
	}
	return builder.String()
}

// signingKey derives the per-day key per the SigV4 chain.
func signingKey(secret, dateStamp, region string) []byte {
	kDate := hmacSum([]byte("AWS4"+secret), []byte(dateStamp))
	kRegion := hmacSum(kDate, []byte(region))
	kService := hmacSum(kRegion, []byte("s3"))
	return hmacSum(kService, []byte("aws4_request"))
}

func hmacSum(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

func hmacHex(key []byte, data string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

func payloadHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
