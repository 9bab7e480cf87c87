package clients

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pubgate/gateway/common/config"
	"github.com/pubgate/gateway/common/logger"
)

const purgeEndpoint = "/ccu/v3/invalidate/url"

// PurgeResponse is one response entry from the purge API.
type PurgeResponse struct {
	HTTPStatus       int    `json:"httpStatus"`
	Detail           string `json:"detail"`
	PurgeID          string `json:"purgeId"`
	EstimatedSeconds int    `json:"estimatedSeconds"`
}

// PurgeClient submits URL batches to the edge purge API,
// authenticating with environment-scoped credentials.
type PurgeClient struct {
	client *http.Client
	creds  config.PurgeCredentials
	log    *logger.Logger
}

// NewPurgeClient creates a purge client for one environment's
// credentials.
func NewPurgeClient(creds config.PurgeCredentials, log *logger.Logger) *PurgeClient {
	return &PurgeClient{
		client: &http.Client{Timeout: 30 * time.Second},
		creds:  creds,
		log:    log,
	}
}

// PurgeByURL submits the full URL batch in one call and returns the
// response entries.
func (c *PurgeClient) PurgeByURL(ctx context.Context, urls []string) ([]PurgeResponse, error) {
	body, err := json.Marshal(map[string][]string{"objects": urls})
	if err != nil {
		return nil, fmt.Errorf("marshal purge request: %w", err)
	}

	endpoint := strings.TrimSuffix(c.creds.Host, "/") + purgeEndpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build purge request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.authHeader(http.MethodPost, purgeEndpoint, body))

	c.log.Debug("submitting purge batch", "url_count", len(urls), "endpoint", endpoint)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("purge request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read purge response: %w", err)
	}

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("purge API returned %d: %s", resp.StatusCode, respBody)
	}

	var out PurgeResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("decode purge response: %w", err)
	}

	return []PurgeResponse{out}, nil
}

// authHeader builds the EdgeGrid-style signed authorization header the
// purge API expects.
func (c *PurgeClient) authHeader(method, path string, body []byte) string {
	timestamp := time.Now().UTC().Format("20060102T15:04:05+0000")
	nonce := uuid.New().String()

	auth := fmt.Sprintf(
		"EG1-HMAC-SHA256 client_token=%s;access_token=%s;timestamp=%s;nonce=%s;",
		c.creds.ClientToken, c.creds.AccessToken, timestamp, nonce,
	)

	bodyHash := sha256.Sum256(body)
	dataToSign := strings.Join([]string{
		method,
		"https",
		hostOnly(c.creds.Host),
		path,
		"", // canonical headers, none signed
		base64.StdEncoding.EncodeToString(bodyHash[:]),
		auth,
	}, "\t")

	signingKey := hmacBase64([]byte(c.creds.ClientSecret), timestamp)
	signature := hmacBase64([]byte(signingKey), dataToSign)

	return auth + "signature=" + signature
}

func hmacBase64(key []byte, data string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(data))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func hostOnly(host string) string {
	host = strings.TrimPrefix(host, "https://")
	host = strings.TrimPrefix(host, "http://")
	return strings.TrimSuffix(host, "/")
}
