package ddns

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// DefaultEndpoint is the base URL of the Porkbun JSON API.
const DefaultEndpoint = "https://api.porkbun.com/api/json/v3"

// requestTimeout bounds every API call.
const requestTimeout = 10 * time.Second

// Credentials address and authenticate against the Porkbun API.
type Credentials struct {
	Endpoint     string
	APIKey       string
	SecretAPIKey string
}

// NewPorkbunClient returns a PorkbunClient for creds.
// An empty endpoint selects DefaultEndpoint.
func NewPorkbunClient(creds Credentials) (*PorkbunClient, error) {
	if creds.Endpoint == "" {
		creds.Endpoint = DefaultEndpoint
	}
	if _, err := url.Parse(creds.Endpoint); err != nil {
		return nil, fmt.Errorf("error parsing endpoint URL: %w", err)
	}
	if creds.APIKey == "" || creds.SecretAPIKey == "" {
		return nil, errors.New("both the API key and the secret API key are required")
	}
	return &PorkbunClient{
		creds:   creds,
		logger:  discard,
		limiter: rate.NewLimiter(rate.Inf, 1),
	}, nil
}

// PorkbunClient implements ddns.RecordService for the Porkbun DNS API.
//
// It should be constructed using NewPorkbunClient.
type PorkbunClient struct {
	creds      Credentials
	httpClient *http.Client
	logger     *slog.Logger
	limiter    *rate.Limiter
}

// SetLogger sets the logger. A nil logger discards messages.
func (pb *PorkbunClient) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = discard
	}
	pb.logger = logger
}

// SetHTTPClient sets the HTTP client. A nil client selects http.DefaultClient.
func (pb *PorkbunClient) SetHTTPClient(c *http.Client) {
	pb.httpClient = c
}

// SetRateLimit limits API calls to perSecond requests per second.
// Zero or less removes the limit.
func (pb *PorkbunClient) SetRateLimit(perSecond float64) {
	if perSecond <= 0 {
		pb.limiter = rate.NewLimiter(rate.Inf, 1)
		return
	}
	pb.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
}

type credentialsBody struct {
	APIKey       string `json:"apikey"`
	SecretAPIKey string `json:"secretapikey"`
}

type createBody struct {
	credentialsBody
	Name    string `json:"name"`
	Type    string `json:"type"`
	Content string `json:"content"`
	TTL     string `json:"ttl,omitempty"`
}

type response struct {
	Status  string       `json:"status"`
	Message string       `json:"message"`
	Records []wireRecord `json:"records"`
	ID      flexString   `json:"id"`
	YourIP  string       `json:"yourIp"`
}

func (r response) ok() bool {
	return strings.EqualFold(r.Status, "SUCCESS")
}

// Ping verifies the credentials and returns the caller's address as seen by Porkbun.
func (pb *PorkbunClient) Ping(ctx context.Context) (string, error) {
	resp, err := pb.call(ctx, "/ping", pb.credentials())
	if err != nil {
		return "", err
	}
	if !resp.ok() {
		return "", fmt.Errorf("ping returned status %q: %s", resp.Status, resp.Message)
	}
	return resp.YourIP, nil
}

// ListRecords implements ddns.RecordService.
func (pb *PorkbunClient) ListRecords(ctx context.Context, domain string) ([]Record, error) {
	pb.logger.Debug("retrieving records", "domain", domain)
	resp, err := pb.call(ctx, "/dns/retrieve/"+url.PathEscape(domain), pb.credentials())
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrRecordFetch, err)
	}
	if !resp.ok() {
		return nil, fmt.Errorf("%w: make sure you specified the correct domain (%s) and that API access has been enabled for this domain: %s",
			ErrRecordFetch, domain, resp.Message)
	}
	records := make([]Record, 0, len(resp.Records))
	for _, w := range resp.Records {
		records = append(records, w.record())
	}
	return records, nil
}

// CreateRecord implements ddns.RecordService.
func (pb *PorkbunClient) CreateRecord(ctx context.Context, domain string, rec Record) (string, error) {
	body := createBody{
		credentialsBody: pb.credentials(),
		Name:            rec.Name,
		Type:            rec.Type,
		Content:         rec.Content,
	}
	if rec.TTL > 0 {
		body.TTL = fmt.Sprint(rec.TTL)
	}
	resp, err := pb.call(ctx, "/dns/create/"+url.PathEscape(domain), body)
	if err != nil {
		return "", pb.mutationError(err)
	}
	if !resp.ok() {
		return "", fmt.Errorf("%w: create returned status %q: %s", ErrRecordMutation, resp.Status, resp.Message)
	}
	return string(resp.ID), nil
}

// DeleteRecord implements ddns.RecordService.
func (pb *PorkbunClient) DeleteRecord(ctx context.Context, domain string, id string) error {
	resp, err := pb.call(ctx, "/dns/delete/"+url.PathEscape(domain)+"/"+url.PathEscape(id), pb.credentials())
	if err != nil {
		return pb.mutationError(err)
	}
	if !resp.ok() {
		return fmt.Errorf("%w: delete returned status %q: %s", ErrRecordMutation, resp.Status, resp.Message)
	}
	return nil
}

func (pb *PorkbunClient) mutationError(err error) error {
	if errors.Is(err, ErrInvalidCredentials) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrRecordMutation, err)
}

func (pb *PorkbunClient) credentials() credentialsBody {
	return credentialsBody{APIKey: pb.creds.APIKey, SecretAPIKey: pb.creds.SecretAPIKey}
}

// call POSTs body to path and decodes the JSON reply.
// HTTP 400 is reported as ErrInvalidCredentials.
func (pb *PorkbunClient) call(ctx context.Context, path string, body any) (response, error) {
	target := strings.TrimSuffix(pb.creds.Endpoint, "/") + path

	if err := pb.limiter.Wait(ctx); err != nil {
		return response{}, fmt.Errorf("waiting to call %s: %w", target, err)
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	b, err := json.Marshal(body)
	if err != nil {
		return response{}, fmt.Errorf("error encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(b))
	if err != nil {
		return response{}, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	httpclient := pb.httpClient
	if httpclient == nil {
		httpclient = http.DefaultClient
	}

	resp, err := httpclient.Do(req)
	if err != nil {
		return response{}, fmt.Errorf("error reaching %s: %w", target, err)
	}
	defer resp.Body.Close()

	var r response
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return response{}, fmt.Errorf("error reading response from %s: %w", target, err)
	}
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &r); err != nil && resp.StatusCode == http.StatusOK {
			return response{}, fmt.Errorf("error decoding response from %s: %w", target, err)
		}
	}

	switch {
	case resp.StatusCode == http.StatusBadRequest:
		return r, fmt.Errorf("%w: %s", ErrInvalidCredentials, r.Message)
	case resp.StatusCode != http.StatusOK:
		return r, fmt.Errorf("%s returned %s", target, resp.Status)
	}
	pb.logger.Debug("api call", "path", path, "status", r.Status)
	return r, nil
}
