package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"map-manager/internal/logging"
	"map-manager/internal/metrics"
)

// DefaultBaseURL is the production subscription service.
const DefaultBaseURL = "https://osmand.net"

const (
	registerPath            = "/subscription/register"
	purchasedPath           = "/subscription/purchased"
	activeSubscriptionsPath = "/api/subscriptions/active"

	maxResponseBytes = 1 << 20
)

// UserInfo is attached to every request to the subscription service.
type UserInfo struct {
	Version            string
	Lang               string
	FirstInstalledDays int64
	NumberOfStarts     int64
	AppID              string
}

func (u UserInfo) apply(v url.Values) {
	v.Set("version", u.Version)
	v.Set("lang", u.Lang)
	v.Set("nd", strconv.FormatInt(u.FirstInstalledDays, 10))
	v.Set("ns", strconv.FormatInt(u.NumberOfStarts, 10))
	v.Set("aid", u.AppID)
}

// Client talks to the remote subscription service.
type Client struct {
	baseURL string
	http    *http.Client
	log     logging.Logger
}

// NewClient creates a client for baseURL. A zero timeout leaves the
// http.Client default.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		log:     logging.For("billing-client"),
	}
}

// BaseURL returns the service root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// RegisterRequest carries the user's public identity for registration.
type RegisterRequest struct {
	VisibleName      string
	HideUserName     bool
	PreferredCountry string
	Email            string
}

// Registration is the identity issued by the service.
type Registration struct {
	UserID string `json:"userid"`
	Token  string `json:"token"`
}

// Register obtains a user id and token.
func (c *Client) Register(ctx context.Context, req RegisterRequest, info UserInfo) (Registration, error) {
	form := url.Values{}
	if req.HideUserName {
		form.Set("visibleName", "")
	} else {
		form.Set("visibleName", req.VisibleName)
	}
	form.Set("preferredCountry", req.PreferredCountry)
	form.Set("email", req.Email)
	info.apply(form)

	body, err := c.do(ctx, http.MethodPost, registerPath, form)
	if err != nil {
		return Registration{}, err
	}

	var fields map[string]any
	if err := decodeFields(body, &fields); err != nil {
		return Registration{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	userID, err := requireString(fields, "userid")
	if err != nil {
		return Registration{}, err
	}
	token, err := requireString(fields, "token")
	if err != nil {
		return Registration{}, err
	}
	return Registration{UserID: userID, Token: token}, nil
}

// PurchasedRequest reports one purchase token for verification.
type PurchasedRequest struct {
	UserID   string
	Token    string
	Email    string
	Purchase PurchaseInfo
}

// PurchasedResponse holds the identity fields a verification may update. A nil
// field was absent from the response.
type PurchasedResponse struct {
	VisibleName      *string
	PreferredCountry *string
	Email            *string
}

// SendPurchase posts a purchase token to the verification endpoint. A response
// carrying an "error" field yields ErrPurchaseRejected.
func (c *Client) SendPurchase(ctx context.Context, req PurchasedRequest, info UserInfo) (PurchasedResponse, error) {
	form := url.Values{}
	form.Set("userid", req.UserID)
	form.Set("sku", req.Purchase.SKU)
	form.Set("orderId", req.Purchase.OrderID)
	form.Set("purchaseToken", req.Purchase.PurchaseToken)
	form.Set("email", req.Email)
	form.Set("token", req.Token)
	info.apply(form)

	body, err := c.do(ctx, http.MethodPost, purchasedPath, form)
	if err != nil {
		return PurchasedResponse{}, err
	}

	var fields map[string]any
	if err := decodeFields(body, &fields); err != nil {
		return PurchasedResponse{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if msg, ok := fields["error"]; ok {
		return PurchasedResponse{}, fmt.Errorf("%w: %v", ErrPurchaseRejected, msg)
	}

	var resp PurchasedResponse
	resp.VisibleName = optionalString(fields, "visibleName")
	resp.PreferredCountry = optionalString(fields, "preferredCountry")
	resp.Email = optionalString(fields, "email")
	return resp, nil
}

// ActiveSubscriptions returns the subscription SKUs the service currently offers.
func (c *Client) ActiveSubscriptions(ctx context.Context, androidPackage string, info UserInfo) ([]string, error) {
	query := url.Values{}
	query.Set("androidPackage", androidPackage)
	info.apply(query)

	body, err := c.do(ctx, http.MethodGet, activeSubscriptionsPath, query)
	if err != nil {
		return nil, err
	}

	var byType map[string]struct {
		SKU string `json:"sku"`
	}
	if err := json.Unmarshal(body, &byType); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	var skus []string
	for _, sub := range byType {
		if sub.SKU != "" {
			skus = append(skus, sub.SKU)
		}
	}
	sort.Strings(skus)
	return skus, nil
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values) (body []byte, err error) {
	start := time.Now()
	defer func() { recordRequest(path, start, err) }()

	target := c.baseURL + path
	var reader io.Reader
	if method == http.MethodGet {
		target += "?" + params.Encode()
	} else {
		reader = strings.NewReader(params.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("Accept", "application/json")

	c.log.Debug("%s %s", method, path)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err = io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}
	return body, nil
}

func recordRequest(endpoint string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.BillingRequestsTotal.WithLabelValues(endpoint, status).Inc()
	metrics.BillingRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

// decodeFields decodes a JSON object keeping numbers as json.Number, so
// numeric ids survive beyond 2^53.
func decodeFields(body []byte, fields *map[string]any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(fields); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("unexpected data after JSON object")
	}
	return nil
}

// requireString reads a field as a string. Numeric values are accepted.
func requireString(fields map[string]any, key string) (string, error) {
	v, ok := fields[key]
	if !ok || v == nil {
		return "", fmt.Errorf("%w: no value for %s", ErrMalformedResponse, key)
	}
	switch t := v.(type) {
	case string:
		return t, nil
	case json.Number:
		return t.String(), nil
	default:
		return "", fmt.Errorf("%w: %s is not a string", ErrMalformedResponse, key)
	}
}

func optionalString(fields map[string]any, key string) *string {
	v, ok := fields[key]
	if !ok || v == nil {
		return nil
	}
	s, ok := v.(string)
	if !ok {
		s = fmt.Sprint(v)
	}
	return &s
}
