package client

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/john-matlock-eng/journal-vault/types"
)

// Client is the typed REST client for the vault key service. It maps
// the server's error bodies onto the sentinel errors in types so
// callers branch on values instead of status codes.
type Client struct {
	resty *resty.Client
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// SetupOutcome distinguishes a fresh identity registration from losing
// the one-identity-per-user race. Conflict is a normal outcome: the
// caller must fetch the winning bundle and unwrap that instead.
type SetupOutcome int

const (
	SetupCreated SetupOutcome = iota
	SetupConflict
)

type SetupResult struct {
	Outcome     SetupOutcome
	PublicKeyID string
	Created     int64
}

func New(baseURL string, bearerToken string) *Client {
	cl := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(time.Second * 30).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetAuthToken(bearerToken)
	return &Client{resty: cl}
}

// SetToken replaces the bearer token, e.g. after a session refresh.
func (c *Client) SetToken(token string) {
	c.resty.SetAuthToken(token)
}

// RestyClient exposes the underlying client for test transports.
func (c *Client) RestyClient() *resty.Client {
	return c.resty
}

// Setup registers the identity bundle. A 409 is returned as a
// SetupConflict result, not an error.
func (c *Client) Setup(ctx context.Context, input *types.InputSetupEncryption) (*SetupResult, error) {
	var out types.OutputSetupEncryption
	var apiErr apiError
	resp, err := c.resty.R().SetContext(ctx).SetBody(input).SetResult(&out).SetError(&apiErr).
		Post("/api/v1/encryption/setup")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() == http.StatusConflict {
		return &SetupResult{Outcome: SetupConflict}, nil
	}
	if resp.IsError() {
		return nil, mapError(resp, &apiErr)
	}
	return &SetupResult{
		Outcome:     SetupCreated,
		PublicKeyID: out.PublicKeyID,
		Created:     out.Created,
	}, nil
}

// Check returns the encryption status plus the AI consumer identity.
func (c *Client) Check(ctx context.Context) (*types.OutputEncryptionCheck, error) {
	var out types.OutputEncryptionCheck
	var apiErr apiError
	resp, err := c.resty.R().SetContext(ctx).SetResult(&out).SetError(&apiErr).
		Get("/api/v1/encryption/check")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, mapError(resp, &apiErr)
	}
	return &out, nil
}

// FetchUserBundle fetches a user's key bundle. A 404 comes back as a
// bundle with Completeness BundleAbsent, never as an error: absence is
// a normal sync state.
func (c *Client) FetchUserBundle(ctx context.Context, userID string, self bool) (*types.UserKeyBundle, error) {
	var out types.UserKeyBundle
	var apiErr apiError
	resp, err := c.resty.R().SetContext(ctx).SetResult(&out).SetError(&apiErr).
		Get(fmt.Sprintf("/api/v1/encryption/keys/%s", userID))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() == http.StatusNotFound {
		return &types.UserKeyBundle{Completeness: types.BundleAbsent, UserID: userID}, nil
	}
	if resp.IsError() {
		return nil, mapError(resp, &apiErr)
	}
	if self && out.WrappedPrivateKey != "" {
		out.Completeness = types.BundleFull
	} else {
		out.Completeness = types.BundlePublicKeyOnly
	}
	out.UserID = userID
	return &out, nil
}

// ResetIdentity destroys the caller's identity bundle server side.
func (c *Client) ResetIdentity(ctx context.Context) error {
	var apiErr apiError
	resp, err := c.resty.R().SetContext(ctx).SetError(&apiErr).
		Delete("/api/v1/encryption/keys")
	if err != nil {
		return err
	}
	if resp.IsError() {
		return mapError(resp, &apiErr)
	}
	return nil
}

// CreateShare creates a share grant. The idempotency key makes retries
// safe against duplicate grants.
func (c *Client) CreateShare(ctx context.Context, input *types.InputCreateShare, idempotencyKey string) (*types.OutputShareCreated, error) {
	var out types.OutputShareCreated
	var apiErr apiError
	req := c.resty.R().SetContext(ctx).SetBody(input).SetResult(&out).SetError(&apiErr)
	if idempotencyKey != "" {
		req.SetHeader("X-Idempotency-Key", idempotencyKey)
	}
	resp, err := req.Post("/api/v1/encryption/shares")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, mapError(resp, &apiErr)
	}
	return &out, nil
}

// ListShares lists grants the caller created, newest first.
func (c *Client) ListShares(ctx context.Context, itemType string, bookmark string, limit int) (*types.PagingResults, error) {
	var out types.PagingResults
	var apiErr apiError
	req := c.resty.R().SetContext(ctx).SetResult(&out).SetError(&apiErr).
		SetQueryParam("limit", fmt.Sprintf("%d", limit))
	if itemType != "" {
		req.SetQueryParam("itemType", itemType)
	}
	if bookmark != "" {
		req.SetQueryParam("bookmark", bookmark)
	}
	resp, err := req.Get("/api/v1/encryption/shares")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, mapError(resp, &apiErr)
	}
	return &out, nil
}

// GetShareKey fetches the wrapped item key as the recipient of a grant.
// Denials come back as the typed grant errors.
func (c *Client) GetShareKey(ctx context.Context, shareID string) (*types.OutputShareKey, error) {
	var out types.OutputShareKey
	var apiErr apiError
	resp, err := c.resty.R().SetContext(ctx).SetResult(&out).SetError(&apiErr).
		Get(fmt.Sprintf("/api/v1/encryption/shares/%s/key", shareID))
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, mapError(resp, &apiErr)
	}
	return &out, nil
}

// RevokeShare revokes a grant the caller created. Terminal.
func (c *Client) RevokeShare(ctx context.Context, shareID string) error {
	var apiErr apiError
	resp, err := c.resty.R().SetContext(ctx).SetError(&apiErr).
		Delete(fmt.Sprintf("/api/v1/encryption/shares/%s", shareID))
	if err != nil {
		return err
	}
	if resp.IsError() {
		return mapError(resp, &apiErr)
	}
	return nil
}

// CreateAIShares grants the AI analysis consumer one-time access to item keys.
func (c *Client) CreateAIShares(ctx context.Context, input *types.InputCreateAIShare) (*types.OutputAIShare, error) {
	var out types.OutputAIShare
	var apiErr apiError
	resp, err := c.resty.R().SetContext(ctx).SetBody(input).SetResult(&out).SetError(&apiErr).
		Post("/api/v1/encryption/ai-shares")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, mapError(resp, &apiErr)
	}
	return &out, nil
}

// GetAnalysisRequest returns the status of an analysis request.
func (c *Client) GetAnalysisRequest(ctx context.Context, requestID string) (*types.AnalysisRequest, error) {
	var out types.AnalysisRequest
	var apiErr apiError
	resp, err := c.resty.R().SetContext(ctx).SetResult(&out).SetError(&apiErr).
		Get(fmt.Sprintf("/api/v1/encryption/ai-shares/%s", requestID))
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, mapError(resp, &apiErr)
	}
	return &out, nil
}

// RegisterEmailMapping registers the caller's email for recipient lookup.
func (c *Client) RegisterEmailMapping(ctx context.Context, email string) error {
	var apiErr apiError
	resp, err := c.resty.R().SetContext(ctx).SetBody(types.InputEmailMapping{Email: email}).SetError(&apiErr).
		Put("/api/v1/users/email-mapping")
	if err != nil {
		return err
	}
	if resp.IsError() {
		return mapError(resp, &apiErr)
	}
	return nil
}

// ResolveRecipient resolves an email to a user ID. Unknown addresses
// return types.ErrRecipientNotFound.
func (c *Client) ResolveRecipient(ctx context.Context, email string) (string, error) {
	var out types.OutputUserID
	var apiErr apiError
	resp, err := c.resty.R().SetContext(ctx).SetResult(&out).SetError(&apiErr).
		Get(fmt.Sprintf("/api/v1/users/by-email/%s", email))
	if err != nil {
		return "", err
	}
	if resp.StatusCode() == http.StatusNotFound {
		return "", types.ErrRecipientNotFound
	}
	if resp.IsError() {
		return "", mapError(resp, &apiErr)
	}
	return out.UserID, nil
}

// mapError converts server denial messages to the matching sentinel errors.
func mapError(resp *resty.Response, apiErr *apiError) error {
	switch resp.StatusCode() {
	case http.StatusNotFound:
		return types.ErrNotFound
	case http.StatusConflict:
		return types.ErrServerConflict
	case http.StatusForbidden:
		switch apiErr.Message {
		case "grant expired":
			return types.ErrGrantExpired
		case "grant revoked":
			return types.ErrGrantRevoked
		case "grant consumed":
			return types.ErrGrantConsumed
		}
		return types.ErrBadRequest
	case http.StatusBadRequest:
		return types.ErrBadRequest
	}
	if apiErr.Message != "" {
		return fmt.Errorf("server error (%d): %s", resp.StatusCode(), apiErr.Message)
	}
	return types.ErrInternal
}
