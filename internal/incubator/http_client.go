package incubator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/incuhub/roadmap-sync/internal/models"
)

// HTTPClientConfig configures the backend HTTP client.
type HTTPClientConfig struct {
	BaseURL string
	// Token is attached as an Authorization bearer header when non-empty.
	Token string
	// TokenSource, when set, is consulted per request and overrides Token.
	TokenSource func() string
	Timeout     time.Duration
	Retries     int
	HTTPClient  *http.Client
}

// HTTPClient talks JSON-over-HTTPS to the incubation backend.
type HTTPClient struct {
	baseURL     string
	token       string
	tokenSource func() string
	client      *http.Client
	timeout     time.Duration
	retries     int
}

// NewHTTPClient validates cfg and returns a ready client.
func NewHTTPClient(cfg HTTPClientConfig) (*HTTPClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("incubator base url required")
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	retries := cfg.Retries
	if retries < 0 {
		retries = 0
	}
	return &HTTPClient{
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		token:       cfg.Token,
		tokenSource: cfg.TokenSource,
		client:      client,
		timeout:     timeout,
		retries:     retries,
	}, nil
}

type roadmapEnvelope struct {
	Roadmap struct {
		Title              *string `json:"title"`
		CurrentStage       *string `json:"current_stage"`
		ProgressPercentage *int    `json:"progress_percentage"`
		LastUpdate         *string `json:"last_update"`
		NextStep           *string `json:"next_step"`
	} `json:"roadmap"`
}

type stagesEnvelope struct {
	PlatformRoadmapStages []struct {
		Name            *string `json:"name"`
		MessageForOwner *string `json:"message_for_owner"`
	} `json:"platform_roadmap_stages"`
}

type withdrawalsEnvelope struct {
	Withdrawals []struct {
		Request struct {
			ID        *string `json:"id"`
			IdeaID    *string `json:"idea_id"`
			Reason    *string `json:"reason"`
			CreatedAt *string `json:"created_at"`
		} `json:"request"`
		CommitteeResponse struct {
			Status         *string  `json:"status"`
			CommitteeNotes *string  `json:"committee_notes"`
			PenaltyAmount  *float64 `json:"penalty_amount"`
			PenaltyPaid    *bool    `json:"penalty_paid"`
		} `json:"committee_response"`
	} `json:"withdrawals"`
}

// FetchIdeaRoadmap loads the authoritative roadmap snapshot for one idea.
func (c *HTTPClient) FetchIdeaRoadmap(ctx context.Context, ideaID string) (models.RoadmapInfo, error) {
	if ideaID == "" {
		return models.RoadmapInfo{}, fmt.Errorf("idea id required")
	}
	var envelope roadmapEnvelope
	path := fmt.Sprintf("/ideas/%s/roadmap", url.PathEscape(ideaID))
	if err := c.do(ctx, http.MethodGet, path, nil, &envelope); err != nil {
		return models.RoadmapInfo{}, fmt.Errorf("fetch idea roadmap: %w", err)
	}
	r := envelope.Roadmap
	return models.RoadmapInfo{
		Title:              strOr(r.Title, ""),
		CurrentStage:       strOr(r.CurrentStage, ""),
		ProgressPercentage: intOr(r.ProgressPercentage, 0),
		LastUpdate:         strOr(r.LastUpdate, ""),
		NextStep:           strOr(r.NextStep, ""),
	}, nil
}

// FetchPlatformStages loads the ordered platform stage catalog. Entries with
// no name are dropped; they cannot participate in index classification.
func (c *HTTPClient) FetchPlatformStages(ctx context.Context) ([]models.StageDefinition, error) {
	var envelope stagesEnvelope
	if err := c.do(ctx, http.MethodGet, "/platform/roadmap-stages", nil, &envelope); err != nil {
		return nil, fmt.Errorf("fetch platform stages: %w", err)
	}
	catalog := make([]models.StageDefinition, 0, len(envelope.PlatformRoadmapStages))
	for _, entry := range envelope.PlatformRoadmapStages {
		name := strOr(entry.Name, "")
		if name == "" {
			continue
		}
		catalog = append(catalog, models.StageDefinition{
			Name:            name,
			MessageForOwner: strOr(entry.MessageForOwner, ""),
		})
	}
	return catalog, nil
}

// ListWithdrawals returns all withdrawal requests visible to the caller.
func (c *HTTPClient) ListWithdrawals(ctx context.Context) ([]models.Withdrawal, error) {
	var envelope withdrawalsEnvelope
	if err := c.do(ctx, http.MethodGet, "/withdrawals", nil, &envelope); err != nil {
		return nil, fmt.Errorf("list withdrawals: %w", err)
	}
	out := make([]models.Withdrawal, 0, len(envelope.Withdrawals))
	for _, entry := range envelope.Withdrawals {
		createdAt := time.Time{}
		if raw := strOr(entry.Request.CreatedAt, ""); raw != "" {
			if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
				createdAt = parsed
			}
		}
		out = append(out, models.Withdrawal{
			Request: models.WithdrawalRequest{
				ID:        strOr(entry.Request.ID, ""),
				IdeaID:    strOr(entry.Request.IdeaID, ""),
				Reason:    strOr(entry.Request.Reason, ""),
				CreatedAt: createdAt,
			},
			CommitteeResponse: models.CommitteeResponse{
				Status:         models.WithdrawalStatus(strOr(entry.CommitteeResponse.Status, string(models.WithdrawalPending))),
				CommitteeNotes: strOr(entry.CommitteeResponse.CommitteeNotes, ""),
				PenaltyAmount:  floatOr(entry.CommitteeResponse.PenaltyAmount, 0),
				PenaltyPaid:    boolOr(entry.CommitteeResponse.PenaltyPaid, false),
			},
		})
	}
	return out, nil
}

// SubmitWithdrawal files a withdrawal request for an idea.
func (c *HTTPClient) SubmitWithdrawal(ctx context.Context, ideaID, reason string) error {
	if ideaID == "" {
		return fmt.Errorf("idea id required")
	}
	if strings.TrimSpace(reason) == "" {
		return fmt.Errorf("withdrawal reason required")
	}
	path := fmt.Sprintf("/ideas/%s/withdraw", url.PathEscape(ideaID))
	body := map[string]string{"reason": reason}
	if err := c.do(ctx, http.MethodPost, path, body, nil); err != nil {
		return fmt.Errorf("submit withdrawal: %w", err)
	}
	return nil
}

// ExecuteWithdrawal pays the penalty and finalizes an approved withdrawal.
func (c *HTTPClient) ExecuteWithdrawal(ctx context.Context, requestID string) error {
	if requestID == "" {
		return fmt.Errorf("request id required")
	}
	path := fmt.Sprintf("/withdrawals/%s/execute", url.PathEscape(requestID))
	if err := c.do(ctx, http.MethodPost, path, nil, nil); err != nil {
		return fmt.Errorf("execute withdrawal: %w", err)
	}
	return nil
}

// do issues one request with retries. Transport failures and 5xx responses
// are retried with linear backoff; 4xx responses are returned immediately.
func (c *HTTPClient) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		payload = b
	}

	attempts := c.retries + 1
	var lastErr error
	for i := 0; i < attempts; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(reqCtx, method, c.baseURL+path, reader)
		if err != nil {
			cancel()
			return fmt.Errorf("build request: %w", err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if token := c.bearerToken(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := c.client.Do(req)
		cancel()
		if err != nil {
			lastErr = err
		} else {
			err = decodeResponse(resp, out)
			resp.Body.Close()
			if err == nil {
				return nil
			}
			if !retryable(resp.StatusCode) {
				return err
			}
			lastErr = err
		}
		if i < attempts-1 {
			time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
		}
	}
	return lastErr
}

func (c *HTTPClient) bearerToken() string {
	if c.tokenSource != nil {
		return c.tokenSource()
	}
	return c.token
}

func decodeResponse(resp *http.Response, out interface{}) error {
	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("backend unavailable: %s", resp.Status)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("backend rejected request: %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func retryable(status int) bool {
	return status >= 500
}

func strOr(v *string, fallback string) string {
	if v == nil {
		return fallback
	}
	return *v
}

func intOr(v *int, fallback int) int {
	if v == nil {
		return fallback
	}
	return *v
}

func floatOr(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return *v
}

func boolOr(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}
