// Package crm mirrors conversations into Bitrix24 deals through an inbound webhook.
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	coreconfig "github.com/m3rciful/leadbot/core/config"
	"github.com/m3rciful/leadbot/core/conversation"
	"github.com/m3rciful/leadbot/core/logger"
	"github.com/m3rciful/leadbot/core/netx"
)

const (
	methodDealAdd    = "crm.deal.add"
	methodDealUpdate = "crm.deal.update"

	defaultStage = "NEW"
)

// DealIndex maps conversation session ids to Bitrix24 deal ids.
type DealIndex interface {
	LookupDeal(ctx context.Context, externalID string) (string, bool, error)
	SaveDeal(ctx context.Context, externalID, dealID string) error
}

// Client calls Bitrix24 REST methods through an inbound webhook URL.
type Client struct {
	webhookURL   string
	http         *http.Client
	index        DealIndex
	assignedByID int
	categoryID   int
	typeID       string
	now          func() time.Time
}

// New builds a client from configuration. CRM calls are never retried.
func New(cfg coreconfig.CRMConfig, index DealIndex) *Client {
	return NewWithHTTPClient(cfg, index, netx.BuildHTTPClient(netx.NoRetryOptions(time.Duration(cfg.TimeoutSeconds)*time.Second)))
}

// NewWithHTTPClient builds a client around a caller supplied HTTP client.
func NewWithHTTPClient(cfg coreconfig.CRMConfig, index DealIndex, client *http.Client) *Client {
	assigned := cfg.AssignedByID
	if assigned <= 0 {
		assigned = 1
	}
	typeID := cfg.TypeID
	if typeID == "" {
		typeID = "GOODS"
	}
	return &Client{
		webhookURL:   strings.TrimRight(cfg.WebhookURL, "/"),
		http:         client,
		index:        index,
		assignedByID: assigned,
		categoryID:   cfg.CategoryID,
		typeID:       typeID,
		now:          time.Now,
	}
}

// CreateOrUpdate upserts the deal linked to externalID and returns its id.
// Repeated calls for one externalID update the same deal.
func (c *Client) CreateOrUpdate(ctx context.Context, externalID string, d conversation.DealDraft) (string, error) {
	dealID, found, err := c.index.LookupDeal(ctx, externalID)
	if err != nil {
		return "", fmt.Errorf("%w: lookup deal: %w", conversation.ErrCRMSync, err)
	}

	fields := c.dealFields(d)
	if found {
		if err := c.call(ctx, methodDealUpdate, dealRequest{ID: dealID, Fields: fields}, nil); err != nil {
			return "", err
		}
		return dealID, nil
	}

	var result json.RawMessage
	if err := c.call(ctx, methodDealAdd, dealRequest{Fields: fields}, &result); err != nil {
		return "", err
	}
	dealID, err = parseDealID(result)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", conversation.ErrCRMSync, methodDealAdd, err)
	}
	c.linkDeal(ctx, externalID, dealID)
	return dealID, nil
}

// linkDeal records the new deal in the index, retrying once. A deal that
// stays unlinked exists in Bitrix24 but would be created again by the next
// call, so it is reported with its id for manual cleanup.
func (c *Client) linkDeal(ctx context.Context, externalID, dealID string) {
	err := c.index.SaveDeal(ctx, externalID, dealID)
	if err != nil {
		err = c.index.SaveDeal(ctx, externalID, dealID)
	}
	if err != nil {
		logger.Error(ctx, "crm", "crm.deal_orphaned",
			slog.String("deal_id", dealID),
			slog.String("external_id", externalID),
			slog.String("err", err.Error()),
		)
		return
	}
	logger.Info(ctx, "crm", "crm.deal_created", slog.String("deal_id", dealID))
}

// UpdateComments replaces the deal comments.
func (c *Client) UpdateComments(ctx context.Context, recordID, text string) error {
	return c.call(ctx, methodDealUpdate, dealRequest{
		ID:     recordID,
		Fields: map[string]any{"COMMENTS": text},
	}, nil)
}

// ChangeStage moves the deal to stage and stamps comment with the current time.
func (c *Client) ChangeStage(ctx context.Context, recordID, stage, comment string) error {
	return c.call(ctx, methodDealUpdate, dealRequest{
		ID: recordID,
		Fields: map[string]any{
			"STAGE_ID": stage,
			"COMMENTS": fmt.Sprintf("%s: %s\n\n", c.now().UTC().Format(time.RFC3339), comment),
		},
	}, nil)
}

func (c *Client) dealFields(d conversation.DealDraft) map[string]any {
	fields := map[string]any{
		"TITLE":          d.Title,
		"COMMENTS":       d.Comments,
		"ASSIGNED_BY_ID": c.assignedByID,
		"CATEGORY_ID":    c.categoryID,
		"STAGE_ID":       defaultStage,
		"TYPE_ID":        c.typeID,
		"SOURCE_ID":      sourceID(d.Source),
	}
	if d.Email != "" {
		fields["EMAIL"] = d.Email
	}
	if d.Phone != "" {
		fields["PHONE"] = d.Phone
	}
	return fields
}

func sourceID(ch conversation.Channel) string {
	if ch == conversation.ChannelTelegram {
		return "TELEGRAM"
	}
	return "WEB_CHAT"
}

type dealRequest struct {
	ID     string         `json:"id,omitempty"`
	Fields map[string]any `json:"fields"`
}

type apiResponse struct {
	Result           json.RawMessage `json:"result"`
	Error            string          `json:"error"`
	ErrorDescription string          `json:"error_description"`
}

// call posts payload to the REST method and decodes the result field into out when non-nil.
func (c *Client) call(ctx context.Context, method string, payload any, out *json.RawMessage) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %w", conversation.ErrCRMSync, method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL+"/"+method, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build %s request: %w", conversation.ErrCRMSync, method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", conversation.ErrCRMSync, method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: read %s response: %w", conversation.ErrCRMSync, method, err)
	}

	var decoded apiResponse
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &decoded); err != nil && resp.StatusCode < 300 {
			return fmt.Errorf("%w: decode %s response: %w", conversation.ErrCRMSync, method, err)
		}
	}
	if resp.StatusCode >= 300 || decoded.Error != "" {
		return &APIError{
			Method:      method,
			StatusCode:  resp.StatusCode,
			Code:        decoded.Error,
			Description: decoded.ErrorDescription,
		}
	}
	if isFalsy(decoded.Result) {
		return fmt.Errorf("%w: %s: empty result", conversation.ErrCRMSync, method)
	}

	logger.Debug(ctx, "crm", "crm.call",
		slog.String("status", "ok"),
		slog.String("crm_method", method),
		slog.Int("http_code", resp.StatusCode),
		slog.Duration("duration", logger.Took(start)),
	)
	if out != nil {
		*out = decoded.Result
	}
	return nil
}

func isFalsy(result json.RawMessage) bool {
	s := strings.TrimSpace(string(result))
	return s == "" || s == "null" || s == "false"
}

func parseDealID(result json.RawMessage) (string, error) {
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(result))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return "", fmt.Errorf("decode deal id: %w", err)
	}
	switch x := v.(type) {
	case json.Number:
		n = x
	case string:
		n = json.Number(x)
	default:
		return "", fmt.Errorf("unexpected deal id %s", string(result))
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return "", fmt.Errorf("unexpected deal id %q", n.String())
	}
	return n.String(), nil
}

// APIError is a non-successful Bitrix24 reply.
type APIError struct {
	Method      string
	StatusCode  int
	Code        string
	Description string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("bitrix24 %s: http %d", e.Method, e.StatusCode)
	if e.Code != "" {
		msg += ": " + e.Code
	}
	if e.Description != "" {
		msg += ": " + e.Description
	}
	return msg
}

// Unwrap returns conversation.ErrCRMSync.
func (e *APIError) Unwrap() error {
	return conversation.ErrCRMSync
}
