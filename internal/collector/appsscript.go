package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/incident-outbox/internal/domain"
)

const (
	defaultCollectorTimeout = 15 * time.Second
	successResult           = "success"

	fieldIncidentID     = "ID_PWA_UNICO"
	fieldFormType       = "formType"
	fieldDeliveryStatus = "Status_Envio"

	maxBodyInMessage = 200
)

type collectorResponse struct {
	Result  string `json:"result"`
	Message string `json:"message"`
}

// AppsScriptCollector posts submissions to a spreadsheet-backed web app that
// answers {"result":"success"} on acceptance.
type AppsScriptCollector struct {
	client   *resty.Client
	endpoint string
}

func NewAppsScriptCollector(endpoint string, timeout time.Duration) (*AppsScriptCollector, error) {
	if timeout <= 0 {
		timeout = defaultCollectorTimeout
	}

	client := resty.New()
	client.SetTimeout(timeout)
	client.SetRetryCount(0)

	return NewAppsScriptCollectorWithClient(endpoint, client)
}

func NewAppsScriptCollectorWithClient(endpoint string, client *resty.Client) (*AppsScriptCollector, error) {
	trimmedEndpoint := strings.TrimSpace(endpoint)
	if trimmedEndpoint == "" {
		return nil, fmt.Errorf("collector endpoint is required")
	}
	if _, err := url.ParseRequestURI(trimmedEndpoint); err != nil {
		return nil, fmt.Errorf("invalid collector endpoint: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultCollectorTimeout)
	}
	client.SetRetryCount(0)

	return &AppsScriptCollector{
		client:   client,
		endpoint: trimmedEndpoint,
	}, nil
}

func (c *AppsScriptCollector) Attempt(ctx context.Context, submission domain.Submission) Outcome {
	if c == nil || c.client == nil {
		return Unreachable(&CollectorError{Message: "collector is not initialized", Transient: true})
	}
	if ctx == nil {
		ctx = context.Background()
	}

	response, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(requestBody(submission)).
		Post(c.endpoint)
	if err != nil {
		return Unreachable(&CollectorError{
			Message:   transportMessage(err),
			Transient: true,
			Cause:     err,
		})
	}
	if response == nil {
		return Unreachable(&CollectorError{
			Message:   "collector returned empty response",
			Transient: true,
		})
	}

	statusCode := response.StatusCode()
	body := strings.TrimSpace(response.String())

	if statusCode < http.StatusOK || statusCode >= http.StatusMultipleChoices {
		return Unreachable(&CollectorError{
			StatusCode: statusCode,
			Message:    statusMessage(statusCode, body),
			Transient:  true,
		})
	}

	var parsed collectorResponse
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		return Rejected(&CollectorError{
			StatusCode: statusCode,
			Message:    "invalid collector response",
			Cause:      err,
		})
	}

	if parsed.Result == successResult {
		return Delivered(statusCode)
	}

	return Rejected(&CollectorError{
		StatusCode: statusCode,
		Message:    rejectionMessage(parsed),
	})
}

// requestBody flattens the form fields next to the identification columns.
// The identification columns win over form fields with the same name.
func requestBody(submission domain.Submission) map[string]string {
	body := make(map[string]string, len(submission.Fields)+3)
	for name, value := range submission.Fields {
		body[name] = value
	}
	body[fieldIncidentID] = submission.IncidentID
	body[fieldFormType] = submission.FormType.String()
	body[fieldDeliveryStatus] = submission.Status.String()
	return body
}

func rejectionMessage(resp collectorResponse) string {
	if msg := strings.TrimSpace(resp.Message); msg != "" {
		return msg
	}
	if result := strings.TrimSpace(resp.Result); result != "" {
		return fmt.Sprintf("collector answered %q", result)
	}
	return "collector did not confirm the submission"
}

func transportMessage(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "collector request timed out"
	}
	if errors.Is(err, context.Canceled) {
		return "collector request canceled"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "collector request timed out"
	}
	return "collector unreachable"
}

func statusMessage(statusCode int, body string) string {
	base := fmt.Sprintf("collector returned status %d", statusCode)
	if body == "" {
		return base
	}
	return fmt.Sprintf("%s: %s", base, truncate(body, maxBodyInMessage))
}

// truncate cuts s to at most maxBytes without splitting a UTF-8 sequence.
func truncate(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
