package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lalithlochan/templar/internal/metrics"
	"github.com/lalithlochan/templar/internal/template"
)

const (
	NameGupshup        = "gupshup"
	DefaultGupshupBase = "https://partner.gupshup.io"

	maxResponseBytes = 1 << 20
	maxMediaBytes    = 100 << 20
)

// GupshupConfig tunes the Gupshup partner API client.
type GupshupConfig struct {
	BaseURL         string
	Timeout         time.Duration // template API calls
	DownloadTimeout time.Duration // fetching media from its URL
	UploadTimeout   time.Duration // each media upload attempt
	UploadRetries   int           // retries after the first upload attempt
	UploadBackoff   time.Duration // retry n waits n*UploadBackoff
}

func (c GupshupConfig) withDefaults() GupshupConfig {
	if c.BaseURL == "" {
		c.BaseURL = DefaultGupshupBase
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
	if c.DownloadTimeout == 0 {
		c.DownloadTimeout = 10 * time.Second
	}
	if c.UploadTimeout == 0 {
		c.UploadTimeout = 20 * time.Second
	}
	if c.UploadRetries == 0 {
		c.UploadRetries = 3
	}
	if c.UploadBackoff == 0 {
		c.UploadBackoff = time.Second
	}
	return c
}

// Gupshup talks to the Gupshup partner API for one app.
type Gupshup struct {
	cfg    GupshupConfig
	creds  Credentials
	client *http.Client
	logger *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewGupshup creates a client bound to creds.
func NewGupshup(cfg GupshupConfig, creds Credentials, logger *zap.Logger) *Gupshup {
	return &Gupshup{
		cfg:    cfg.withDefaults(),
		creds:  creds,
		client: &http.Client{},
		logger: logger.With(zap.String("provider", NameGupshup), zap.String("app_id", creds.AppID)),
		sleep:  sleepContext,
	}
}

func (g *Gupshup) Name() string  { return NameGupshup }
func (g *Gupshup) AppID() string { return g.creds.AppID }

func (g *Gupshup) templatesPath() string {
	return "/partner/app/" + url.PathEscape(g.creds.AppID) + "/templates"
}

func (g *Gupshup) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", g.creds.Token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "Templar/1.0.0")
}

// call performs one template API request and classifies the response.
// requireJSON controls whether a 2xx must carry a {"status":"success"} body.
func (g *Gupshup) call(ctx context.Context, op, method, path string, form url.Values, requireJSON bool) *Result {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, g.cfg.BaseURL+path, body)
	if err != nil {
		return dataFault(0, fmt.Sprintf("build request: %v", err))
	}
	g.setHeaders(req)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		metrics.RecordProviderCall(NameGupshup, op, "network_error", time.Since(start))
		g.logger.Warn("provider request failed",
			zap.String("op", op),
			zap.String("method", method),
			zap.Error(err),
		)
		return transportFailure(0, fmt.Sprintf("network error: %v", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		metrics.RecordProviderCall(NameGupshup, op, "network_error", time.Since(start))
		return transportFailure(0, fmt.Sprintf("read response: %v", err))
	}

	res := classify(resp.StatusCode, raw, requireJSON)
	metrics.RecordProviderCall(NameGupshup, op, outcome(res), time.Since(start))

	if !res.OK {
		g.logger.Warn("provider call failed",
			zap.String("op", op),
			zap.Int("status_code", res.StatusCode),
			zap.String("code", string(res.Code)),
			zap.Bool("retryable", res.Retryable),
			zap.String("message", res.Message),
		)
	}
	return res
}

func outcome(r *Result) string {
	switch {
	case r.OK:
		return "success"
	case r.Retryable:
		return "transient"
	default:
		return "rejected"
	}
}

// classify turns an HTTP response into a Result:
//   - 5xx and 429 are transient
//   - other 4xx are rejections when the body is JSON, transient otherwise
//   - 2xx with a non-success status is a rejection
//   - 2xx with an unparseable body is a data fault (when JSON is required)
func classify(status int, raw []byte, requireJSON bool) *Result {
	body, jsonErr := decodeObject(raw)

	switch {
	case status >= 500 || status == http.StatusTooManyRequests:
		return transportFailure(status, responseMessage(status, body, raw))
	case status >= 400:
		if jsonErr != nil {
			return transportFailure(status, responseMessage(status, nil, raw))
		}
		return rejection(status, responseMessage(status, body, raw), body)
	case status < 200 || status >= 300:
		return transportFailure(status, responseMessage(status, nil, raw))
	}

	if !requireJSON {
		return success(status, body)
	}
	if jsonErr != nil {
		return dataFault(status, fmt.Sprintf("malformed provider response: %v", jsonErr))
	}
	if s, _ := body["status"].(string); s != "success" {
		return rejection(status, responseMessage(status, body, raw), body)
	}
	return success(status, body)
}

func decodeObject(raw []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, fmt.Errorf("empty body")
	}
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, err
	}
	return body, nil
}

// responseMessage prefers the provider's own message so it lands verbatim in
// the error audit.
func responseMessage(status int, body map[string]any, raw []byte) string {
	if body != nil {
		if m, ok := body["message"].(string); ok && m != "" {
			return m
		}
	}
	text := strings.TrimSpace(string(raw))
	if len(text) > 512 {
		text = text[:512]
	}
	if text == "" {
		return fmt.Sprintf("HTTP %d", status)
	}
	return text
}

// SubmitTemplate uploads any media the template needs and posts it for review.
func (g *Gupshup) SubmitTemplate(ctx context.Context, t *template.Template) (*Result, error) {
	form, handle, failed := g.buildForm(ctx, t)
	if failed != nil {
		return failed, nil
	}

	res := g.call(ctx, "submit", http.MethodPost, g.templatesPath(), form, true)
	res.MediaHandle = handle
	if res.OK {
		res.Template = remoteTemplate(res.Body)
		g.logger.Info("template submitted",
			zap.String("template_id", t.ID.String()),
			zap.String("element_name", t.ElementName),
			zap.String("provider_template_id", res.Template.String("id")),
		)
	}
	return res, nil
}

// UpdateTemplate re-submits an already registered template for review.
func (g *Gupshup) UpdateTemplate(ctx context.Context, t *template.Template) (*Result, error) {
	if t.ProviderTemplateID == "" {
		return dataFault(0, "template has no provider id; submit it first"), nil
	}

	form, handle, failed := g.buildForm(ctx, t)
	if failed != nil {
		return failed, nil
	}

	path := g.templatesPath() + "/" + url.PathEscape(t.ProviderTemplateID)
	res := g.call(ctx, "update", http.MethodPut, path, form, true)
	res.MediaHandle = handle
	if res.OK {
		res.Template = remoteTemplate(res.Body)
	}
	return res, nil
}

// DeleteTemplate removes every language of the template's element name.
func (g *Gupshup) DeleteTemplate(ctx context.Context, t *template.Template) (*Result, error) {
	if t.ElementName == "" {
		return dataFault(0, "template has no element name"), nil
	}

	path := g.templatesPath() + "/" + url.PathEscape(t.ElementName)
	res := g.call(ctx, "delete", http.MethodDelete, path, nil, false)
	if res.OK && res.StatusCode != http.StatusOK && res.StatusCode != http.StatusNoContent {
		return rejection(res.StatusCode, fmt.Sprintf("deletion failed with unexpected status %d", res.StatusCode), res.Body), nil
	}
	return res, nil
}

// GetTemplates lists every template registered for the app.
func (g *Gupshup) GetTemplates(ctx context.Context) (*Result, error) {
	res := g.call(ctx, "list", http.MethodGet, g.templatesPath(), nil, true)
	if !res.OK {
		return res, nil
	}

	items, _ := res.Body["templates"].([]any)
	res.Templates = make([]template.Remote, 0, len(items))
	for i, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			g.logger.Warn("skipping non-object template entry", zap.Int("index", i))
			continue
		}
		res.Templates = append(res.Templates, template.Remote(m))
	}
	return res, nil
}

func remoteTemplate(body map[string]any) template.Remote {
	if m, ok := body["template"].(map[string]any); ok {
		return template.Remote(m)
	}
	return template.Remote{}
}

// buildForm resolves media and renders the submission form. A non-nil Result
// means the submission must stop with that outcome.
func (g *Gupshup) buildForm(ctx context.Context, t *template.Template) (url.Values, string, *Result) {
	var (
		handle string
		fields map[string]any
		err    error
	)

	switch t.Type {
	case template.TypeText, template.TypeCatalog:
		fields, err = baseFields(t, "")

	case template.TypeImage, template.TypeVideo, template.TypeDocument:
		if t.MediaURL != "" {
			var failed *Result
			handle, failed = g.resolveMedia(ctx, t.MediaURL, string(t.Type))
			if failed != nil {
				return nil, "", failed
			}
		}
		fields, err = baseFields(t, handle)

	case template.TypeCarousel:
		fields, err = baseFields(t, "")
		if err != nil {
			break
		}
		var cards []card
		cards, err = parseCards(t.Payload["cards"])
		if err != nil {
			break
		}
		wire := make([]map[string]any, 0, len(cards))
		for i, c := range cards {
			var cardHandle string
			if c.MediaURL != "" {
				var failed *Result
				cardHandle, failed = g.resolveMedia(ctx, c.MediaURL, c.HeaderType)
				if failed != nil {
					failed.Message = fmt.Sprintf("card %d: %s", i, failed.Message)
					return nil, "", failed
				}
			}
			wire = append(wire, c.wire(cardHandle))
		}
		fields["cards"] = wire

	default:
		return nil, "", dataFault(0, fmt.Sprintf("unsupported template type %q", t.Type))
	}

	if err != nil {
		return nil, "", dataFault(0, err.Error())
	}

	form, err := encodeForm(fields)
	if err != nil {
		return nil, "", dataFault(0, err.Error())
	}
	return form, handle, nil
}

// resolveMedia returns a media handle for mediaURL, uploading only when the
// value is not already a handle.
func (g *Gupshup) resolveMedia(ctx context.Context, mediaURL, group string) (string, *Result) {
	if IsMediaHandle(mediaURL) {
		g.logger.Debug("media is already a provider handle, skipping upload")
		return mediaURL, nil
	}

	mimeType, err := ValidateMediaURL(mediaURL, group)
	if err != nil {
		return "", dataFault(0, err.Error())
	}
	return g.uploadMedia(ctx, mediaURL, mimeType)
}

// uploadMedia downloads the file and uploads it as multipart, retrying
// transient failures with linear backoff.
func (g *Gupshup) uploadMedia(ctx context.Context, mediaURL, mimeType string) (string, *Result) {
	content, failed := g.download(ctx, mediaURL)
	if failed != nil {
		metrics.RecordMediaUpload("download_failed")
		return "", failed
	}
	filename := mediaFilename(mediaURL)

	var last *Result
	attempts := g.cfg.UploadRetries + 1
	made := 0
	for attempt := 1; attempt <= attempts; attempt++ {
		made = attempt
		handle, res := g.uploadOnce(ctx, filename, mimeType, content)
		if res == nil {
			metrics.RecordMediaUpload("success")
			g.logger.Info("media uploaded", zap.Int("attempt", attempt), zap.String("filename", filename))
			return handle, nil
		}
		if !res.Retryable {
			metrics.RecordMediaUpload("rejected")
			return "", res
		}
		last = res
		g.logger.Warn("media upload attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("status_code", res.StatusCode),
			zap.String("message", res.Message),
		)

		if attempt < attempts {
			if err := g.sleep(ctx, time.Duration(attempt)*g.cfg.UploadBackoff); err != nil {
				break
			}
		}
	}

	metrics.RecordMediaUpload("exhausted")
	return "", &Result{
		StatusCode: last.StatusCode,
		Message:    fmt.Sprintf("media upload failed after %d attempts: %s", made, last.Message),
		Code:       last.Code,
	}
}

func (g *Gupshup) download(ctx context.Context, mediaURL string) ([]byte, *Result) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.DownloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, dataFault(0, fmt.Sprintf("build media request: %v", err))
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, transportFailure(0, fmt.Sprintf("download media: %v", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, transportFailure(resp.StatusCode, fmt.Sprintf("download media: HTTP %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return nil, dataFault(resp.StatusCode, fmt.Sprintf("download media: HTTP %d", resp.StatusCode))
	}

	content, err := io.ReadAll(io.LimitReader(resp.Body, maxMediaBytes))
	if err != nil {
		return nil, transportFailure(0, fmt.Sprintf("read media: %v", err))
	}
	return content, nil
}

// uploadOnce returns the handle, or a failed Result.
func (g *Gupshup) uploadOnce(ctx context.Context, filename, mimeType string, content []byte) (string, *Result) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.UploadTimeout)
	defer cancel()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", dataFault(0, fmt.Sprintf("build upload: %v", err))
	}
	if _, err := part.Write(content); err != nil {
		return "", dataFault(0, fmt.Sprintf("build upload: %v", err))
	}
	if err := writer.WriteField("file_type", mimeType); err != nil {
		return "", dataFault(0, fmt.Sprintf("build upload: %v", err))
	}
	if err := writer.Close(); err != nil {
		return "", dataFault(0, fmt.Sprintf("build upload: %v", err))
	}

	path := "/partner/app/" + url.PathEscape(g.creds.AppID) + "/upload/media"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+path, body)
	if err != nil {
		return "", dataFault(0, fmt.Sprintf("build upload: %v", err))
	}
	g.setHeaders(req)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := g.client.Do(req)
	if err != nil {
		return "", transportFailure(0, fmt.Sprintf("network error: %v", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", transportFailure(0, fmt.Sprintf("read response: %v", err))
	}

	res := classify(resp.StatusCode, raw, true)
	if !res.OK {
		return "", res
	}

	handle := handleID(res.Body["handleId"])
	if handle == "" {
		return "", transportFailure(resp.StatusCode, "upload succeeded without a handleId")
	}
	return handle, nil
}

// handleID accepts both "handleId":"..." and "handleId":{"message":"..."}.
func handleID(v any) string {
	switch h := v.(type) {
	case string:
		return h
	case map[string]any:
		s, _ := h["message"].(string)
		return s
	default:
		return ""
	}
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
