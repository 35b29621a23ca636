package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/tbxark/hrflow/types"
	"github.com/tbxark/hrflow/workflow"
)

// Submitter delivers a confirmed workflow. It is called at most once per
// confirmation and must not retry.
type Submitter interface {
	Submit(ctx context.Context, kind workflow.Kind, payload map[string]any) error
}

const maxErrorBody = 512

// DefaultPaths are appended to a base URL when no explicit target is configured.
var DefaultPaths = map[workflow.Kind]string{
	workflow.LeaveRequest: "/webhook/leave-request",
	workflow.Onboarding:   "/webhook/onboarding",
	workflow.PulseCheck:   "/webhook/pulse-check",
}

// Targets builds the target map for baseURL, letting overrides win.
func Targets(baseURL string, overrides map[string]string) (map[workflow.Kind]string, error) {
	out := make(map[workflow.Kind]string, len(DefaultPaths))
	if baseURL != "" {
		base := strings.TrimRight(baseURL, "/")
		for kind, path := range DefaultPaths {
			out[kind] = base + path
		}
	}
	for label, target := range overrides {
		kind, err := workflow.ParseKind(label)
		if err != nil {
			return nil, fmt.Errorf("webhook target: %w", err)
		}
		out[kind] = target
	}
	return out, nil
}

type HTTPSubmitter struct {
	client  *http.Client
	targets map[workflow.Kind]string
}

type HTTPOption func(*HTTPSubmitter)

func WithHTTPClient(client *http.Client) HTTPOption {
	return func(s *HTTPSubmitter) {
		s.client = client
	}
}

func WithTimeout(timeout time.Duration) HTTPOption {
	return func(s *HTTPSubmitter) {
		s.client = &http.Client{Timeout: timeout}
	}
}

func NewHTTPSubmitter(targets map[workflow.Kind]string, opts ...HTTPOption) *HTTPSubmitter {
	s := &HTTPSubmitter{
		client:  &http.Client{Timeout: 10 * time.Second},
		targets: targets,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *HTTPSubmitter) Submit(ctx context.Context, kind workflow.Kind, payload map[string]any) error {
	target, ok := s.targets[kind]
	if !ok || target == "" {
		return fmt.Errorf("%w: no webhook configured for %q", types.ErrSubmission, kind)
	}
	body, err := sonic.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: encode payload: %w", types.ErrSubmission, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build request: %w", types.ErrSubmission, err)
	}
	req.Header.Set("Content-Type", "application/json")

	slog.Debug("Posting webhook", "kind", kind, "target", target)
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", types.ErrSubmission, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("%w: %s returned %d: %s", types.ErrSubmission, target, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// LogSubmitter only logs payloads. It is used for dry runs.
type LogSubmitter struct {
	logger *slog.Logger
}

func NewLogSubmitter(logger *slog.Logger) *LogSubmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSubmitter{logger: logger}
}

func (s *LogSubmitter) Submit(ctx context.Context, kind workflow.Kind, payload map[string]any) error {
	s.logger.InfoContext(ctx, "Workflow submitted (dry run)", "kind", kind, "payload", payload)
	return nil
}

var (
	_ Submitter = (*HTTPSubmitter)(nil)
	_ Submitter = (*LogSubmitter)(nil)
)
