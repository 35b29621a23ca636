package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"
	"github.com/google/uuid"
	"github.com/tbxark/hrflow/command"
	"github.com/tbxark/hrflow/dialogue"
	"github.com/tbxark/hrflow/extract"
	"github.com/tbxark/hrflow/intent"
	"github.com/tbxark/hrflow/types"
	"github.com/tbxark/hrflow/webhook"
	"github.com/tbxark/hrflow/workflow"
)

// SourceUserField carries the caller identity in every submitted payload.
const SourceUserField = "source_user"

var ErrEmptyUser = errors.New("empty user identity")

// Flow is the dialogue engine. It advances one user's session by one message
// per Handle call.
type Flow struct {
	store             StateReadWriter
	registry          *workflow.Registry
	commandParser     command.Parser
	classifier        intent.Classifier
	extractor         extract.Extractor
	dialogueGenerator dialogue.Generator
	submitter         webhook.Submitter
	fallbackDialogue  dialogue.Generator
	logger            *slog.Logger
}

type flowOptions struct {
	store             StateReadWriter
	registry          *workflow.Registry
	commandParser     command.Parser
	dialogueGenerator dialogue.Generator
	logger            *slog.Logger
}

type FlowOption func(*flowOptions)

func WithStore(store StateReadWriter) FlowOption {
	return func(o *flowOptions) {
		o.store = store
	}
}

func WithRegistry(registry *workflow.Registry) FlowOption {
	return func(o *flowOptions) {
		o.registry = registry
	}
}

func WithCommandParser(parser command.Parser) FlowOption {
	return func(o *flowOptions) {
		o.commandParser = parser
	}
}

func WithDialogueGenerator(generator dialogue.Generator) FlowOption {
	return func(o *flowOptions) {
		o.dialogueGenerator = generator
	}
}

func WithLogger(logger *slog.Logger) FlowOption {
	return func(o *flowOptions) {
		o.logger = logger
	}
}

func NewFlow(
	classifier intent.Classifier,
	extractor extract.Extractor,
	submitter webhook.Submitter,
	opts ...FlowOption,
) (*Flow, error) {
	if classifier == nil {
		return nil, errors.New("classifier is required")
	}
	if extractor == nil {
		return nil, errors.New("extractor is required")
	}
	if submitter == nil {
		return nil, errors.New("submitter is required")
	}
	options := flowOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	local := dialogue.NewLocalDialogueGenerator()
	f := &Flow{
		store:             options.store,
		registry:          options.registry,
		commandParser:     options.commandParser,
		classifier:        classifier,
		extractor:         extractor,
		dialogueGenerator: options.dialogueGenerator,
		submitter:         submitter,
		fallbackDialogue:  local,
		logger:            options.logger,
	}
	if f.store == nil {
		f.store = NewMemorySessionStore()
	}
	if f.registry == nil {
		f.registry = workflow.DefaultRegistry()
	}
	if f.commandParser == nil {
		f.commandParser = command.NewLocalCommandParser()
	}
	if f.dialogueGenerator == nil {
		f.dialogueGenerator = local
	}
	if f.logger == nil {
		f.logger = slog.Default()
	}
	return f, nil
}

// NewToolBasedFlow wires the model-backed classifier, which has no fallback,
// and a tool-call extractor that falls back to parsing a plain text reply.
func NewToolBasedFlow(
	chatModel model.ToolCallingChatModel,
	submitter webhook.Submitter,
	opts ...FlowOption,
) (*Flow, error) {
	classifier, err := intent.NewToolBasedClassifier(chatModel)
	if err != nil {
		return nil, fmt.Errorf("failed to create tool-based classifier: %w", err)
	}
	extractor := extract.NewFailbackExtractor(
		extract.NewToolBasedExtractor(chatModel),
		extract.NewTextExtractor(chatModel),
	)
	return NewFlow(classifier, extractor, submitter, opts...)
}

func (f *Flow) Registry() *workflow.Registry {
	return f.registry
}

func (f *Flow) Store() StateReadWriter {
	return f.store
}

// Handle runs one turn for user. Every outcome the user should see is
// returned as a Result; the error is reserved for store failures and misuse
// of the API itself.
func (f *Flow) Handle(ctx context.Context, user, message string) (*types.Result, error) {
	if f == nil {
		return nil, errors.New("nil flow")
	}
	if strings.TrimSpace(user) == "" {
		return nil, ErrEmptyUser
	}
	ctx = callbacks.EnsureRunInfo(ctx, "HRFlow", "Flow")
	ctx = callbacks.OnStart(ctx, map[string]any{
		"user":    user,
		"message": message,
	})

	defer func() {
		if r := recover(); r != nil {
			callbacks.OnError(ctx, fmt.Errorf("panic in Flow.Handle: %v", r))
			panic(r)
		}
	}()

	result, err := f.handle(ctx, user, message)
	if err != nil {
		callbacks.OnError(ctx, err)
		return nil, err
	}

	callbacks.OnEnd(ctx, map[string]any{
		"result": result,
		"status": string(result.Status),
	})
	return result, nil
}

type turn struct {
	id      string
	user    string
	text    string
	session *Session
	logger  *slog.Logger
}

func (f *Flow) handle(ctx context.Context, user, message string) (*types.Result, error) {
	unlock, err := f.store.Lock(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("lock session: %w", err)
	}
	defer unlock()

	session, err := f.store.GetOrCreate(ctx, user)
	if err != nil {
		return nil, err
	}
	t := &turn{
		id:      uuid.NewString(),
		user:    user,
		text:    strings.TrimSpace(message),
		session: session,
	}
	t.logger = f.logger.With("turn", t.id, "user", user)

	t.logger.Debug("Parsing command", "phase", session.Phase(), "intent", session.Intent)
	cmd, err := f.commandParser.ParseCommand(ctx, t.text)
	if err != nil {
		t.logger.Warn("Command parser failed, treating input as free text", "error", err)
		cmd = command.None
	}
	t.logger.Debug("Parsed command", "command", cmd)

	if session.PendingConfirmation {
		switch cmd {
		case command.Confirm:
			return f.submit(ctx, t)
		case command.Cancel:
			return f.cancel(ctx, t, nil)
		default:
			return f.respond(ctx, t, &types.ToolRequest{Status: types.StatusWaiting})
		}
	}

	switch cmd {
	case command.Confirm:
		misuse := fmt.Errorf("%w: %q", types.ErrSessionMisuse, t.text)
		t.logger.Warn("Confirmation without pending request", "intent", session.Intent)
		if session.Intent == "" {
			return f.respond(ctx, t, &types.ToolRequest{Status: types.StatusNeutral, Cause: misuse})
		}
		return f.respond(ctx, t, &types.ToolRequest{
			Status:  types.StatusIncomplete,
			Intent:  session.Intent,
			Missing: fieldInfos(f.registry.Missing(session.Intent, session.Fields)),
			Cause:   misuse,
		})
	case command.Cancel:
		misuse := fmt.Errorf("%w: %q", types.ErrSessionMisuse, t.text)
		t.logger.Warn("Cancellation without pending request", "intent", session.Intent)
		if session.Intent == "" {
			return f.respond(ctx, t, &types.ToolRequest{Status: types.StatusNeutral, Cause: misuse})
		}
		return f.cancel(ctx, t, misuse)
	case command.SmallTalk:
		return f.respond(ctx, t, &types.ToolRequest{Status: types.StatusNeutral})
	}

	return f.collect(ctx, t)
}

func (f *Flow) collect(ctx context.Context, t *turn) (*types.Result, error) {
	t.logger.Debug("Classifying intent")
	kind, err := f.classifier.Classify(ctx, t.text)
	if err == nil {
		if _, ok := f.registry.Spec(kind); !ok {
			err = fmt.Errorf("invalid intent: %q", kind)
		}
	}
	if err != nil {
		return f.handleError(ctx, t, fmt.Errorf("%w: %w", types.ErrClassification, err))
	}
	t.logger.Debug("Classified intent", "intent", kind)

	session := t.session
	if session.Intent != kind {
		if session.Intent != "" {
			t.logger.Info("Intent changed, resetting session", "from", session.Intent, "to", kind)
		}
		session.Reset(kind)
	}

	spec, _ := f.registry.Spec(kind)
	fieldSchema, err := f.registry.JSONSchema(kind)
	if err != nil {
		t.logger.Debug("Field schema unavailable", "error", err)
	}
	t.logger.Debug("Extracting fields", "fields", spec.Required)
	extracted, err := f.extractor.Extract(ctx, &extract.Request{
		Intent:      kind,
		Message:     t.text,
		Fields:      spec.Required,
		Known:       maps.Clone(session.Fields),
		FieldSchema: fieldSchema,
	})
	if err != nil {
		t.logger.Warn("Extraction failed, keeping previous fields", "error", fmt.Errorf("%w: %w", types.ErrExtraction, err))
	} else {
		merged, mErr := extract.Merge(session.Fields, extracted)
		if mErr != nil {
			t.logger.Warn("Merge failed, keeping previous fields", "error", mErr)
		} else {
			session.Fields = merged
		}
		t.logger.Debug("Merged fields", "fields", session.Fields)
	}

	if spec.IdentityField != "" {
		session.Fields[spec.IdentityField] = t.user
	}

	missing := f.registry.Missing(kind, session.Fields)
	status := types.StatusIncomplete
	if len(missing) == 0 {
		session.PendingConfirmation = true
		status = types.StatusConfirm
	}
	if err := f.store.Put(ctx, t.user, session); err != nil {
		return nil, err
	}
	return f.respond(ctx, t, &types.ToolRequest{
		Status:  status,
		Intent:  kind,
		Missing: fieldInfos(missing),
	})
}

func (f *Flow) submit(ctx context.Context, t *turn) (*types.Result, error) {
	session := t.session
	payload := maps.Clone(session.Fields)
	if payload == nil {
		payload = map[string]any{}
	}
	payload[SourceUserField] = t.user

	t.logger.Info("Submitting workflow", "intent", session.Intent)
	if err := f.submitter.Submit(ctx, session.Intent, payload); err != nil {
		if !errors.Is(err, types.ErrSubmission) {
			err = fmt.Errorf("%w: %w", types.ErrSubmission, err)
		}
		return f.handleError(ctx, t, err)
	}
	// The webhook already fired, so the turn succeeds whatever the store says.
	if err := f.store.Delete(ctx, t.user); err != nil && !errors.Is(err, ErrSessionNotFound) {
		t.logger.Error("Session delete failed after submission", "intent", session.Intent, "error", err)
		if pErr := f.store.Put(ctx, t.user, NewSession()); pErr != nil {
			t.logger.Error("Session reset failed after submission", "intent", session.Intent, "error", pErr)
		}
	}
	t.logger.Info("Workflow submitted", "intent", session.Intent)
	session.Fields = payload
	return f.respond(ctx, t, &types.ToolRequest{Status: types.StatusSuccess, Intent: session.Intent})
}

func (f *Flow) cancel(ctx context.Context, t *turn, cause error) (*types.Result, error) {
	err := f.store.Delete(ctx, t.user)
	switch {
	case errors.Is(err, ErrSessionNotFound):
		t.logger.Warn("Cancel on missing session", "error", fmt.Errorf("%w: %w", types.ErrSessionMisuse, err))
	case err != nil:
		return nil, err
	}
	t.logger.Info("Workflow cancelled", "intent", t.session.Intent)
	return f.respond(ctx, t, &types.ToolRequest{Status: types.StatusCancelled, Intent: t.session.Intent, Cause: cause})
}

// handleError turns an oracle or webhook failure into an error result. The
// session is left as it was stored.
func (f *Flow) handleError(ctx context.Context, t *turn, err error) (*types.Result, error) {
	t.logger.Warn("Turn failed", "error", err)
	return f.respond(ctx, t, &types.ToolRequest{
		Status:  types.StatusError,
		Intent:  t.session.Intent,
		Details: err.Error(),
		Cause:   err,
	})
}

// respond fills the shared prompt context, renders the reply and builds the
// result. A rendering failure falls back to the local templates.
func (f *Flow) respond(ctx context.Context, t *turn, req *types.ToolRequest) (*types.Result, error) {
	req.Message = t.text
	req.Kinds = f.registry.Kinds()
	req.Phase = t.session.Phase()
	req.Fields = maps.Clone(t.session.Fields)
	if req.Details == "" && req.Cause != nil {
		req.Details = req.Cause.Error()
	}

	t.logger.Debug("Generating dialogue", "status", req.Status)
	message, err := f.dialogueGenerator.GenerateDialogue(ctx, req)
	if err != nil || message == "" {
		t.logger.Warn("Dialogue generation failed, using local templates", "error", err)
		message, err = f.fallbackDialogue.GenerateDialogue(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("failed to generate dialogue: %w", err)
		}
	}

	result := &types.Result{
		Status:  req.Status,
		Message: message,
		Intent:  req.Intent,
		Fields:  req.Fields,
		Details: req.Details,
		TurnID:  t.id,
		Err:     req.Cause,
	}
	if len(req.Missing) > 0 {
		result.Missing = make([]string, 0, len(req.Missing))
		for _, m := range req.Missing {
			result.Missing = append(result.Missing, m.Name)
		}
	}
	return result, nil
}

func fieldInfos(names []string) []types.FieldInfo {
	out := make([]types.FieldInfo, 0, len(names))
	for _, n := range names {
		out = append(out, types.FieldInfo{Name: n, Required: true})
	}
	return out
}
