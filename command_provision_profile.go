package access

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/uptrace/bun"
)

type ProvisionProfileMessage struct {
	SubjectID string `json:"subject_id"`
	Email     string `json:"email"`
	FullName  string `json:"full_name"`
	Role      string `json:"role"`
	UseHashid bool
}

func (e ProvisionProfileMessage) Type() string { return "profile.provision" }

type ProvisionProfileHandler struct {
	repo         RepositoryManager
	activitySink ActivitySink
	logger       Logger
}

func NewProvisionProfileHandler(repo RepositoryManager, opts ...func(*ProvisionProfileHandler)) *ProvisionProfileHandler {
	h := &ProvisionProfileHandler{
		repo:         repo,
		activitySink: noopActivitySink{},
		logger:       defLogger{},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func WithProvisionLogger(logger Logger) func(*ProvisionProfileHandler) {
	return func(h *ProvisionProfileHandler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func WithProvisionActivitySink(sink ActivitySink) func(*ProvisionProfileHandler) {
	return func(h *ProvisionProfileHandler) {
		h.activitySink = normalizeActivitySink(sink)
	}
}

func (h *ProvisionProfileHandler) Execute(ctx context.Context, event ProvisionProfileMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during profile provisioning",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ProvisionProfileHandler) execute(ctx context.Context, event ProvisionProfileMessage) error {
	role, ok := ParseRole(event.Role)
	if event.Role != "" && !ok {
		return goerrors.New("unknown role", goerrors.CategoryValidation).
			WithTextCode("INVALID_ROLE").
			WithMetadata(map[string]any{"role": event.Role})
	}

	if normalizeEmail(event.Email) == "" {
		return goerrors.New("email is required to provision a profile", goerrors.CategoryValidation).
			WithTextCode("INVALID_EMAIL")
	}

	profile := &Profile{}
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		profile.Email = event.Email
		profile.FullName = event.FullName
		profile.Role = role
		profile.IsActive = true
		profile.ID = event.SubjectID

		if profile.ID == "" && event.UseHashid {
			if id, err := hashid.NewUUID(normalizeEmail(event.Email)); err == nil {
				profile.ID = id.String()
			}
		}

		var err error
		if profile, err = h.repo.Profiles().UpsertTx(ctx, tx, profile); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not provision profile")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}

		return goerrors.Wrap(err, goerrors.CategoryInternal, "profile provisioning transaction failed")
	}

	h.emit(ctx, profile)

	return nil
}

func (h *ProvisionProfileHandler) emit(ctx context.Context, profile *Profile) {
	if profile == nil {
		return
	}

	event := ActivityEvent{
		EventType: ActivityEventProfileProvisioned,
		Actor:     ActorRef{ID: profile.ID, Type: "profile"},
		SubjectID: profile.ID,
		Email:     profile.Email,
		Metadata: map[string]any{
			"role":      string(profile.Role),
			"is_active": profile.IsActive,
		},
		OccurredAt: time.Now(),
	}

	if err := h.activitySink.Record(ctx, event); err != nil {
		h.logger.Warn("activity sink rejected provisioning event: %v", err)
	}
}
