package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/tashaleeh/api/internal/domain"
	"github.com/tashaleeh/api/internal/repositories"
)

const draftIDPrefix = "drf_"

var (
	// ErrDraftInvalidInput signals the caller provided invalid data.
	ErrDraftInvalidInput = errors.New("draft: invalid input")
	// ErrDraftNotFound indicates no draft matched the actor and id.
	ErrDraftNotFound = errors.New("draft: not found")
	// ErrDraftLimitExceeded indicates the actor already holds the maximum
	// number of concurrent drafts.
	ErrDraftLimitExceeded = errors.New("draft: limit exceeded")
	// ErrDraftInvalidState indicates the submitted value does not match the
	// draft's current step.
	ErrDraftInvalidState = errors.New("draft: invalid state")
)

// DraftServiceDeps bundles collaborators required to construct the draft service.
type DraftServiceDeps struct {
	Catalog     repositories.CatalogRepository
	MaxDrafts   int
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type actorDrafts struct {
	mu       sync.Mutex
	drafts   map[string]*Draft
	activeID string
}

type draftService struct {
	catalog   repositories.CatalogRepository
	maxDrafts int
	clock     func() time.Time
	newID     func() string
	logger    func(context.Context, string, map[string]any)

	mu     sync.Mutex
	actors map[string]*actorDrafts
}

// NewDraftService wires dependencies into a concrete DraftService implementation.
//
// Drafts live only in process memory: a restart discards them, which is
// acceptable because nothing durable exists until confirmation.
func NewDraftService(deps DraftServiceDeps) (DraftService, error) {
	if deps.Catalog == nil {
		return nil, errors.New("draft service: catalog repository is required")
	}

	maxDrafts := deps.MaxDrafts
	if maxDrafts <= 0 {
		maxDrafts = 5
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return draftIDPrefix + ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &draftService{
		catalog:   deps.Catalog,
		maxDrafts: maxDrafts,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
		actors: make(map[string]*actorDrafts),
	}, nil
}

func (s *draftService) actorState(actorID string) *actorDrafts {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.actors[actorID]
	if !ok {
		state = &actorDrafts{drafts: make(map[string]*Draft)}
		s.actors[actorID] = state
	}
	return state
}

// StartDraft opens a new draft and makes it the actor's active one.
func (s *draftService) StartDraft(ctx context.Context, actorID string) (Draft, error) {
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return Draft{}, fmt.Errorf("%w: actor id is required", ErrDraftInvalidInput)
	}

	state := s.actorState(actorID)
	state.mu.Lock()
	defer state.mu.Unlock()

	if len(state.drafts) >= s.maxDrafts {
		return Draft{}, fmt.Errorf("%w: %d drafts already open", ErrDraftLimitExceeded, len(state.drafts))
	}

	draft := &Draft{
		ID:        s.newID(),
		ActorID:   actorID,
		Step:      StepSelectRegion,
		CreatedAt: s.clock(),
	}
	state.drafts[draft.ID] = draft
	state.activeID = draft.ID

	s.logger(ctx, "draft.started", map[string]any{
		"actor": actorID,
		"draft": draft.ID,
		"open":  len(state.drafts),
	})
	return *draft, nil
}

// Advance applies the submitted value to the active draft's current step and
// moves it forward. The model step is skipped entirely when the chosen make
// has no active models.
func (s *draftService) Advance(ctx context.Context, actorID string, input DraftInput) (Draft, error) {
	state, err := s.lockActor(actorID)
	if err != nil {
		return Draft{}, err
	}
	defer state.mu.Unlock()

	draft, err := state.activeLocked()
	if err != nil {
		return Draft{}, err
	}

	switch draft.Step {
	case StepSelectRegion:
		region, err := s.catalog.GetRegion(ctx, input.RegionID)
		if err != nil || !region.Active {
			return Draft{}, fmt.Errorf("%w: unknown region %q", ErrDraftInvalidInput, input.RegionID)
		}
		draft.RegionID = region.ID
		draft.Step = StepSelectMake

	case StepSelectMake:
		mk, err := s.catalog.GetMake(ctx, input.MakeID)
		if err != nil || !mk.Active {
			return Draft{}, fmt.Errorf("%w: unknown make %q", ErrDraftInvalidInput, input.MakeID)
		}
		draft.MakeID = mk.ID
		models, err := s.catalog.ListActiveModels(ctx, mk.ID)
		if err != nil {
			return Draft{}, fmt.Errorf("draft: list models: %w", err)
		}
		if len(models) == 0 {
			draft.ModelID = ""
			draft.Step = StepSelectYearRange
		} else {
			draft.Step = StepSelectModel
		}

	case StepSelectModel:
		model, err := s.catalog.GetModel(ctx, input.ModelID)
		if err != nil || !model.Active {
			return Draft{}, fmt.Errorf("%w: unknown model %q", ErrDraftInvalidInput, input.ModelID)
		}
		if model.MakeID != draft.MakeID {
			return Draft{}, fmt.Errorf("%w: model %q does not belong to make %q", ErrDraftInvalidInput, input.ModelID, draft.MakeID)
		}
		draft.ModelID = model.ID
		draft.Step = StepSelectYearRange

	case StepSelectYearRange:
		if input.YearFrom <= 0 || input.YearTo < input.YearFrom {
			return Draft{}, fmt.Errorf("%w: year range %d-%d", ErrDraftInvalidInput, input.YearFrom, input.YearTo)
		}
		draft.YearFrom = input.YearFrom
		draft.YearTo = input.YearTo
		draft.Step = StepSelectYear

	case StepSelectYear:
		if input.Year < draft.YearFrom || input.Year > draft.YearTo {
			return Draft{}, fmt.Errorf("%w: year %d outside %d-%d", ErrDraftInvalidInput, input.Year, draft.YearFrom, draft.YearTo)
		}
		draft.Year = input.Year
		draft.Step = StepCollectItems

	default:
		return Draft{}, fmt.Errorf("%w: step %s takes no selection", ErrDraftInvalidState, draft.Step)
	}

	return *draft, nil
}

// AddItem appends a named line item to the active draft.
func (s *draftService) AddItem(ctx context.Context, actorID string, name string, note string) (Draft, error) {
	state, err := s.lockActor(actorID)
	if err != nil {
		return Draft{}, err
	}
	defer state.mu.Unlock()

	draft, err := state.activeLocked()
	if err != nil {
		return Draft{}, err
	}

	if draft.Step != StepCollectItems {
		return Draft{}, fmt.Errorf("%w: items are collected at step %s, draft is at %s", ErrDraftInvalidState, StepCollectItems, draft.Step)
	}
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return Draft{}, fmt.Errorf("%w: item name is required", ErrDraftInvalidInput)
	}

	draft.Items = append(draft.Items, domain.LineItem{
		Name:     trimmed,
		Note:     strings.TrimSpace(note),
		Quantity: 1,
	})
	return *draft, nil
}

// AttachMedia records an opaque media reference against the draft. Media
// attached during item collection rides on the most recent item; earlier
// attachments describe the request as a whole.
func (s *draftService) AttachMedia(ctx context.Context, actorID string, mediaRef string) (Draft, error) {
	state, err := s.lockActor(actorID)
	if err != nil {
		return Draft{}, err
	}
	defer state.mu.Unlock()

	draft, err := state.activeLocked()
	if err != nil {
		return Draft{}, err
	}

	trimmed := strings.TrimSpace(mediaRef)
	if trimmed == "" {
		return Draft{}, fmt.Errorf("%w: media reference is required", ErrDraftInvalidInput)
	}

	if draft.Step == StepCollectItems && len(draft.Items) > 0 {
		item := &draft.Items[len(draft.Items)-1]
		item.MediaRefs = append(item.MediaRefs, trimmed)
	} else {
		draft.MediaRefs = append(draft.MediaRefs, trimmed)
	}
	return *draft, nil
}

// FinishItems closes item collection and moves the draft to review.
func (s *draftService) FinishItems(ctx context.Context, actorID string) (Draft, error) {
	state, err := s.lockActor(actorID)
	if err != nil {
		return Draft{}, err
	}
	defer state.mu.Unlock()

	draft, err := state.activeLocked()
	if err != nil {
		return Draft{}, err
	}

	if draft.Step != StepCollectItems {
		return Draft{}, fmt.Errorf("%w: draft is at %s", ErrDraftInvalidState, draft.Step)
	}
	if len(draft.Items) == 0 {
		return Draft{}, fmt.Errorf("%w: at least one item is required", ErrDraftInvalidInput)
	}

	draft.Step = StepReview
	return *draft, nil
}

// ActiveDraft returns the actor's active draft.
func (s *draftService) ActiveDraft(ctx context.Context, actorID string) (Draft, error) {
	state, err := s.lockActor(actorID)
	if err != nil {
		return Draft{}, err
	}
	defer state.mu.Unlock()

	draft, err := state.activeLocked()
	if err != nil {
		return Draft{}, err
	}
	return *draft, nil
}

// ListDrafts returns the actor's open drafts, oldest first.
func (s *draftService) ListDrafts(ctx context.Context, actorID string) ([]Draft, error) {
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return nil, fmt.Errorf("%w: actor id is required", ErrDraftInvalidInput)
	}

	state := s.actorState(actorID)
	state.mu.Lock()
	defer state.mu.Unlock()

	drafts := make([]Draft, 0, len(state.drafts))
	for _, draft := range state.drafts {
		drafts = append(drafts, *draft)
	}
	sort.Slice(drafts, func(i, j int) bool {
		if drafts[i].CreatedAt.Equal(drafts[j].CreatedAt) {
			return drafts[i].ID < drafts[j].ID
		}
		return drafts[i].CreatedAt.Before(drafts[j].CreatedAt)
	})
	return drafts, nil
}

// SwitchActive points the actor's active draft at another open draft.
func (s *draftService) SwitchActive(ctx context.Context, actorID string, draftID string) (Draft, error) {
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return Draft{}, fmt.Errorf("%w: actor id is required", ErrDraftInvalidInput)
	}

	state := s.actorState(actorID)
	state.mu.Lock()
	defer state.mu.Unlock()

	draft, ok := state.drafts[strings.TrimSpace(draftID)]
	if !ok {
		return Draft{}, fmt.Errorf("%w: draft %q", ErrDraftNotFound, draftID)
	}
	state.activeID = draft.ID
	return *draft, nil
}

// DeleteDraft discards an open draft. Deleting the active draft promotes the
// oldest remaining draft, if any.
func (s *draftService) DeleteDraft(ctx context.Context, actorID string, draftID string) error {
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return fmt.Errorf("%w: actor id is required", ErrDraftInvalidInput)
	}

	state := s.actorState(actorID)
	state.mu.Lock()
	defer state.mu.Unlock()

	id := strings.TrimSpace(draftID)
	if _, ok := state.drafts[id]; !ok {
		return fmt.Errorf("%w: draft %q", ErrDraftNotFound, draftID)
	}
	delete(state.drafts, id)
	if state.activeID == id {
		state.activeID = oldestDraftID(state.drafts)
	}

	s.logger(ctx, "draft.deleted", map[string]any{
		"actor": actorID,
		"draft": id,
		"open":  len(state.drafts),
	})
	return nil
}

// TakeForConfirm removes the draft from the manager for the orchestrator to
// persist. The draft must have passed review.
func (s *draftService) TakeForConfirm(ctx context.Context, actorID string, draftID string) (Draft, error) {
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return Draft{}, fmt.Errorf("%w: actor id is required", ErrDraftInvalidInput)
	}

	state := s.actorState(actorID)
	state.mu.Lock()
	defer state.mu.Unlock()

	id := strings.TrimSpace(draftID)
	draft, ok := state.drafts[id]
	if !ok {
		return Draft{}, fmt.Errorf("%w: draft %q", ErrDraftNotFound, draftID)
	}
	if draft.Step != StepReview {
		return Draft{}, fmt.Errorf("%w: draft is at %s, review is required", ErrDraftInvalidState, draft.Step)
	}
	if !draft.HasRequiredSelections() || len(draft.Items) == 0 {
		return Draft{}, fmt.Errorf("%w: draft is incomplete", ErrDraftInvalidState)
	}

	taken := *draft
	delete(state.drafts, id)
	if state.activeID == id {
		state.activeID = oldestDraftID(state.drafts)
	}
	return taken, nil
}

// Restore puts a taken draft back after a failed confirmation and makes it
// active again.
func (s *draftService) Restore(ctx context.Context, draft Draft) {
	if strings.TrimSpace(draft.ActorID) == "" || strings.TrimSpace(draft.ID) == "" {
		return
	}

	state := s.actorState(draft.ActorID)
	state.mu.Lock()
	defer state.mu.Unlock()

	restored := draft
	state.drafts[draft.ID] = &restored
	state.activeID = draft.ID
}

// lockActor validates the actor id and returns its state with the mutex held.
// The caller owns the unlock.
func (s *draftService) lockActor(actorID string) (*actorDrafts, error) {
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return nil, fmt.Errorf("%w: actor id is required", ErrDraftInvalidInput)
	}
	state := s.actorState(actorID)
	state.mu.Lock()
	return state, nil
}

// activeLocked resolves the active draft; the caller must hold the mutex.
func (a *actorDrafts) activeLocked() (*Draft, error) {
	if a.activeID == "" {
		return nil, fmt.Errorf("%w: no active draft", ErrDraftNotFound)
	}
	draft, ok := a.drafts[a.activeID]
	if !ok {
		a.activeID = ""
		return nil, fmt.Errorf("%w: no active draft", ErrDraftNotFound)
	}
	return draft, nil
}

func oldestDraftID(drafts map[string]*Draft) string {
	oldest := ""
	var oldestAt time.Time
	for id, draft := range drafts {
		if oldest == "" || draft.CreatedAt.Before(oldestAt) {
			oldest = id
			oldestAt = draft.CreatedAt
		}
	}
	return oldest
}
