package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	domain "github.com/tashaleeh/api/internal/domain"
)

func testCatalog() *stubCatalogRepo {
	return &stubCatalogRepo{
		regionFn: func(_ context.Context, id string) (domain.Region, error) {
			if id == "reg_ryd" {
				return domain.Region{ID: "reg_ryd", Name: "الرياض", Code: "RYD", Active: true}, nil
			}
			return domain.Region{}, &stubRepoError{msg: "region missing", notFound: true}
		},
		makeFn: func(_ context.Context, id string) (domain.Make, error) {
			switch id {
			case "make_toyota":
				return domain.Make{ID: "make_toyota", Name: "تويوتا", Active: true}, nil
			case "make_rare":
				return domain.Make{ID: "make_rare", Name: "نادر", Active: true}, nil
			}
			return domain.Make{}, &stubRepoError{msg: "make missing", notFound: true}
		},
		modelsFn: func(_ context.Context, makeID string) ([]domain.CarModel, error) {
			if makeID == "make_toyota" {
				return []domain.CarModel{{ID: "model_camry", MakeID: "make_toyota", Name: "كامري", Active: true}}, nil
			}
			return nil, nil
		},
		modelFn: func(_ context.Context, id string) (domain.CarModel, error) {
			if id == "model_camry" {
				return domain.CarModel{ID: "model_camry", MakeID: "make_toyota", Name: "كامري", Active: true}, nil
			}
			return domain.CarModel{}, &stubRepoError{msg: "model missing", notFound: true}
		},
	}
}

func newTestDraftService(t *testing.T) DraftService {
	t.Helper()
	seq := 0
	svc, err := NewDraftService(DraftServiceDeps{
		Catalog:   testCatalog(),
		MaxDrafts: 5,
		Clock: func() time.Time {
			seq++
			return time.Date(2025, 7, 1, 10, 0, seq, 0, time.UTC)
		},
		IDGenerator: func() string {
			return fmt.Sprintf("drf_%d", seq)
		},
	})
	if err != nil {
		t.Fatalf("NewDraftService: %v", err)
	}
	return svc
}

func TestDraftGuidedFlow(t *testing.T) {
	svc := newTestDraftService(t)
	ctx := context.Background()

	draft, err := svc.StartDraft(ctx, "act_1")
	if err != nil {
		t.Fatalf("StartDraft: %v", err)
	}
	if draft.Step != StepSelectRegion {
		t.Fatalf("expected step %s, got %s", StepSelectRegion, draft.Step)
	}

	draft, err = svc.Advance(ctx, "act_1", DraftInput{RegionID: "reg_ryd"})
	if err != nil {
		t.Fatalf("advance region: %v", err)
	}
	if draft.Step != StepSelectMake {
		t.Fatalf("expected step %s, got %s", StepSelectMake, draft.Step)
	}

	draft, err = svc.Advance(ctx, "act_1", DraftInput{MakeID: "make_toyota"})
	if err != nil {
		t.Fatalf("advance make: %v", err)
	}
	if draft.Step != StepSelectModel {
		t.Fatalf("expected step %s, got %s", StepSelectModel, draft.Step)
	}

	draft, err = svc.Advance(ctx, "act_1", DraftInput{ModelID: "model_camry"})
	if err != nil {
		t.Fatalf("advance model: %v", err)
	}
	if draft.Step != StepSelectYearRange {
		t.Fatalf("expected step %s, got %s", StepSelectYearRange, draft.Step)
	}

	draft, err = svc.Advance(ctx, "act_1", DraftInput{YearFrom: 2010, YearTo: 2019})
	if err != nil {
		t.Fatalf("advance year range: %v", err)
	}
	if draft.Step != StepSelectYear {
		t.Fatalf("expected step %s, got %s", StepSelectYear, draft.Step)
	}

	draft, err = svc.Advance(ctx, "act_1", DraftInput{Year: 2015})
	if err != nil {
		t.Fatalf("advance year: %v", err)
	}
	if draft.Step != StepCollectItems {
		t.Fatalf("expected step %s, got %s", StepCollectItems, draft.Step)
	}

	if _, err := svc.AddItem(ctx, "act_1", "صدام أمامي", "لون أبيض"); err != nil {
		t.Fatalf("add item: %v", err)
	}
	if _, err := svc.AttachMedia(ctx, "act_1", "file_abc"); err != nil {
		t.Fatalf("attach media: %v", err)
	}

	draft, err = svc.FinishItems(ctx, "act_1")
	if err != nil {
		t.Fatalf("finish items: %v", err)
	}
	if draft.Step != StepReview {
		t.Fatalf("expected step %s, got %s", StepReview, draft.Step)
	}
	if len(draft.Items) != 1 || draft.Items[0].Quantity != 1 {
		t.Fatalf("unexpected items %+v", draft.Items)
	}
	if len(draft.Items[0].MediaRefs) != 1 {
		t.Fatalf("expected media on last item, got %+v", draft.Items[0])
	}

	taken, err := svc.TakeForConfirm(ctx, "act_1", draft.ID)
	if err != nil {
		t.Fatalf("take for confirm: %v", err)
	}
	if taken.ID != draft.ID {
		t.Fatalf("expected taken draft %s, got %s", draft.ID, taken.ID)
	}
	if _, err := svc.ActiveDraft(ctx, "act_1"); !errors.Is(err, ErrDraftNotFound) {
		t.Fatalf("expected no active draft after take, got %v", err)
	}
}

func TestDraftModelStepSkippedWhenMakeHasNoModels(t *testing.T) {
	svc := newTestDraftService(t)
	ctx := context.Background()

	if _, err := svc.StartDraft(ctx, "act_1"); err != nil {
		t.Fatalf("StartDraft: %v", err)
	}
	if _, err := svc.Advance(ctx, "act_1", DraftInput{RegionID: "reg_ryd"}); err != nil {
		t.Fatalf("advance region: %v", err)
	}
	draft, err := svc.Advance(ctx, "act_1", DraftInput{MakeID: "make_rare"})
	if err != nil {
		t.Fatalf("advance make: %v", err)
	}
	if draft.Step != StepSelectYearRange {
		t.Fatalf("expected model step skipped, got %s", draft.Step)
	}
	if draft.ModelID != "" {
		t.Fatalf("expected empty model id, got %q", draft.ModelID)
	}
}

func TestDraftRejectsInvalidSelections(t *testing.T) {
	svc := newTestDraftService(t)
	ctx := context.Background()

	if _, err := svc.StartDraft(ctx, "act_1"); err != nil {
		t.Fatalf("StartDraft: %v", err)
	}
	if _, err := svc.Advance(ctx, "act_1", DraftInput{RegionID: "reg_bad"}); !errors.Is(err, ErrDraftInvalidInput) {
		t.Fatalf("expected invalid input for unknown region, got %v", err)
	}
	if _, err := svc.Advance(ctx, "act_1", DraftInput{RegionID: "reg_ryd"}); err != nil {
		t.Fatalf("advance region: %v", err)
	}
	if _, err := svc.Advance(ctx, "act_1", DraftInput{MakeID: "make_toyota"}); err != nil {
		t.Fatalf("advance make: %v", err)
	}
	// Model from another make must be refused.
	if _, err := svc.Advance(ctx, "act_1", DraftInput{ModelID: "model_other"}); !errors.Is(err, ErrDraftInvalidInput) {
		t.Fatalf("expected invalid input for foreign model, got %v", err)
	}
	if _, err := svc.AddItem(ctx, "act_1", "صدام", ""); !errors.Is(err, ErrDraftInvalidState) {
		t.Fatalf("expected invalid state for early item, got %v", err)
	}
}

func TestDraftLimitEnforced(t *testing.T) {
	svc := newTestDraftService(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := svc.StartDraft(ctx, "act_1"); err != nil {
			t.Fatalf("StartDraft %d: %v", i, err)
		}
	}
	if _, err := svc.StartDraft(ctx, "act_1"); !errors.Is(err, ErrDraftLimitExceeded) {
		t.Fatalf("expected limit error, got %v", err)
	}
	// Another actor is unaffected.
	if _, err := svc.StartDraft(ctx, "act_2"); err != nil {
		t.Fatalf("StartDraft other actor: %v", err)
	}

	drafts, err := svc.ListDrafts(ctx, "act_1")
	if err != nil {
		t.Fatalf("ListDrafts: %v", err)
	}
	if len(drafts) != 5 {
		t.Fatalf("expected 5 drafts, got %d", len(drafts))
	}
	if err := svc.DeleteDraft(ctx, "act_1", drafts[0].ID); err != nil {
		t.Fatalf("DeleteDraft: %v", err)
	}
	if _, err := svc.StartDraft(ctx, "act_1"); err != nil {
		t.Fatalf("StartDraft after delete: %v", err)
	}
}

func TestDraftSwitchActiveAndDelete(t *testing.T) {
	svc := newTestDraftService(t)
	ctx := context.Background()

	first, err := svc.StartDraft(ctx, "act_1")
	if err != nil {
		t.Fatalf("StartDraft first: %v", err)
	}
	second, err := svc.StartDraft(ctx, "act_1")
	if err != nil {
		t.Fatalf("StartDraft second: %v", err)
	}

	active, err := svc.ActiveDraft(ctx, "act_1")
	if err != nil {
		t.Fatalf("ActiveDraft: %v", err)
	}
	if active.ID != second.ID {
		t.Fatalf("expected newest draft active, got %s", active.ID)
	}

	if _, err := svc.SwitchActive(ctx, "act_1", first.ID); err != nil {
		t.Fatalf("SwitchActive: %v", err)
	}
	active, err = svc.ActiveDraft(ctx, "act_1")
	if err != nil {
		t.Fatalf("ActiveDraft after switch: %v", err)
	}
	if active.ID != first.ID {
		t.Fatalf("expected %s active, got %s", first.ID, active.ID)
	}

	// Deleting the active draft promotes the oldest remaining one.
	if err := svc.DeleteDraft(ctx, "act_1", first.ID); err != nil {
		t.Fatalf("DeleteDraft: %v", err)
	}
	active, err = svc.ActiveDraft(ctx, "act_1")
	if err != nil {
		t.Fatalf("ActiveDraft after delete: %v", err)
	}
	if active.ID != second.ID {
		t.Fatalf("expected %s active, got %s", second.ID, active.ID)
	}

	if _, err := svc.SwitchActive(ctx, "act_1", "drf_missing"); !errors.Is(err, ErrDraftNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDraftTakeRequiresReview(t *testing.T) {
	svc := newTestDraftService(t)
	ctx := context.Background()

	draft, err := svc.StartDraft(ctx, "act_1")
	if err != nil {
		t.Fatalf("StartDraft: %v", err)
	}
	if _, err := svc.TakeForConfirm(ctx, "act_1", draft.ID); !errors.Is(err, ErrDraftInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
}

func TestDraftRestoreAfterFailedConfirm(t *testing.T) {
	svc := newTestDraftService(t)
	ctx := context.Background()

	draft, err := svc.StartDraft(ctx, "act_1")
	if err != nil {
		t.Fatalf("StartDraft: %v", err)
	}
	steps := []DraftInput{
		{RegionID: "reg_ryd"},
		{MakeID: "make_rare"},
		{YearFrom: 2000, YearTo: 2009},
		{Year: 2005},
	}
	for _, input := range steps {
		if draft, err = svc.Advance(ctx, "act_1", input); err != nil {
			t.Fatalf("advance %+v: %v", input, err)
		}
	}
	if _, err := svc.AddItem(ctx, "act_1", "مكينة", ""); err != nil {
		t.Fatalf("add item: %v", err)
	}
	if draft, err = svc.FinishItems(ctx, "act_1"); err != nil {
		t.Fatalf("finish items: %v", err)
	}

	taken, err := svc.TakeForConfirm(ctx, "act_1", draft.ID)
	if err != nil {
		t.Fatalf("take for confirm: %v", err)
	}

	svc.Restore(ctx, taken)

	active, err := svc.ActiveDraft(ctx, "act_1")
	if err != nil {
		t.Fatalf("ActiveDraft after restore: %v", err)
	}
	if active.ID != taken.ID || active.Step != StepReview {
		t.Fatalf("expected restored draft %s at review, got %+v", taken.ID, active)
	}
}
