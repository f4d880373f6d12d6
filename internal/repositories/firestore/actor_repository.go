package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/tashaleeh/api/internal/domain"
	pfirestore "github.com/tashaleeh/api/internal/platform/firestore"
)

const actorCollection = "actors"

type actorDocument struct {
	TelegramID int64     `firestore:"telegramId"`
	Username   string    `firestore:"username,omitempty"`
	FirstName  string    `firestore:"firstName,omitempty"`
	Phone      string    `firestore:"phone,omitempty"`
	Role       string    `firestore:"role"`
	Active     bool      `firestore:"active"`
	CreatedAt  time.Time `firestore:"createdAt"`
}

// ActorRepository implements repositories.ActorRepository backed by Firestore.
type ActorRepository struct {
	base *pfirestore.BaseRepository[actorDocument]
}

// NewActorRepository constructs a Firestore-backed actor repository.
func NewActorRepository(provider *pfirestore.Provider) (*ActorRepository, error) {
	if provider == nil {
		return nil, errors.New("actor repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[actorDocument](provider, actorCollection, nil, nil)
	return &ActorRepository{base: base}, nil
}

// FindByID loads an actor by document id.
func (r *ActorRepository) FindByID(ctx context.Context, actorID string) (domain.Actor, error) {
	if r == nil || r.base == nil {
		return domain.Actor{}, errors.New("actor repository not initialised")
	}
	if strings.TrimSpace(actorID) == "" {
		return domain.Actor{}, errors.New("actor id is required")
	}

	doc, err := r.base.Get(ctx, actorID)
	if err != nil {
		return domain.Actor{}, err
	}
	return toDomainActor(doc.ID, doc.Data), nil
}

// FindByTelegramID resolves the actor addressed by a Telegram chat id.
func (r *ActorRepository) FindByTelegramID(ctx context.Context, telegramID int64) (domain.Actor, error) {
	if r == nil || r.base == nil {
		return domain.Actor{}, errors.New("actor repository not initialised")
	}
	if telegramID == 0 {
		return domain.Actor{}, errors.New("telegram id is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("telegramId", "==", telegramID).Limit(1)
	})
	if err != nil {
		return domain.Actor{}, err
	}
	if len(docs) == 0 {
		return domain.Actor{}, pfirestore.NotFoundError("actors.query", fmt.Errorf("actor with telegram id %d not found", telegramID))
	}
	return toDomainActor(docs[0].ID, docs[0].Data), nil
}

// Upsert stores the actor record under its id.
func (r *ActorRepository) Upsert(ctx context.Context, actor domain.Actor) (domain.Actor, error) {
	if r == nil || r.base == nil {
		return domain.Actor{}, errors.New("actor repository not initialised")
	}
	if strings.TrimSpace(actor.ID) == "" {
		return domain.Actor{}, errors.New("actor id is required")
	}

	doc := fromDomainActor(actor)
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	if _, err := r.base.Set(ctx, actor.ID, doc); err != nil {
		return domain.Actor{}, err
	}
	return toDomainActor(actor.ID, doc), nil
}

func toDomainActor(id string, doc actorDocument) domain.Actor {
	return domain.Actor{
		ID:         id,
		TelegramID: doc.TelegramID,
		Username:   strings.TrimSpace(doc.Username),
		FirstName:  strings.TrimSpace(doc.FirstName),
		Phone:      strings.TrimSpace(doc.Phone),
		Role:       domain.ActorRole(doc.Role),
		Active:     doc.Active,
		CreatedAt:  doc.CreatedAt,
	}
}

func fromDomainActor(actor domain.Actor) actorDocument {
	return actorDocument{
		TelegramID: actor.TelegramID,
		Username:   strings.TrimSpace(actor.Username),
		FirstName:  strings.TrimSpace(actor.FirstName),
		Phone:      strings.TrimSpace(actor.Phone),
		Role:       string(actor.Role),
		Active:     actor.Active,
		CreatedAt:  actor.CreatedAt,
	}
}
