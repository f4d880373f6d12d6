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

const (
	supplierCollection = "suppliers"
	staffCollection    = "supplierStaff"
)

type supplierDocument struct {
	OwnerID       string    `firestore:"ownerId"`
	RegionID      string    `firestore:"regionId"`
	Phone         string    `firestore:"phone,omitempty"`
	Location      string    `firestore:"location,omitempty"`
	Active        bool      `firestore:"active"`
	Verified      bool      `firestore:"verified"`
	TotalRatings  int       `firestore:"totalRatings"`
	AverageRating float64   `firestore:"averageRating"`
	CreatedAt     time.Time `firestore:"createdAt"`
}

type staffDocument struct {
	SupplierID string    `firestore:"supplierId"`
	ActorID    string    `firestore:"actorId"`
	Role       string    `firestore:"role,omitempty"`
	Active     bool      `firestore:"active"`
	CreatedAt  time.Time `firestore:"createdAt"`
}

// SupplierRepository implements repositories.SupplierRepository backed by Firestore.
type SupplierRepository struct {
	suppliers *pfirestore.BaseRepository[supplierDocument]
	staff     *pfirestore.BaseRepository[staffDocument]
	provider  *pfirestore.Provider
}

// NewSupplierRepository constructs a Firestore-backed supplier repository.
func NewSupplierRepository(provider *pfirestore.Provider) (*SupplierRepository, error) {
	if provider == nil {
		return nil, errors.New("supplier repository requires firestore provider")
	}
	return &SupplierRepository{
		suppliers: pfirestore.NewBaseRepository[supplierDocument](provider, supplierCollection, nil, nil),
		staff:     pfirestore.NewBaseRepository[staffDocument](provider, staffCollection, nil, nil),
		provider:  provider,
	}, nil
}

// FindByID loads a supplier by id.
func (r *SupplierRepository) FindByID(ctx context.Context, supplierID string) (domain.Supplier, error) {
	if r == nil || r.suppliers == nil {
		return domain.Supplier{}, errors.New("supplier repository not initialised")
	}
	if strings.TrimSpace(supplierID) == "" {
		return domain.Supplier{}, errors.New("supplier id is required")
	}
	doc, err := r.suppliers.Get(ctx, supplierID)
	if err != nil {
		return domain.Supplier{}, err
	}
	return toDomainSupplier(doc.ID, doc.Data), nil
}

// FindByOwner resolves the supplier owned by the given actor.
func (r *SupplierRepository) FindByOwner(ctx context.Context, ownerID string) (domain.Supplier, error) {
	if r == nil || r.suppliers == nil {
		return domain.Supplier{}, errors.New("supplier repository not initialised")
	}
	if strings.TrimSpace(ownerID) == "" {
		return domain.Supplier{}, errors.New("owner id is required")
	}
	docs, err := r.suppliers.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("ownerId", "==", ownerID).Limit(1)
	})
	if err != nil {
		return domain.Supplier{}, err
	}
	if len(docs) == 0 {
		return domain.Supplier{}, pfirestore.NotFoundError("suppliers.query", fmt.Errorf("supplier owned by %s not found", ownerID))
	}
	return toDomainSupplier(docs[0].ID, docs[0].Data), nil
}

// ListActiveByRegion returns the active suppliers serving a region.
func (r *SupplierRepository) ListActiveByRegion(ctx context.Context, regionID string) ([]domain.Supplier, error) {
	if r == nil || r.suppliers == nil {
		return nil, errors.New("supplier repository not initialised")
	}
	if strings.TrimSpace(regionID) == "" {
		return nil, errors.New("region id is required")
	}
	docs, err := r.suppliers.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("regionId", "==", regionID).Where("active", "==", true)
	})
	if err != nil {
		return nil, err
	}
	suppliers := make([]domain.Supplier, 0, len(docs))
	for _, doc := range docs {
		suppliers = append(suppliers, toDomainSupplier(doc.ID, doc.Data))
	}
	return suppliers, nil
}

// ListActiveStaff returns the active delegated staff for a supplier.
func (r *SupplierRepository) ListActiveStaff(ctx context.Context, supplierID string) ([]domain.SupplierStaff, error) {
	if r == nil || r.staff == nil {
		return nil, errors.New("supplier repository not initialised")
	}
	if strings.TrimSpace(supplierID) == "" {
		return nil, errors.New("supplier id is required")
	}
	docs, err := r.staff.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("supplierId", "==", supplierID).Where("active", "==", true)
	})
	if err != nil {
		return nil, err
	}
	staff := make([]domain.SupplierStaff, 0, len(docs))
	for _, doc := range docs {
		staff = append(staff, domain.SupplierStaff{
			ID:         doc.ID,
			SupplierID: doc.Data.SupplierID,
			ActorID:    doc.Data.ActorID,
			Role:       doc.Data.Role,
			Active:     doc.Data.Active,
			CreatedAt:  doc.Data.CreatedAt,
		})
	}
	return staff, nil
}

// AddRating folds one score into the running average inside a transaction so
// concurrent ratings never lose each other's contribution.
func (r *SupplierRepository) AddRating(ctx context.Context, supplierID string, score int) (domain.Supplier, error) {
	if r == nil || r.provider == nil {
		return domain.Supplier{}, errors.New("supplier repository not initialised")
	}
	if strings.TrimSpace(supplierID) == "" {
		return domain.Supplier{}, errors.New("supplier id is required")
	}
	if score < 1 || score > 5 {
		return domain.Supplier{}, fmt.Errorf("rating score %d out of range", score)
	}

	var rated domain.Supplier
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.suppliers.DocumentRef(ctx, supplierID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var doc supplierDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("firestore suppliers decode %s: %w", supplierID, err)
		}

		total := doc.TotalRatings + 1
		average := (doc.AverageRating*float64(doc.TotalRatings) + float64(score)) / float64(total)
		if err := tx.Update(ref, []firestore.Update{
			{Path: "totalRatings", Value: total},
			{Path: "averageRating", Value: average},
		}); err != nil {
			return err
		}
		doc.TotalRatings = total
		doc.AverageRating = average
		rated = toDomainSupplier(supplierID, doc)
		return nil
	})
	if err != nil {
		return domain.Supplier{}, pfirestore.WrapError("suppliers.rate", err)
	}
	return rated, nil
}

func toDomainSupplier(id string, doc supplierDocument) domain.Supplier {
	return domain.Supplier{
		ID:            id,
		OwnerID:       doc.OwnerID,
		RegionID:      doc.RegionID,
		Phone:         strings.TrimSpace(doc.Phone),
		Location:      strings.TrimSpace(doc.Location),
		Active:        doc.Active,
		Verified:      doc.Verified,
		TotalRatings:  doc.TotalRatings,
		AverageRating: doc.AverageRating,
		CreatedAt:     doc.CreatedAt,
	}
}
