package firestore

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/firestore"

	domain "github.com/tashaleeh/api/internal/domain"
	pfirestore "github.com/tashaleeh/api/internal/platform/firestore"
)

const (
	regionCollection = "regions"
	makeCollection   = "makes"
	modelCollection  = "models"
)

type regionDocument struct {
	Name   string `firestore:"name"`
	Code   string `firestore:"code"`
	Active bool   `firestore:"active"`
}

type makeDocument struct {
	Name   string `firestore:"name"`
	Active bool   `firestore:"active"`
}

type modelDocument struct {
	MakeID string `firestore:"makeId"`
	Name   string `firestore:"name"`
	Active bool   `firestore:"active"`
}

// CatalogRepository implements repositories.CatalogRepository over the
// region/make/model reference collections.
type CatalogRepository struct {
	regions *pfirestore.BaseRepository[regionDocument]
	makes   *pfirestore.BaseRepository[makeDocument]
	models  *pfirestore.BaseRepository[modelDocument]
}

// NewCatalogRepository constructs a Firestore-backed catalog repository.
func NewCatalogRepository(provider *pfirestore.Provider) (*CatalogRepository, error) {
	if provider == nil {
		return nil, errors.New("catalog repository requires firestore provider")
	}
	return &CatalogRepository{
		regions: pfirestore.NewBaseRepository[regionDocument](provider, regionCollection, nil, nil),
		makes:   pfirestore.NewBaseRepository[makeDocument](provider, makeCollection, nil, nil),
		models:  pfirestore.NewBaseRepository[modelDocument](provider, modelCollection, nil, nil),
	}, nil
}

// ListActiveRegions returns the active service areas ordered by name.
func (r *CatalogRepository) ListActiveRegions(ctx context.Context) ([]domain.Region, error) {
	if r == nil || r.regions == nil {
		return nil, errors.New("catalog repository not initialised")
	}
	docs, err := r.regions.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("active", "==", true).OrderBy("name", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	regions := make([]domain.Region, 0, len(docs))
	for _, doc := range docs {
		regions = append(regions, toDomainRegion(doc.ID, doc.Data))
	}
	return regions, nil
}

// GetRegion loads a region by id.
func (r *CatalogRepository) GetRegion(ctx context.Context, regionID string) (domain.Region, error) {
	if r == nil || r.regions == nil {
		return domain.Region{}, errors.New("catalog repository not initialised")
	}
	if strings.TrimSpace(regionID) == "" {
		return domain.Region{}, errors.New("region id is required")
	}
	doc, err := r.regions.Get(ctx, regionID)
	if err != nil {
		return domain.Region{}, err
	}
	return toDomainRegion(doc.ID, doc.Data), nil
}

// ListActiveMakes returns the active manufacturers ordered by name.
func (r *CatalogRepository) ListActiveMakes(ctx context.Context) ([]domain.Make, error) {
	if r == nil || r.makes == nil {
		return nil, errors.New("catalog repository not initialised")
	}
	docs, err := r.makes.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("active", "==", true).OrderBy("name", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	makes := make([]domain.Make, 0, len(docs))
	for _, doc := range docs {
		makes = append(makes, domain.Make{ID: doc.ID, Name: doc.Data.Name, Active: doc.Data.Active})
	}
	return makes, nil
}

// GetMake loads a manufacturer by id.
func (r *CatalogRepository) GetMake(ctx context.Context, makeID string) (domain.Make, error) {
	if r == nil || r.makes == nil {
		return domain.Make{}, errors.New("catalog repository not initialised")
	}
	if strings.TrimSpace(makeID) == "" {
		return domain.Make{}, errors.New("make id is required")
	}
	doc, err := r.makes.Get(ctx, makeID)
	if err != nil {
		return domain.Make{}, err
	}
	return domain.Make{ID: doc.ID, Name: doc.Data.Name, Active: doc.Data.Active}, nil
}

// ListActiveModels returns the active models for a manufacturer ordered by name.
// An empty result is valid; some manufacturers carry no model breakdown.
func (r *CatalogRepository) ListActiveModels(ctx context.Context, makeID string) ([]domain.CarModel, error) {
	if r == nil || r.models == nil {
		return nil, errors.New("catalog repository not initialised")
	}
	if strings.TrimSpace(makeID) == "" {
		return nil, errors.New("make id is required")
	}
	docs, err := r.models.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("makeId", "==", makeID).Where("active", "==", true).OrderBy("name", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	models := make([]domain.CarModel, 0, len(docs))
	for _, doc := range docs {
		models = append(models, toDomainModel(doc.ID, doc.Data))
	}
	return models, nil
}

// GetModel loads a model by id.
func (r *CatalogRepository) GetModel(ctx context.Context, modelID string) (domain.CarModel, error) {
	if r == nil || r.models == nil {
		return domain.CarModel{}, errors.New("catalog repository not initialised")
	}
	if strings.TrimSpace(modelID) == "" {
		return domain.CarModel{}, errors.New("model id is required")
	}
	doc, err := r.models.Get(ctx, modelID)
	if err != nil {
		return domain.CarModel{}, err
	}
	return toDomainModel(doc.ID, doc.Data), nil
}

func toDomainRegion(id string, doc regionDocument) domain.Region {
	return domain.Region{
		ID:     id,
		Name:   strings.TrimSpace(doc.Name),
		Code:   strings.ToUpper(strings.TrimSpace(doc.Code)),
		Active: doc.Active,
	}
}

func toDomainModel(id string, doc modelDocument) domain.CarModel {
	return domain.CarModel{
		ID:     id,
		MakeID: doc.MakeID,
		Name:   strings.TrimSpace(doc.Name),
		Active: doc.Active,
	}
}
