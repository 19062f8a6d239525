package usecase

import (
	"context"
	"fmt"
	"sort"

	"github.com/kirillkom/portfolio-chatbot/internal/core/domain"
	"github.com/kirillkom/portfolio-chatbot/internal/core/ports"
)

type ModelCatalogUseCase struct {
	catalog ports.ModelCatalog
}

func NewModelCatalogUseCase(catalog ports.ModelCatalog) *ModelCatalogUseCase {
	return &ModelCatalogUseCase{catalog: catalog}
}

// List returns models that can generate content, sorted by name.
func (uc *ModelCatalogUseCase) List(ctx context.Context) ([]domain.ModelInfo, error) {
	models, err := uc.catalog.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	sort.Slice(models, func(i, j int) bool { return models[i].Name < models[j].Name })
	return models, nil
}
