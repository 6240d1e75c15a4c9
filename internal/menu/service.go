package menu

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/angelmondragon/roha-backend/internal/adminlogs"
	"github.com/angelmondragon/roha-backend/pkg/auth"
	"github.com/angelmondragon/roha-backend/pkg/db/models"
	"github.com/angelmondragon/roha-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/roha-backend/pkg/errors"
	"github.com/angelmondragon/roha-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type Service struct {
	repo  Repository
	tx    txRunner
	audit adminlogs.Recorder
	logg  *logger.Logger
}

func NewService(repo Repository, tx txRunner, audit adminlogs.Recorder, logg *logger.Logger) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("menu repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if audit == nil {
		return nil, fmt.Errorf("admin log recorder required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{repo: repo, tx: tx, audit: audit, logg: logg}, nil
}

// ListPublic returns available items for the storefront.
func (s *Service) ListPublic(ctx context.Context) ([]models.MenuItem, error) {
	items, err := s.repo.List(ctx, true)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list menu")
	}
	return items, nil
}

// ListAll includes unavailable items for menu editors.
func (s *Service) ListAll(ctx context.Context, actor auth.Actor) ([]models.MenuItem, error) {
	if err := requireEditor(actor); err != nil {
		return nil, err
	}
	items, err := s.repo.List(ctx, false)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list menu")
	}
	return items, nil
}

// FindByID satisfies order pricing lookups.
func (s *Service) FindByID(ctx context.Context, id int64) (*models.MenuItem, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *Service) Create(ctx context.Context, actor auth.Actor, input ItemInput) (*models.MenuItem, error) {
	if err := requireEditor(actor); err != nil {
		return nil, err
	}
	if err := input.validate(); err != nil {
		return nil, err
	}
	item := input.toModel()
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, item); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create menu item")
		}
		return s.audit.Record(ctx, tx, adminlogs.Entry{
			AdminID:    actor.UserID,
			Action:     enums.AdminActionMenuItemCreate,
			TargetType: enums.AdminTargetMenuItem,
			TargetID:   adminlogs.TargetID(item.ID),
			Details:    map[string]any{"name": item.Name},
		})
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (s *Service) Update(ctx context.Context, actor auth.Actor, id int64, patch ItemPatch) (*models.MenuItem, error) {
	if err := requireEditor(actor); err != nil {
		return nil, err
	}
	fields, err := patch.fields()
	if err != nil {
		return nil, err
	}
	updates := make(map[string]any, len(fields))
	for k, v := range fields {
		updates[k] = v
	}

	var item *models.MenuItem
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Update(ctx, id, fields); err != nil {
			return notFound(err, "update menu item")
		}
		if err := s.audit.Record(ctx, tx, adminlogs.Entry{
			AdminID:    actor.UserID,
			Action:     enums.AdminActionMenuItemUpdate,
			TargetType: enums.AdminTargetMenuItem,
			TargetID:   adminlogs.TargetID(id),
			Details:    map[string]any{"updates": updates},
		}); err != nil {
			return err
		}
		loaded, err := repo.FindByID(ctx, id)
		if err != nil {
			return notFound(err, "load menu item")
		}
		item = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (s *Service) Delete(ctx context.Context, actor auth.Actor, id int64) error {
	if err := requireEditor(actor); err != nil {
		return err
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		item, err := repo.FindByID(ctx, id)
		if err != nil {
			return notFound(err, "load menu item")
		}
		if err := repo.Delete(ctx, id); err != nil {
			return notFound(err, "delete menu item")
		}
		return s.audit.Record(ctx, tx, adminlogs.Entry{
			AdminID:    actor.UserID,
			Action:     enums.AdminActionMenuItemDelete,
			TargetType: enums.AdminTargetMenuItem,
			TargetID:   adminlogs.TargetID(id),
			Details:    map[string]any{"name": item.Name},
		})
	})
}

func requireEditor(actor auth.Actor) error {
	if !actor.IsAuthenticated() {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if !actor.CanEditMenu() {
		return pkgerrors.New(pkgerrors.CodeForbidden, "menu editing requires admin")
	}
	return nil
}

func notFound(err error, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "menu item not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
}
