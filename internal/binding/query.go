package binding

import (
	"context"

	"smartinlet/internal/access"
	"smartinlet/internal/apperr"
	"smartinlet/internal/models"
	"smartinlet/internal/paging"
	"smartinlet/internal/repo"
)

// ListInlets: клапаны группы; доступно любому участнику.
func (e *Engine) ListInlets(ctx context.Context, groupName, query string, p paging.Page) (paging.Result[repo.InletView], error) {
	g, err := e.memberGroup(ctx, groupName)
	if err != nil {
		return paging.Result[repo.InletView]{}, err
	}
	items, total, err := e.stores.Inlets.List(ctx, &g.ID, query, p)
	if err != nil {
		return paging.Result[repo.InletView]{}, err
	}
	return paging.NewResult(items, p, total), nil
}

// ListSensors: датчики вида kind в группе.
func (e *Engine) ListSensors(ctx context.Context, groupName string, kind models.DeviceKind, query string, p paging.Page) (paging.Result[repo.SensorView], error) {
	if !kind.IsSensor() {
		return paging.Result[repo.SensorView]{}, apperr.Validation("unknown sensor type %q", kind)
	}
	g, err := e.memberGroup(ctx, groupName)
	if err != nil {
		return paging.Result[repo.SensorView]{}, err
	}
	items, total, err := e.stores.Sensors.List(ctx, kind, &g.ID, query, p)
	if err != nil {
		return paging.Result[repo.SensorView]{}, err
	}
	return paging.NewResult(items, p, total), nil
}

// AdminListInlets: все клапаны.
func (e *Engine) AdminListInlets(ctx context.Context, query string, p paging.Page) (paging.Result[repo.InletView], error) {
	if _, err := access.RequireDeviceAdmin(ctx); err != nil {
		return paging.Result[repo.InletView]{}, err
	}
	items, total, err := e.stores.Inlets.List(ctx, nil, query, p)
	if err != nil {
		return paging.Result[repo.InletView]{}, err
	}
	return paging.NewResult(items, p, total), nil
}

// AdminListSensors: все датчики вида kind.
func (e *Engine) AdminListSensors(ctx context.Context, kind models.DeviceKind, query string, p paging.Page) (paging.Result[repo.SensorView], error) {
	if !kind.IsSensor() {
		return paging.Result[repo.SensorView]{}, apperr.Validation("unknown sensor type %q", kind)
	}
	if _, err := access.RequireDeviceAdmin(ctx); err != nil {
		return paging.Result[repo.SensorView]{}, err
	}
	items, total, err := e.stores.Sensors.List(ctx, kind, nil, query, p)
	if err != nil {
		return paging.Result[repo.SensorView]{}, err
	}
	return paging.NewResult(items, p, total), nil
}

func (e *Engine) memberGroup(ctx context.Context, groupName string) (*models.Group, error) {
	actor, err := access.Actor(ctx)
	if err != nil {
		return nil, err
	}
	g, err := e.stores.Groups.ByName(ctx, groupName)
	if err != nil {
		return nil, err
	}
	if _, err := e.stores.Members.Get(ctx, g.ID, actor.UserID); err != nil {
		return nil, err
	}
	return g, nil
}
