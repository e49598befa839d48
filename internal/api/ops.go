package api

import (
	"github.com/convoy-ops/convoy/internal/store"
	"github.com/convoy-ops/convoy/internal/types"
)

// resourceView type-erases a typed resource for the dispatch table.
type resourceView struct {
	Target   types.ResourceTarget
	Name     string
	Resource any
}

// resourceOps is one resource type's CRUD surface, type-erased over the
// generic collection so /read and /write dispatch by ResourceType.
type resourceOps struct {
	listItems    func(types.Query) ([]types.ListItem, error)
	get          func(idOrName string) (resourceView, error)
	create       func(name, description string, tags []string, patch store.ConfigPatch) (resourceView, error)
	updateConfig func(id string, patch store.ConfigPatch) (resourceView, error)
	rename       func(id, newName string) (resourceView, error)
	remove       func(id string) (resourceView, error)
	setMeta      func(id string, description *string, tags *[]string) (resourceView, error)
	copyTo       func(srcID, newName string) (resourceView, error)
}

func opsFor[C, I any](col *store.Collection[C, I]) *resourceOps {
	view := func(res *types.Resource[C, I]) resourceView {
		return resourceView{Target: res.Target(), Name: res.Name, Resource: res}
	}
	return &resourceOps{
		listItems: col.ListItems,
		get: func(idOrName string) (resourceView, error) {
			res, err := col.Get(idOrName)
			if err != nil {
				return resourceView{}, err
			}
			return view(res), nil
		},
		create: func(name, description string, tags []string, patch store.ConfigPatch) (resourceView, error) {
			var zero C
			cfg, err := store.ApplyPatch(zero, patch)
			if err != nil {
				return resourceView{}, err
			}
			res, err := col.Create(name, description, tags, cfg)
			if err != nil {
				return resourceView{}, err
			}
			return view(res), nil
		},
		updateConfig: func(id string, patch store.ConfigPatch) (resourceView, error) {
			res, err := col.UpdateConfig(id, patch)
			if err != nil {
				return resourceView{}, err
			}
			return view(res), nil
		},
		rename: func(id, newName string) (resourceView, error) {
			res, err := col.Rename(id, newName)
			if err != nil {
				return resourceView{}, err
			}
			return view(res), nil
		},
		remove: func(id string) (resourceView, error) {
			res, err := col.Delete(id)
			if err != nil {
				return resourceView{}, err
			}
			return view(res), nil
		},
		setMeta: func(id string, description *string, tags *[]string) (resourceView, error) {
			res, err := col.Get(id)
			if err != nil {
				return resourceView{}, err
			}
			if description != nil {
				res.Description = *description
			}
			if tags != nil {
				res.Tags = *tags
			}
			if err := col.Put(res); err != nil {
				return resourceView{}, err
			}
			return view(res), nil
		},
		copyTo: func(srcID, newName string) (resourceView, error) {
			src, err := col.Get(srcID)
			if err != nil {
				return resourceView{}, err
			}
			res, err := col.Create(newName, src.Description, src.Tags, src.Config)
			if err != nil {
				return resourceView{}, err
			}
			return view(res), nil
		},
	}
}

// opsForType resolves the dispatch entry for a resource type.
func (s *Server) opsForType(typ types.ResourceType) (*resourceOps, bool) {
	ops, ok := s.resources[typ]
	return ops, ok
}
