package api

import (
	"net/http"
	"strings"

	"github.com/convoy-ops/convoy/internal/oops"
	"github.com/convoy-ops/convoy/internal/store"
	"github.com/convoy-ops/convoy/internal/types"
)

// handleRead serves the query union. Every operation requires an
// authenticated user; per-resource operations additionally require Read on
// the target, and listings are filtered down to readable resources.
func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	user, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	req, err := decodeRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	// Resource CRUD reads dispatch by name: GetServer, ListDeployments, ...
	if typ, isList, ok := parseResourceRead(req.Type); ok {
		if isList {
			s.readList(w, user, typ, req)
		} else {
			s.readGet(w, user, typ, req)
		}
		return
	}

	switch req.Type {
	case "GetVersion":
		writeJSON(w, http.StatusOK, map[string]string{"version": Version})

	case "GetCoreInfo":
		writeJSON(w, http.StatusOK, map[string]any{
			"version":             Version,
			"monitoring_interval": s.cfg.MonitoringInterval.String(),
			"github_webhook_base": s.cfg.Host + "/listener/github",
		})

	case "GetServerStatus":
		s.readServerStatus(w, user, req)

	case "ListContainers":
		s.readContainers(w, user, req)

	case "GetActionState":
		params, err := decodeParams[struct {
			Target types.ResourceTarget `json:"target"`
		}](req)
		if err != nil {
			writeError(w, err)
			return
		}
		if err := s.auth.CheckPermission(user, params.Target, types.LevelRead); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s.state.Get(params.Target))

	case "GetUpdate":
		s.readUpdate(w, user, req)

	case "ListUpdates":
		s.readUpdates(w, user, req)

	case "ListAlerts":
		s.readAlerts(w, user, req)

	case "ListTags":
		tags, err := s.db.ListTags()
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, tags)

	case "ListVariables":
		s.readVariables(w, user)

	case "ListUserGroups":
		s.readUserGroups(w, user)

	case "ListUsers":
		if !user.Admin {
			writeError(w, oops.New(oops.PermissionDenied, "listing users requires admin"))
			return
		}
		users, err := s.db.ListUsers()
		if err != nil {
			writeError(w, err)
			return
		}
		out := make([]*types.User, 0, len(users))
		for _, u := range users {
			out = append(out, sanitizeUser(u))
		}
		writeJSON(w, http.StatusOK, out)

	case "ListApiKeys":
		keys, err := s.db.ListAPIKeysForUser(user.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		for _, k := range keys {
			k.SecretHash = ""
		}
		writeJSON(w, http.StatusOK, keys)

	case "ListPermissions":
		s.readPermissions(w, user, req)

	case "GetSyncPreview":
		s.readSyncPreview(w, user, r, req)

	case "ExportResourcesToml":
		s.readExport(w, user, req)

	default:
		s.unknownType(w, "read", req.Type)
	}
}

// parseResourceRead maps "GetServer" / "ListDeployments" style names onto
// resource types.
func parseResourceRead(reqType string) (types.ResourceType, bool, bool) {
	if name, ok := strings.CutPrefix(reqType, "List"); ok {
		if typ, ok := resourceTypeFromPlural(name); ok {
			return typ, true, true
		}
		return "", false, false
	}
	if name, ok := strings.CutPrefix(reqType, "Get"); ok {
		typ := types.ResourceType(name)
		for _, t := range types.AllResourceTypes() {
			if t == typ {
				return typ, false, true
			}
		}
	}
	return "", false, false
}

func resourceTypeFromPlural(plural string) (types.ResourceType, bool) {
	singular, ok := strings.CutSuffix(plural, "s")
	if !ok {
		return "", false
	}
	typ := types.ResourceType(singular)
	for _, t := range types.AllResourceTypes() {
		if t == typ {
			return typ, true
		}
	}
	return "", false
}

func (s *Server) readList(w http.ResponseWriter, user *types.User, typ types.ResourceType, req *request) {
	ops, ok := s.opsForType(typ)
	if !ok {
		s.unknownType(w, "read", req.Type)
		return
	}
	query, err := decodeParams[types.Query](req)
	if err != nil {
		writeError(w, err)
		return
	}
	items, err := ops.listItems(query)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.filterReadable(user, items))
}

func (s *Server) readGet(w http.ResponseWriter, user *types.User, typ types.ResourceType, req *request) {
	ops, ok := s.opsForType(typ)
	if !ok {
		s.unknownType(w, "read", req.Type)
		return
	}
	params, err := decodeParams[struct {
		ID string `json:"id"`
	}](req)
	if err != nil {
		writeError(w, err)
		return
	}
	view, err := ops.get(params.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.auth.CheckPermission(user, view.Target, types.LevelRead); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view.Resource)
}

// filterReadable drops list items the user cannot read. Admins skip the
// per-item permission joins.
func (s *Server) filterReadable(user *types.User, items []types.ListItem) []types.ListItem {
	if user.Admin {
		return items
	}
	out := make([]types.ListItem, 0, len(items))
	for _, item := range items {
		target := types.ResourceTarget{Type: item.Type, ID: item.ID}
		level, err := s.auth.Level(user, target)
		if err == nil && level.Meets(types.LevelRead) {
			out = append(out, item)
		}
	}
	return out
}

func (s *Server) readServerStatus(w http.ResponseWriter, user *types.User, req *request) {
	params, err := decodeParams[struct {
		Server string `json:"server"`
	}](req)
	if err != nil {
		writeError(w, err)
		return
	}
	server, err := s.db.Servers.Get(params.Server)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.auth.CheckPermission(user, server.Target(), types.LevelRead); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.cache.ServerStatus(server.ID))
}

func (s *Server) readContainers(w http.ResponseWriter, user *types.User, req *request) {
	params, err := decodeParams[struct {
		Server string `json:"server"`
	}](req)
	if err != nil {
		writeError(w, err)
		return
	}
	server, err := s.db.Servers.Get(params.Server)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.auth.CheckPermission(user, server.Target(), types.LevelRead); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.cache.Containers(server.ID))
}

func (s *Server) readUpdate(w http.ResponseWriter, user *types.User, req *request) {
	params, err := decodeParams[struct {
		ID string `json:"id"`
	}](req)
	if err != nil {
		writeError(w, err)
		return
	}
	u, err := s.db.GetUpdate(params.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.auth.CheckPermission(user, u.Target, types.LevelRead); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) readUpdates(w http.ResponseWriter, user *types.User, req *request) {
	query, err := decodeParams[store.UpdateQuery](req)
	if err != nil {
		writeError(w, err)
		return
	}
	list, err := s.db.ListUpdates(query)
	if err != nil {
		writeError(w, err)
		return
	}
	items := make([]types.UpdateListItem, 0, len(list))
	for _, u := range list {
		if !user.Admin {
			level, err := s.auth.Level(user, u.Target)
			if err != nil || !level.Meets(types.LevelRead) {
				continue
			}
		}
		item := types.UpdateListItem{
			ID:        u.ID,
			Target:    u.Target,
			Operation: u.Operation,
			Operator:  u.Operator,
			Status:    u.Status,
			Success:   u.Success,
			StartTS:   u.StartTS,
			Version:   u.Version,
		}
		if op, err := s.db.GetUser(u.Operator); err == nil {
			item.Username = op.Username
		}
		items = append(items, item)
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) readAlerts(w http.ResponseWriter, user *types.User, req *request) {
	query, err := decodeParams[store.AlertQuery](req)
	if err != nil {
		writeError(w, err)
		return
	}
	alerts, err := s.db.ListAlerts(query)
	if err != nil {
		writeError(w, err)
		return
	}
	if !user.Admin {
		filtered := alerts[:0]
		for _, a := range alerts {
			level, err := s.auth.Level(user, a.Target)
			if err == nil && level.Meets(types.LevelRead) {
				filtered = append(filtered, a)
			}
		}
		alerts = filtered
	}
	writeJSON(w, http.StatusOK, alerts)
}

// readVariables lists variables, masking secret values for non-admins.
func (s *Server) readVariables(w http.ResponseWriter, user *types.User) {
	vars, err := s.db.ListVariables()
	if err != nil {
		writeError(w, err)
		return
	}
	for _, v := range vars {
		if v.IsSecret && !user.Admin {
			v.Value = ""
		}
	}
	writeJSON(w, http.StatusOK, vars)
}

// readUserGroups lists all groups for admins, membership groups otherwise.
func (s *Server) readUserGroups(w http.ResponseWriter, user *types.User) {
	if user.Admin {
		groups, err := s.db.ListUserGroups()
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, groups)
		return
	}
	groups, err := s.db.GroupsForUser(user.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

func (s *Server) readPermissions(w http.ResponseWriter, user *types.User, req *request) {
	params, err := decodeParams[struct {
		Subject types.PermissionSubject `json:"subject"`
	}](req)
	if err != nil {
		writeError(w, err)
		return
	}
	if params.Subject.ID == "" {
		params.Subject = types.PermissionSubject{Type: types.SubjectUser, ID: user.ID}
	}
	self := params.Subject.Type == types.SubjectUser && params.Subject.ID == user.ID
	if !self && !user.Admin {
		writeError(w, oops.New(oops.PermissionDenied, "listing others' permissions requires admin"))
		return
	}
	perms, err := s.db.PermissionsForSubject(params.Subject)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, perms)
}

func (s *Server) readSyncPreview(w http.ResponseWriter, user *types.User, r *http.Request, req *request) {
	params, err := decodeParams[struct {
		Sync string `json:"sync"`
	}](req)
	if err != nil {
		writeError(w, err)
		return
	}
	sync, err := s.db.Syncs.Get(params.Sync)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.auth.CheckPermission(user, sync.Target(), types.LevelRead); err != nil {
		writeError(w, err)
		return
	}
	plan, err := s.syncs.PreviewSync(r.Context(), sync)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// readExport renders state as a TOML sync document. Admin only: the export
// spans every resource including secrets in configs.
func (s *Server) readExport(w http.ResponseWriter, user *types.User, req *request) {
	if !user.Admin {
		writeError(w, oops.New(oops.PermissionDenied, "export requires admin"))
		return
	}
	query, err := decodeParams[types.Query](req)
	if err != nil {
		writeError(w, err)
		return
	}
	doc, err := s.syncs.Export(query)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"toml": string(doc)})
}
