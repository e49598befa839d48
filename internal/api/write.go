package api

import (
	"net/http"

	"github.com/convoy-ops/convoy/internal/auth"
	"github.com/convoy-ops/convoy/internal/oops"
	"github.com/convoy-ops/convoy/internal/store"
	"github.com/convoy-ops/convoy/internal/types"
)

// handleWrite serves the mutation union. Resource mutations require Write on
// the target and record an Update; user, permission, and api key management
// carry their own admin rules.
func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request) {
	user, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	req, err := decodeRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	switch req.Type {
	case "CreateResource":
		s.writeCreate(w, user, req)
	case "UpdateResource":
		s.writeUpdateConfig(w, user, req)
	case "RenameResource":
		s.writeRename(w, user, req)
	case "DeleteResource":
		s.writeDelete(w, user, req)
	case "CopyResource":
		s.writeCopy(w, user, req)
	case "UpdateDescription":
		s.writeMeta(w, user, req, true)
	case "UpdateTagsOnResource":
		s.writeMeta(w, user, req, false)

	case "CreateTag":
		s.writeCreateTag(w, user, req)
	case "DeleteTag":
		s.writeDeleteTag(w, user, req)

	case "CreateVariable", "UpdateVariable":
		s.writeVariable(w, user, req)
	case "DeleteVariable":
		s.writeDeleteVariable(w, user, req)

	case "CreateUserGroup":
		s.writeCreateUserGroup(w, user, req)
	case "SetUsersInUserGroup":
		s.writeSetGroupUsers(w, user, req)
	case "DeleteUserGroup":
		s.writeDeleteUserGroup(w, user, req)

	case "UpdatePermission":
		s.writePermission(w, user, req)
	case "UpdateUserAdmin":
		s.writeUserAdmin(w, user, req)
	case "EnableUser":
		s.writeEnableUser(w, user, req)

	case "CreateApiKey":
		s.writeCreateApiKey(w, user, req)
	case "DeleteApiKey":
		s.writeDeleteApiKey(w, user, req)

	case "TestAlerter":
		s.writeTestAlerter(w, user, r, req)

	default:
		s.unknownType(w, "write", req.Type)
	}
}

type resourceParams struct {
	Type        types.ResourceType `json:"resource_type"`
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Tags        []string           `json:"tags"`
	Config      store.ConfigPatch  `json:"config"`
}

// checkTypeWrite gates resource creation: admin, or a type-wide Write grant
// (a permission against the type with an empty resource id).
func (s *Server) checkTypeWrite(user *types.User, typ types.ResourceType) error {
	return s.auth.CheckPermission(user, types.ResourceTarget{Type: typ}, types.LevelWrite)
}

// record persists an audit Update for a resource mutation.
func (s *Server) record(user *types.User, target types.ResourceTarget, op types.Operation, detail string) {
	u := s.pipeline.Make(target, op, user.ID)
	u.PushLog(types.SimpleLog(string(op), detail))
	if _, err := s.pipeline.Add(u); err != nil {
		s.log.Error("record update failed", "operation", string(op), "error", err.Error())
		return
	}
	if err := s.pipeline.Finalize(u); err != nil {
		s.log.Error("finalize update failed", "update", u.ID, "error", err.Error())
	}
}

func (s *Server) writeCreate(w http.ResponseWriter, user *types.User, req *request) {
	params, err := decodeParams[resourceParams](req)
	if err != nil {
		writeError(w, err)
		return
	}
	ops, ok := s.opsForType(params.Type)
	if !ok {
		writeError(w, oops.New(oops.InvalidConfig, "unknown resource type %q", params.Type))
		return
	}
	if err := s.checkTypeWrite(user, params.Type); err != nil {
		writeError(w, err)
		return
	}
	view, err := ops.create(params.Name, params.Description, params.Tags, params.Config)
	if err != nil {
		writeError(w, err)
		return
	}
	s.record(user, view.Target, types.OpCreateResource, "created "+view.Name)
	writeJSON(w, http.StatusOK, view.Resource)
}

func (s *Server) writeUpdateConfig(w http.ResponseWriter, user *types.User, req *request) {
	params, err := decodeParams[resourceParams](req)
	if err != nil {
		writeError(w, err)
		return
	}
	ops, view, ok := s.resolveWritable(w, user, params.Type, params.ID)
	if !ok {
		return
	}
	view, err = ops.updateConfig(params.ID, params.Config)
	if err != nil {
		writeError(w, err)
		return
	}
	s.record(user, view.Target, types.OpUpdateResource, "updated config of "+view.Name)
	writeJSON(w, http.StatusOK, view.Resource)
}

func (s *Server) writeRename(w http.ResponseWriter, user *types.User, req *request) {
	params, err := decodeParams[resourceParams](req)
	if err != nil {
		writeError(w, err)
		return
	}
	ops, view, ok := s.resolveWritable(w, user, params.Type, params.ID)
	if !ok {
		return
	}
	old := view.Name
	view, err = ops.rename(params.ID, params.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	s.record(user, view.Target, types.OpRenameResource, "renamed "+old+" to "+view.Name)
	writeJSON(w, http.StatusOK, view.Resource)
}

func (s *Server) writeDelete(w http.ResponseWriter, user *types.User, req *request) {
	params, err := decodeParams[resourceParams](req)
	if err != nil {
		writeError(w, err)
		return
	}
	ops, view, ok := s.resolveWritable(w, user, params.Type, params.ID)
	if !ok {
		return
	}
	if err := s.db.PreDelete(view.Target); err != nil {
		writeError(w, err)
		return
	}
	view, err = ops.remove(view.Target.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	// Drop the deleted resource's runtime state.
	s.state.Drop(view.Target)
	switch view.Target.Type {
	case types.ResourceServer:
		s.cache.Drop(view.Target.ID)
	case types.ResourceDeployment:
		s.cache.DropDeployment(view.Target.ID)
	case types.ResourceResourceSync:
		s.syncs.Drop(view.Target.ID)
	}

	s.record(user, view.Target, types.OpDeleteResource, "deleted "+view.Name)
	writeJSON(w, http.StatusOK, view.Resource)
}

func (s *Server) writeCopy(w http.ResponseWriter, user *types.User, req *request) {
	params, err := decodeParams[resourceParams](req)
	if err != nil {
		writeError(w, err)
		return
	}
	ops, view, ok := s.resolveWritable(w, user, params.Type, params.ID)
	if !ok {
		return
	}
	if err := s.checkTypeWrite(user, params.Type); err != nil {
		writeError(w, err)
		return
	}
	src := view.Name
	view, err = ops.copyTo(params.ID, params.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	s.record(user, view.Target, types.OpCreateResource, "copied from "+src)
	writeJSON(w, http.StatusOK, view.Resource)
}

func (s *Server) writeMeta(w http.ResponseWriter, user *types.User, req *request, description bool) {
	params, err := decodeParams[resourceParams](req)
	if err != nil {
		writeError(w, err)
		return
	}
	ops, view, ok := s.resolveWritable(w, user, params.Type, params.ID)
	if !ok {
		return
	}
	var desc *string
	var tags *[]string
	if description {
		desc = &params.Description
	} else {
		if params.Tags == nil {
			params.Tags = []string{}
		}
		tags = &params.Tags
	}
	view, err = ops.setMeta(view.Target.ID, desc, tags)
	if err != nil {
		writeError(w, err)
		return
	}
	s.record(user, view.Target, types.OpUpdateResource, "updated metadata of "+view.Name)
	writeJSON(w, http.StatusOK, view.Resource)
}

// resolveWritable loads a resource and checks Write on it, rendering any
// failure itself.
func (s *Server) resolveWritable(w http.ResponseWriter, user *types.User, typ types.ResourceType, id string) (*resourceOps, resourceView, bool) {
	ops, ok := s.opsForType(typ)
	if !ok {
		writeError(w, oops.New(oops.InvalidConfig, "unknown resource type %q", typ))
		return nil, resourceView{}, false
	}
	view, err := ops.get(id)
	if err != nil {
		writeError(w, err)
		return nil, resourceView{}, false
	}
	if err := s.auth.CheckPermission(user, view.Target, types.LevelWrite); err != nil {
		writeError(w, err)
		return nil, resourceView{}, false
	}
	return ops, view, true
}

func (s *Server) writeCreateTag(w http.ResponseWriter, user *types.User, req *request) {
	params, err := decodeParams[types.Tag](req)
	if err != nil {
		writeError(w, err)
		return
	}
	tag := params
	if err := s.db.CreateTag(&tag); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, &tag)
}

func (s *Server) writeDeleteTag(w http.ResponseWriter, user *types.User, req *request) {
	params, err := decodeParams[struct {
		ID string `json:"id"`
	}](req)
	if err != nil {
		writeError(w, err)
		return
	}
	tag, err := s.db.GetTag(params.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.db.DeleteTag(tag.ID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tag)
}

// writeVariable upserts a variable. Secret variables are admin only, both to
// create and to overwrite.
func (s *Server) writeVariable(w http.ResponseWriter, user *types.User, req *request) {
	params, err := decodeParams[types.Variable](req)
	if err != nil {
		writeError(w, err)
		return
	}
	if !user.Admin {
		if params.IsSecret {
			writeError(w, oops.New(oops.PermissionDenied, "secret variables require admin"))
			return
		}
		if existing, err := s.db.GetVariable(params.Name); err == nil && existing.IsSecret {
			writeError(w, oops.New(oops.PermissionDenied, "secret variables require admin"))
			return
		}
	}
	v := params
	if err := s.db.PutVariable(&v); err != nil {
		writeError(w, err)
		return
	}
	if v.IsSecret && !user.Admin {
		v.Value = ""
	}
	writeJSON(w, http.StatusOK, &v)
}

func (s *Server) writeDeleteVariable(w http.ResponseWriter, user *types.User, req *request) {
	params, err := decodeParams[struct {
		Name string `json:"name"`
	}](req)
	if err != nil {
		writeError(w, err)
		return
	}
	existing, err := s.db.GetVariable(params.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	if existing.IsSecret && !user.Admin {
		writeError(w, oops.New(oops.PermissionDenied, "secret variables require admin"))
		return
	}
	if err := s.db.DeleteVariable(params.Name); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": params.Name})
}

func (s *Server) writeCreateUserGroup(w http.ResponseWriter, user *types.User, req *request) {
	if !user.Admin {
		writeError(w, oops.New(oops.PermissionDenied, "managing user groups requires admin"))
		return
	}
	params, err := decodeParams[types.UserGroup](req)
	if err != nil {
		writeError(w, err)
		return
	}
	g := params
	if err := s.db.CreateUserGroup(&g); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, &g)
}

func (s *Server) writeSetGroupUsers(w http.ResponseWriter, user *types.User, req *request) {
	if !user.Admin {
		writeError(w, oops.New(oops.PermissionDenied, "managing user groups requires admin"))
		return
	}
	params, err := decodeParams[struct {
		Group string   `json:"group"`
		Users []string `json:"users"`
	}](req)
	if err != nil {
		writeError(w, err)
		return
	}
	g, err := s.db.GetUserGroup(params.Group)
	if err != nil {
		writeError(w, err)
		return
	}
	users := make([]string, 0, len(params.Users))
	for _, ref := range params.Users {
		if u, err := s.db.GetUser(ref); err == nil {
			users = append(users, u.ID)
			continue
		}
		u, err := s.db.GetUserByUsername(ref)
		if err != nil {
			writeError(w, err)
			return
		}
		users = append(users, u.ID)
	}
	g.Users = users
	if err := s.db.PutUserGroup(g); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) writeDeleteUserGroup(w http.ResponseWriter, user *types.User, req *request) {
	if !user.Admin {
		writeError(w, oops.New(oops.PermissionDenied, "managing user groups requires admin"))
		return
	}
	params, err := decodeParams[struct {
		ID string `json:"id"`
	}](req)
	if err != nil {
		writeError(w, err)
		return
	}
	g, err := s.db.GetUserGroup(params.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.db.DeleteUserGroup(g.ID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// writePermission upserts a grant. Admin only; grants on users touch the
// auth model, so non-admins never manage permissions.
func (s *Server) writePermission(w http.ResponseWriter, user *types.User, req *request) {
	if !user.Admin {
		writeError(w, oops.New(oops.PermissionDenied, "managing permissions requires admin"))
		return
	}
	params, err := decodeParams[types.Permission](req)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.db.PutPermission(params); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, params)
}

// writeUserAdmin toggles a user's admin bit. Super admin only, and the super
// admin bit itself is never writable over the API.
func (s *Server) writeUserAdmin(w http.ResponseWriter, user *types.User, req *request) {
	if !user.SuperAdmin {
		writeError(w, oops.New(oops.PermissionDenied, "managing admins requires super admin"))
		return
	}
	params, err := decodeParams[struct {
		UserID string `json:"user_id"`
		Admin  bool   `json:"admin"`
	}](req)
	if err != nil {
		writeError(w, err)
		return
	}
	target, err := s.db.GetUser(params.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	if target.SuperAdmin && !params.Admin {
		writeError(w, oops.New(oops.PermissionDenied, "cannot demote the super admin"))
		return
	}
	target.Admin = params.Admin
	if err := s.db.PutUser(target); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sanitizeUser(target))
}

func (s *Server) writeEnableUser(w http.ResponseWriter, user *types.User, req *request) {
	if !user.Admin {
		writeError(w, oops.New(oops.PermissionDenied, "enabling users requires admin"))
		return
	}
	params, err := decodeParams[struct {
		UserID  string `json:"user_id"`
		Enabled bool   `json:"enabled"`
	}](req)
	if err != nil {
		writeError(w, err)
		return
	}
	target, err := s.db.GetUser(params.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	if target.SuperAdmin && !params.Enabled {
		writeError(w, oops.New(oops.PermissionDenied, "cannot disable the super admin"))
		return
	}
	target.Enabled = params.Enabled
	if err := s.db.PutUser(target); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sanitizeUser(target))
}

// writeCreateApiKey mints a key for the requesting user. The secret is
// returned exactly once; only its hash is stored.
func (s *Server) writeCreateApiKey(w http.ResponseWriter, user *types.User, req *request) {
	params, err := decodeParams[struct {
		Name    string `json:"name"`
		Expires int64  `json:"expires"` // unix ms, 0 = never
	}](req)
	if err != nil {
		writeError(w, err)
		return
	}
	key, secret, secretHash, err := auth.GenerateAPIKey()
	if err != nil {
		writeError(w, oops.Wrap(oops.Internal, err, "generate api key"))
		return
	}
	record := &types.ApiKey{
		Key:        key,
		SecretHash: secretHash,
		UserID:     user.ID,
		Name:       params.Name,
		Expires:    params.Expires,
	}
	if err := s.db.CreateAPIKey(record); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"key": key, "secret": secret})
}

func (s *Server) writeDeleteApiKey(w http.ResponseWriter, user *types.User, req *request) {
	params, err := decodeParams[struct {
		Key string `json:"key"`
	}](req)
	if err != nil {
		writeError(w, err)
		return
	}
	record, err := s.db.GetAPIKey(params.Key)
	if err != nil {
		writeError(w, err)
		return
	}
	if record.UserID != user.ID && !user.Admin {
		writeError(w, oops.New(oops.PermissionDenied, "cannot delete another user's api key"))
		return
	}
	if err := s.db.DeleteAPIKey(params.Key); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": params.Key})
}

// writeTestAlerter fires a test alert through one alerter, skipping its
// filters, and reports the delivery result.
func (s *Server) writeTestAlerter(w http.ResponseWriter, user *types.User, r *http.Request, req *request) {
	params, err := decodeParams[struct {
		Alerter string `json:"alerter"`
	}](req)
	if err != nil {
		writeError(w, err)
		return
	}
	alerter, err := s.db.Alerters.Get(params.Alerter)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.auth.CheckPermission(user, alerter.Target(), types.LevelExecute); err != nil {
		writeError(w, err)
		return
	}
	if err := s.dispatcher.SendTest(r.Context(), alerter.ID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "delivered"})
}
