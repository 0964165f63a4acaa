package controllers

import (
	"encoding/json"
	"errors"
	"io"
	"maps"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/os2mo/mora/modules/org/domain/projection"
	"github.com/os2mo/mora/modules/org/presentation/controllers/dtos"
	"github.com/os2mo/mora/modules/org/services"
	"github.com/os2mo/mora/pkg/application"
	"github.com/os2mo/mora/pkg/composables"
	"github.com/os2mo/mora/pkg/httpapi"
)

const idPattern = "{id:[0-9a-fA-F-]{36}}"

type OrgAPIController struct {
	app       application.Application
	org       *services.OrgService
	apiPrefix string
}

func NewOrgAPIController(app application.Application) application.Controller {
	return &OrgAPIController{
		app:       app,
		org:       app.Service(services.OrgService{}).(*services.OrgService),
		apiPrefix: "/service",
	}
}

func (c *OrgAPIController) Key() string {
	return c.apiPrefix
}

func (c *OrgAPIController) Register(r *mux.Router) {
	api := r.PathPrefix(c.apiPrefix).Subrouter()

	get := func(path, endpoint string, h http.HandlerFunc) {
		api.HandleFunc(path, c.instrumentAPI(endpoint, h)).Methods(http.MethodGet)
	}
	post := func(path, endpoint string, h http.HandlerFunc) {
		api.HandleFunc(path, c.instrumentAPI(endpoint, h)).Methods(http.MethodPost)
	}

	get("/o/", "o.list", c.ListOrganisations)
	get("/o/"+idPattern+"/", "o.get", c.GetOrganisation)
	get("/o/"+idPattern+"/children", "o.children", c.GetOrganisationChildren)
	get("/o/"+idPattern+"/ou/", "ou.list", c.ListOrgUnits)
	get("/o/"+idPattern+"/ou/tree", "ou.tree", c.OrgUnitTree)
	get("/o/"+idPattern+"/address_autocomplete/", "address.autocomplete", c.AddressAutocomplete)

	get("/ou/ancestor-tree", "ou.ancestor_tree", c.AncestorTree)
	get("/ou/"+idPattern+"/", "ou.get", c.GetOrgUnit)
	get("/ou/"+idPattern+"/children", "ou.children", c.GetOrgUnitChildren)
	get("/ou/"+idPattern+"/details/org_unit", "ou.effects", c.GetOrgUnitEffects)
	get("/ou/"+idPattern+"/details/address", "ou.addresses", c.GetOrgUnitAddresses)
	get("/ou/"+idPattern+"/history/", "ou.history", c.GetOrgUnitHistory)
	post("/ou/create", "ou.create", c.CreateOrgUnit)
	post("/ou/"+idPattern+"/edit", "ou.edit", c.EditOrgUnit)
	post("/ou/"+idPattern+"/terminate", "ou.terminate", c.TerminateOrgUnit)
	post("/ou/"+idPattern+"/address", "address.add", c.AddAddress)
	post("/ou/"+idPattern+"/address/edit", "address.edit", c.EditAddress)
	post("/ou/"+idPattern+"/engagements/move", "engagement.move_many", c.MoveEngagements)
	post("/ou/"+idPattern+"/settings", "settings.unit", c.SetUnitSetting)

	get("/e/"+idPattern+"/details/address", "e.addresses", c.GetEmployeeAddresses)
	post("/e/"+idPattern+"/terminate", "e.terminate", c.TerminateEmployee)

	post("/details/create/{kind:[a-z]+}", "details.create", c.CreateFunction)
	post("/details/"+idPattern+"/edit", "details.edit", c.EditFunction)
	post("/details/"+idPattern+"/terminate", "details.terminate", c.TerminateFunction)
	post("/details/"+idPattern+"/move", "details.move", c.MoveFunction)

	get("/c/"+idPattern+"/", "c.get", c.GetClass)
	post("/settings", "settings.global", c.SetGlobalSetting)
}

func (c *OrgAPIController) ListOrganisations(w http.ResponseWriter, r *http.Request) {
	q, ok := c.readQuery(w, r)
	if !ok {
		return
	}
	orgs, err := c.org.ListOrganisations(r.Context(), q)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orgs)
}

func (c *OrgAPIController) GetOrganisation(w http.ResponseWriter, r *http.Request) {
	id, q, ok := c.readIDAndQuery(w, r)
	if !ok {
		return
	}
	org, err := c.org.GetOneOrganisation(r.Context(), q, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, org)
}

func (c *OrgAPIController) GetOrganisationChildren(w http.ResponseWriter, r *http.Request) {
	c.children(w, r, services.ParentOrganisation)
}

func (c *OrgAPIController) GetOrgUnitChildren(w http.ResponseWriter, r *http.Request) {
	c.children(w, r, services.ParentUnit)
}

func (c *OrgAPIController) children(w http.ResponseWriter, r *http.Request, kind services.ParentKind) {
	id, q, ok := c.readIDAndQuery(w, r)
	if !ok {
		return
	}
	units, err := c.org.GetChildren(r.Context(), q, kind, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, units)
}

func (c *OrgAPIController) ListOrgUnits(w http.ResponseWriter, r *http.Request) {
	id, q, ok := c.readIDAndQuery(w, r)
	if !ok {
		return
	}
	start, err := intParam(r, "start")
	if err != nil {
		writeAPIError(w, r, http.StatusBadRequest, services.CodeInvalidInput, "start must be a non-negative integer", nil)
		return
	}
	limit, err := intParam(r, "limit")
	if err != nil {
		writeAPIError(w, r, http.StatusBadRequest, services.CodeInvalidInput, "limit must be a non-negative integer", nil)
		return
	}
	page, err := c.org.ListOrgUnits(r.Context(), q, id, services.ListParams{
		Start: start,
		Limit: limit,
		Query: r.URL.Query().Get("query"),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (c *OrgAPIController) OrgUnitTree(w http.ResponseWriter, r *http.Request) {
	id, q, ok := c.readIDAndQuery(w, r)
	if !ok {
		return
	}
	ids, ok := uuidParams(w, r)
	if !ok {
		return
	}
	tree, err := c.org.OrgUnitTree(r.Context(), q, id, ids, r.URL.Query().Get("query"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tree)
}

func (c *OrgAPIController) AncestorTree(w http.ResponseWriter, r *http.Request) {
	q, ok := c.readQuery(w, r)
	if !ok {
		return
	}
	ids, ok := uuidParams(w, r)
	if !ok {
		return
	}
	tree, err := c.org.AncestorTree(r.Context(), q, ids)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tree)
}

func (c *OrgAPIController) AddressAutocomplete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	term := strings.TrimSpace(r.URL.Query().Get("q"))
	if term == "" {
		writeAPIError(w, r, http.StatusBadRequest, services.CodeInvalidInput, "q is required", nil)
		return
	}
	global := r.URL.Query().Get("global") == "1" || strings.EqualFold(r.URL.Query().Get("global"), "true")
	items, err := c.org.AddressAutocomplete(r.Context(), id, term, global)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// GetOrgUnit renders one unit at the detail level named by ?details=.
func (c *OrgAPIController) GetOrgUnit(w http.ResponseWriter, r *http.Request) {
	id, q, ok := c.readIDAndQuery(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	var (
		unit any
		err  error
	)
	switch details := r.URL.Query().Get("details"); details {
	case "minimal":
		unit, err = c.org.GetMinimalUnit(ctx, q, id)
	case "nchildren":
		unit, err = c.org.GetUnitWithChildCount(ctx, q, id)
	case "self":
		unit, err = c.org.GetSelfUnit(ctx, q, id)
	case "", "full":
		unit, err = c.org.GetFullUnit(ctx, q, id)
	case "integration":
		unit, err = c.org.GetIntegrationUnit(ctx, q, id)
	default:
		writeAPIError(w, r, http.StatusBadRequest, services.CodeInvalidInput, "unknown detail level", map[string]any{"details": details})
		return
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, unit)
}

func (c *OrgAPIController) GetOrgUnitEffects(w http.ResponseWriter, r *http.Request) {
	id, q, ok := c.readIDAndQuery(w, r)
	if !ok {
		return
	}
	units, err := c.org.GetOrgUnitEffects(r.Context(), q, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, units)
}

func (c *OrgAPIController) GetOrgUnitAddresses(w http.ResponseWriter, r *http.Request) {
	c.addresses(w, r, services.OwnerUnit)
}

func (c *OrgAPIController) GetEmployeeAddresses(w http.ResponseWriter, r *http.Request) {
	c.addresses(w, r, services.OwnerEmployee)
}

func (c *OrgAPIController) addresses(w http.ResponseWriter, r *http.Request, owner services.AddressOwner) {
	id, q, ok := c.readIDAndQuery(w, r)
	if !ok {
		return
	}
	addrs, err := c.org.GetAddresses(r.Context(), q, owner, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, addrs)
}

func (c *OrgAPIController) GetOrgUnitHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	history, err := c.org.GetOrgUnitHistory(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (c *OrgAPIController) CreateOrgUnit(w http.ResponseWriter, r *http.Request) {
	var dto dtos.CreateOrgUnitDTO
	if !decodeBody(w, r, &dto) {
		return
	}
	id, err := c.org.CreateOrgUnit(r.Context(), dto.ToService())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, id)
}

func (c *OrgAPIController) EditOrgUnit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var dto dtos.EditOrgUnitDTO
	if !decodeBody(w, r, &dto) {
		return
	}
	if err := c.org.EditOrgUnit(r.Context(), id, dto.ToService()); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, id)
}

func (c *OrgAPIController) TerminateOrgUnit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var dto dtos.TerminateDTO
	if !decodeBody(w, r, &dto) {
		return
	}
	if err := c.org.TerminateOrgUnit(r.Context(), id, dto.Validity.ToService()); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, id)
}

func (c *OrgAPIController) AddAddress(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var dto dtos.AddAddressDTO
	if !decodeBody(w, r, &dto) {
		return
	}
	if err := c.org.AddAddress(r.Context(), id, dto.AddressDTO.ToService(), dto.Validity.ToService()); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, id)
}

func (c *OrgAPIController) EditAddress(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var dto dtos.EditAddressDTO
	if !decodeBody(w, r, &dto) {
		return
	}
	if err := c.org.EditAddress(r.Context(), id, dto.ToService()); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, id)
}

func (c *OrgAPIController) MoveEngagements(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var dto dtos.MoveEngagementsDTO
	if !decodeBody(w, r, &dto) {
		return
	}
	created, err := c.org.MoveEngagements(r.Context(), services.MoveEngagementsRequest{
		OrgUnit: id,
		Date:    dto.Date,
		Present: dto.Present,
		Future:  dto.Future,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if created == nil {
		created = []uuid.UUID{}
	}
	writeJSON(w, http.StatusOK, created)
}

func (c *OrgAPIController) TerminateEmployee(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var dto dtos.TerminateDTO
	if !decodeBody(w, r, &dto) {
		return
	}
	n, err := c.org.TerminateEmployee(r.Context(), id, dto.Validity.ToService())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	type terminateEmployeeResponse struct {
		UUID       uuid.UUID `json:"uuid"`
		Terminated int       `json:"terminated"`
	}
	writeJSON(w, http.StatusOK, terminateEmployeeResponse{UUID: id, Terminated: n})
}

func (c *OrgAPIController) CreateFunction(w http.ResponseWriter, r *http.Request) {
	kind := services.FunctionKind(mux.Vars(r)["kind"])
	var dto dtos.CreateFunctionDTO
	if !decodeBody(w, r, &dto) {
		return
	}
	id, err := c.org.CreateFunction(r.Context(), kind, dto.ToService())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, id)
}

func (c *OrgAPIController) EditFunction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var dto dtos.EditFunctionDTO
	if !decodeBody(w, r, &dto) {
		return
	}
	if err := c.org.EditFunction(r.Context(), id, dto.ToService()); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, id)
}

func (c *OrgAPIController) TerminateFunction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var dto dtos.TerminateDTO
	if !decodeBody(w, r, &dto) {
		return
	}
	if err := c.org.TerminateFunction(r.Context(), id, dto.Validity.ToService()); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, id)
}

func (c *OrgAPIController) MoveFunction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var dto dtos.MoveFunctionDTO
	if !decodeBody(w, r, &dto) {
		return
	}
	if err := c.org.MoveFunction(r.Context(), id, dto.OrgUnit.UUID, dto.Validity.From); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, id)
}

func (c *OrgAPIController) GetClass(w http.ResponseWriter, r *http.Request) {
	id, q, ok := c.readIDAndQuery(w, r)
	if !ok {
		return
	}
	class, err := c.org.GetOneClass(r.Context(), q, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, class)
}

func (c *OrgAPIController) SetGlobalSetting(w http.ResponseWriter, r *http.Request) {
	c.setSetting(w, r, nil)
}

func (c *OrgAPIController) SetUnitSetting(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	c.setSetting(w, r, &id)
}

func (c *OrgAPIController) setSetting(w http.ResponseWriter, r *http.Request, unitID *uuid.UUID) {
	var dto dtos.SettingDTO
	if !decodeBody(w, r, &dto) {
		return
	}
	if err := c.org.SetSetting(r.Context(), unitID, dto.Key, dto.Value); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

func (c *OrgAPIController) readQuery(w http.ResponseWriter, r *http.Request) (projection.Query, bool) {
	q, err := c.org.ParseQuery(r.URL.Query().Get("at"), r.URL.Query().Get("validity"))
	if err != nil {
		writeServiceError(w, r, err)
		return projection.Query{}, false
	}
	return q, true
}

func (c *OrgAPIController) readIDAndQuery(w http.ResponseWriter, r *http.Request) (uuid.UUID, projection.Query, bool) {
	id, ok := pathID(w, r)
	if !ok {
		return uuid.Nil, projection.Query{}, false
	}
	q, ok := c.readQuery(w, r)
	return id, q, ok
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := mux.Vars(r)["id"]
	id, err := uuid.Parse(raw)
	if err != nil {
		writeAPIError(w, r, http.StatusBadRequest, services.CodeInvalidInput, "invalid uuid", map[string]any{"uuid": raw})
		return uuid.Nil, false
	}
	return id, true
}

func uuidParams(w http.ResponseWriter, r *http.Request) ([]uuid.UUID, bool) {
	raw := r.URL.Query()["uuid"]
	ids := make([]uuid.UUID, 0, len(raw))
	for _, v := range raw {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part == "" {
				continue
			}
			id, err := uuid.Parse(part)
			if err != nil {
				writeAPIError(w, r, http.StatusBadRequest, services.CodeInvalidInput, "invalid uuid", map[string]any{"uuid": part})
				return nil, false
			}
			ids = append(ids, id)
		}
	}
	return ids, true
}

func intParam(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, errors.New("negative")
	}
	return n, nil
}

// decodeBody reads and validates a JSON body, answering 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := decodeJSON(r.Body, out); err != nil {
		writeAPIError(w, r, http.StatusBadRequest, services.CodeInvalidInput, "invalid json body", map[string]any{"error": err.Error()})
		return false
	}
	if fields, ok := dtos.Ok(out); !ok {
		meta := make(map[string]any, len(fields))
		for k, v := range fields {
			meta[k] = v
		}
		writeAPIError(w, r, http.StatusBadRequest, services.CodeInvalidInput, "invalid request", meta)
		return false
	}
	return true
}

func decodeJSON(body io.ReadCloser, out any) error {
	if body == nil {
		return io.EOF
	}
	defer func() { _ = body.Close() }()
	return json.NewDecoder(body).Decode(out)
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var svcErr *services.ServiceError
	if errors.As(err, &svcErr) {
		status := svcErr.Status
		if svcErr.Code == services.CodeTerminateWithChildren {
			status = http.StatusConflict
		}
		if status >= http.StatusInternalServerError {
			logError(r, err)
		}
		writeAPIError(w, r, status, svcErr.Code, svcErr.Message, svcErr.Meta)
		return
	}
	logError(r, err)
	writeAPIError(w, r, http.StatusInternalServerError, "E_INTERNAL", "internal server error", nil)
}

func logError(r *http.Request, err error) {
	if logger, lerr := composables.UseLogger(r.Context()); lerr == nil {
		logger.WithError(err).Error("request failed")
	}
}

func writeAPIError(w http.ResponseWriter, r *http.Request, status int, code, message string, meta map[string]any) {
	if requestID := composables.UseRequestID(r.Context()); requestID != "" {
		meta = maps.Clone(meta)
		if meta == nil {
			meta = map[string]any{}
		}
		meta["request_id"] = requestID
	}
	_ = httpapi.WriteError(w, status, code, message, meta)
}

func writeJSON[T any](w http.ResponseWriter, status int, payload T) {
	if err := httpapi.WriteJSON(w, status, payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
