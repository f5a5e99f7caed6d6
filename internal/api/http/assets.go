package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"coldchain-rental-core/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	defaultDiscoverLimit = 100
	maxDiscoverLimit     = 500
)

// decodeAsset reads a tagged asset body: {"type": "COLD_BOX", ...fields}.
func decodeAsset(w http.ResponseWriter, r *http.Request) (domain.Asset, error) {
	var raw json.RawMessage
	if err := decodeJSON(w, r, &raw); err != nil {
		return nil, err
	}
	var tag struct {
		Type domain.AssetType `json:"type"`
	}
	if err := json.Unmarshal(raw, &tag); err != nil {
		return nil, domain.ValidationError("malformed request body: %v", err)
	}

	var asset domain.Asset
	switch tag.Type {
	case domain.AssetTypeColdRoom:
		asset = &domain.ColdRoom{}
	case domain.AssetTypeColdBox:
		asset = &domain.ColdBox{}
	case domain.AssetTypeColdPlate:
		asset = &domain.ColdPlate{}
	case domain.AssetTypeTricycle:
		asset = &domain.Tricycle{}
	default:
		return nil, domain.ValidationError("type must be one of COLD_ROOM, COLD_BOX, COLD_PLATE, TRICYCLE")
	}
	// The type tag is consumed above; the variant itself has no such field.
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, domain.ValidationError("malformed request body: %v", err)
	}
	delete(fields, "type")
	stripped, _ := json.Marshal(fields)
	dec := json.NewDecoder(bytes.NewReader(stripped))
	dec.DisallowUnknownFields()
	if err := dec.Decode(asset); err != nil {
		return nil, domain.ValidationError("malformed %s: %v", tag.Type, err)
	}
	return asset, nil
}

// assetView flattens a variant and adds its type tag.
func assetView(a domain.Asset) map[string]any {
	data, _ := json.Marshal(a)
	out := map[string]any{}
	_ = json.Unmarshal(data, &out)
	out["type"] = a.Type()
	if room, ok := a.(*domain.ColdRoom); ok {
		out["occupancy"] = room.Occupancy()
	}
	return out
}

func (h *handler) registerAsset(w http.ResponseWriter, r *http.Request) {
	asset, err := decodeAsset(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	created, err := h.Assets.RegisterAsset(r.Context(), mustActor(r), asset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, assetView(created))
}

func (h *handler) getAsset(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	a, err := h.Assets.GetAsset(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, assetView(a))
}

func (h *handler) updateAsset(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var patch domain.AssetPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, r, err)
		return
	}
	updated, err := h.Assets.UpdateAsset(r.Context(), mustActor(r), id, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, assetView(updated))
}

func (h *handler) retireAsset(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	retired, err := h.Assets.RetireAsset(r.Context(), mustActor(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, assetView(retired))
}

// discoverAssets returns at most limit matches; the client narrows with
// filters rather than paging.
func (h *handler) discoverAssets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	siteID, err := queryID(r, "site_id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	filter := domain.AssetFilter{
		SiteID: siteID,
		Type:   domain.AssetType(q.Get("type")),
		Status: domain.AssetStatus(q.Get("status")),
	}
	if filter.Type != "" && !filter.Type.Valid() {
		writeError(w, r, domain.ValidationError("unknown asset type %q", filter.Type))
		return
	}
	if filter.Status != "" && !filter.Status.Valid() {
		writeError(w, r, domain.ValidationError("unknown asset status %q", filter.Status))
		return
	}
	limit := defaultDiscoverLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, r, domain.ValidationError("limit must be a positive integer"))
			return
		}
		limit = min(n, maxDiscoverLimit)
	}

	items := make([]map[string]any, 0)
	for a, err := range h.Assets.Discover(r.Context(), filter) {
		if err != nil {
			writeError(w, r, err)
			return
		}
		items = append(items, assetView(a))
		if len(items) == limit {
			break
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

type capacityRequest struct {
	Kg decimal.Decimal `json:"kg"`
}

func (h *handler) occupancy(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	occ, err := h.Capacity.OccupancySnapshot(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, occ)
}

func (h *handler) reserveCapacity(w http.ResponseWriter, r *http.Request) {
	h.capacityOp(w, r, h.Capacity.Reserve)
}

func (h *handler) releaseCapacity(w http.ResponseWriter, r *http.Request) {
	h.capacityOp(w, r, h.Capacity.Release)
}

type capacityFunc func(ctx context.Context, actor domain.Actor, coldRoomID uuid.UUID, kg decimal.Decimal) (domain.Occupancy, error)

func (h *handler) capacityOp(w http.ResponseWriter, r *http.Request, op capacityFunc) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req capacityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	occ, err := op(r.Context(), mustActor(r), id, req.Kg)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, occ)
}
