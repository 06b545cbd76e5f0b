package workorders

import (
	"encoding/json"
	"errors"
	"net/http"

	"partsdesk/internal/audit"
	"partsdesk/internal/fulfillment"
	"partsdesk/internal/response"
)

// ApproveParts handles POST /api/v1/workorder-lines/:id/approve-parts.
// Success responses keep the approval contract shape rather than the
// generic data envelope.
func (h *Handler) ApproveParts(w http.ResponseWriter, r *http.Request, lineID string) {
	var body struct {
		Parts                    []fulfillment.PartNeed `json:"parts"`
		SupplierID               string                 `json:"supplierId"`
		CreateDraftPoWhenMissing *bool                  `json:"createDraftPoWhenMissing"`
		Note                     string                 `json:"note"`
	}
	if err := response.DecodeBody(r, &body); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}

	spawnPO := true
	if body.CreateDraftPoWhenMissing != nil {
		spawnPO = *body.CreateDraftPoWhenMissing
	}

	username := audit.GetUsername(h.DB, r)
	res, err := h.Engine.ApproveWithParts(fulfillment.ApproveRequest{
		WorkOrderLineID: lineID,
		Parts:           body.Parts,
		SupplierID:      body.SupplierID,
		SpawnPO:         spawnPO,
		Note:            body.Note,
		ApprovedBy:      username,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}

	audit.LogAudit(h.DB, h.Hub, username, "approved", "workorder_line", lineID,
		"Approved parts on line "+lineID)
	if res.POID != "" {
		audit.LogAudit(h.DB, h.Hub, username, "created", "po", res.POID,
			"Auto-generated PO "+res.POID+" for line "+lineID)
	}

	var poID interface{}
	if res.POID != "" {
		poID = res.POID
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"ok":              true,
		"workOrderLineId": res.WorkOrderLineID,
		"workOrderId":     res.WorkOrderID,
		"shopId":          res.ShopID,
		"locationId":      res.LocationID,
		"allocated":       res.Allocated,
		"missing":         res.Missing,
		"poId":            poID,
		"line_status":     res.LineStatus,
		"unresolvedParts": res.UnresolvedParts,
	})
}

func writeEngineError(w http.ResponseWriter, err error) {
	var ve *fulfillment.ValidationError
	var nf *fulfillment.NotFoundError
	var di *fulfillment.DataIntegrityError
	var ms *fulfillment.MissingSupplierError
	var se *fulfillment.StorageError
	switch {
	case errors.As(err, &ve):
		response.Err(w, ve.Error(), 400)
	case errors.As(err, &nf):
		response.Err(w, nf.Error(), 404)
	case errors.As(err, &di):
		response.Err(w, di.Error(), 400)
	case errors.As(err, &ms):
		response.ErrDetails(w, "no supplier resolvable for shortfall",
			map[string]interface{}{"unresolvedParts": ms.UnresolvedParts}, 400)
	case errors.As(err, &se):
		response.ErrDetails(w, "storage error", se.Error(), 500)
	default:
		response.Err(w, err.Error(), 500)
	}
}
