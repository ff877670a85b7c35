package dto

import (
	"kardex/internal/core/id"
	"kardex/internal/domain/recalc"
)

// RecalculateUnitRequest recalculates one stock unit from a date.
type RecalculateUnitRequest struct {
	FromDate string `json:"fromDate" binding:"required"`
	Reason   string `json:"reason"`
}

// ToRequest builds the run request for unitID.
func (r *RecalculateUnitRequest) ToRequest(ownerID, unitID id.ID) (recalc.Request, error) {
	from, err := ParseDate("fromDate", r.FromDate)
	if err != nil {
		return recalc.Request{}, err
	}
	return recalc.Request{
		OwnerID: ownerID,
		Reason:  reasonOrDefault(r.Reason),
		Units:   []recalc.UnitRequest{{UnitID: unitID, FromDate: from}},
	}, nil
}

// RecalculationUnit is one unit of a multi-unit run.
type RecalculationUnit struct {
	StockUnitID string `json:"stockUnitId" binding:"required"`
	FromDate    string `json:"fromDate" binding:"required"`
}

// RecalculationRequest recalculates several units in one transaction.
// Units that fail are rolled back individually and reported.
type RecalculationRequest struct {
	Reason string              `json:"reason"`
	Units  []RecalculationUnit `json:"units" binding:"required,min=1,dive"`
}

// ToRequest builds the run request.
func (r *RecalculationRequest) ToRequest(ownerID id.ID) (recalc.Request, error) {
	req := recalc.Request{
		OwnerID: ownerID,
		Reason:  reasonOrDefault(r.Reason),
		Units:   make([]recalc.UnitRequest, 0, len(r.Units)),
	}
	for _, u := range r.Units {
		unitID, err := ParseID("stockUnitId", u.StockUnitID)
		if err != nil {
			return recalc.Request{}, err
		}
		from, err := ParseDate("fromDate", u.FromDate)
		if err != nil {
			return recalc.Request{}, err
		}
		req.Units = append(req.Units, recalc.UnitRequest{UnitID: unitID, FromDate: from})
	}
	return req, nil
}

func reasonOrDefault(reason string) string {
	if reason == "" {
		return "manual recalculation"
	}
	return reason
}
