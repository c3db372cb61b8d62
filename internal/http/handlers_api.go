package http

import (
	"errors"
	"net/http"

	"fundportal/internal/core"
	"fundportal/internal/middleware/auth"
	"fundportal/internal/services"
)

// Masters

func (s *Server) handleAPIListMasters(w http.ResponseWriter, r *http.Request) {
	kind, err := core.ParseMasterKind(r.PathValue("kind"))
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	records, err := s.svc.Masters.List(r.Context(), kind, r.URL.Query().Get("active") == "true")
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	out := make([]masterJSON, 0, len(records))
	for _, m := range records {
		out = append(out, toMasterJSON(m))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAPICreateMaster(w http.ResponseWriter, r *http.Request) {
	m, err := parseMaster(w, r)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	created, err := s.svc.Masters.Create(r.Context(), auth.PrincipalFrom(r.Context()), m)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMasterJSON(created))
}

func (s *Server) handleAPIUpdateMaster(w http.ResponseWriter, r *http.Request) {
	m, err := parseMaster(w, r)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	if m.ID, err = pathID(r, "id"); err != nil {
		writeAPIError(w, r, err)
		return
	}
	if _, err := s.svc.Masters.Get(r.Context(), m.Kind, m.ID); err != nil {
		writeAPIError(w, r, err)
		return
	}
	updated, err := s.svc.Masters.Update(r.Context(), auth.PrincipalFrom(r.Context()), m)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMasterJSON(updated))
}

func (s *Server) handleAPIDeleteMaster(w http.ResponseWriter, r *http.Request) {
	kind, err := core.ParseMasterKind(r.PathValue("kind"))
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	if _, err := s.svc.Masters.Get(r.Context(), kind, id); err != nil {
		writeAPIError(w, r, err)
		return
	}
	if err := s.svc.Masters.Delete(r.Context(), auth.PrincipalFrom(r.Context()), id); err != nil {
		writeAPIError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// parseMaster reads a master record; the kind comes from the path. Records
// are active unless the body says otherwise.
func parseMaster(w http.ResponseWriter, r *http.Request) (core.MasterRecord, error) {
	kind, err := core.ParseMasterKind(r.PathValue("kind"))
	if err != nil {
		return core.MasterRecord{}, err
	}
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		return core.MasterRecord{}, err
	}
	m := core.MasterRecord{
		Kind:       kind,
		Code:       p.Get("code"),
		Name:       p.Get("name"),
		FundSource: p.Get("fund_source"),
		Active:     !p.Has("active") || p.Bool("active"),
	}
	if m.DistrictID, err = p.Int64("district_id"); err != nil {
		return core.MasterRecord{}, err
	}
	if kind == core.KindTax {
		if m.Rate, err = core.ParsePercent(p.Get("rate")); err != nil {
			return core.MasterRecord{}, err
		}
	}
	return m, nil
}

// Works

func (s *Server) handleAPIListWorks(w http.ResponseWriter, r *http.Request) {
	f, err := ParseFilter(r.URL.Query())
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	rows, err := s.svc.Masters.ListWorks(r.Context(), auth.PrincipalFrom(r.Context()), f)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	out := make([]workJSON, 0, len(rows))
	for _, row := range rows {
		out = append(out, toWorkRowJSON(row))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAPICreateWork(w http.ResponseWriter, r *http.Request) {
	in, err := parseWorkInput(w, r)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	created, err := s.svc.Masters.CreateWork(r.Context(), auth.PrincipalFrom(r.Context()), in)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toWorkJSON(created))
}

func (s *Server) handleAPIUpdateWork(w http.ResponseWriter, r *http.Request) {
	in, err := parseWorkInput(w, r)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	if in.ID, err = pathID(r, "id"); err != nil {
		writeAPIError(w, r, err)
		return
	}
	updated, err := s.svc.Masters.UpdateWork(r.Context(), auth.PrincipalFrom(r.Context()), in)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toWorkJSON(updated))
}

func (s *Server) handleAPIDeleteWork(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	if err := s.svc.Masters.DeleteWork(r.Context(), auth.PrincipalFrom(r.Context()), id); err != nil {
		writeAPIError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAPIAssignAgency hands a work to an implementing agency.
func (s *Server) handleAPIAssignAgency(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		writeAPIError(w, r, err)
		return
	}
	var ids [3]int64
	for i, key := range []string{"work_id", "agency_id", "version"} {
		v, err := p.Int64(key)
		if err != nil {
			writeAPIError(w, r, err)
			return
		}
		ids[i] = v
	}
	updated, err := s.svc.Masters.AssignAgency(r.Context(), auth.PrincipalFrom(r.Context()), ids[0], ids[1], ids[2])
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toWorkJSON(updated))
}

func parseWorkInput(w http.ResponseWriter, r *http.Request) (services.WorkInput, error) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		return services.WorkInput{}, err
	}
	in := services.WorkInput{
		Title:        p.Get("title"),
		Constituency: p.Get("constituency"),
	}
	var err error
	if v := p.Get("fy"); v != "" {
		if in.FY, err = core.ParseFinancialYear(v); err != nil {
			return services.WorkInput{}, err
		}
	}
	if v := p.Get("status"); v != "" {
		if in.Status, err = core.ParseWorkStatus(v); err != nil {
			return services.WorkInput{}, err
		}
	}
	for key, dst := range map[string]*int64{
		"version":           &in.Version,
		"scheme_id":         &in.SchemeID,
		"district_id":       &in.DistrictID,
		"agency_id":         &in.AgencyID,
		"representative_id": &in.RepresentativeID,
	} {
		if *dst, err = p.Int64(key); err != nil {
			return services.WorkInput{}, err
		}
	}
	if in.AAAmount, err = p.Money("aa_amount"); err != nil {
		return services.WorkInput{}, err
	}
	return in, nil
}

// Vendor assignment

func (s *Server) handleAPIQuote(w http.ResponseWriter, r *http.Request) {
	in, err := parseAssignInput(w, r)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	q, err := s.svc.Assignment.Quote(r.Context(), auth.PrincipalFrom(r.Context()), in)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toQuoteJSON(q))
}

// AssignRefusal is the 422 body of a refused assignment. It carries the
// recomputed breakdown so the client can show why.
type AssignRefusal struct {
	Error string    `json:"error"`
	Quote QuoteJSON `json:"quote"`
}

// AssignResponse is the body of a successful assignment.
type AssignResponse struct {
	Work  workJSON  `json:"work"`
	Quote QuoteJSON `json:"quote"`
}

func (s *Server) handleAPIAssignVendor(w http.ResponseWriter, r *http.Request) {
	in, err := parseAssignInput(w, r)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	work, q, err := s.svc.Assignment.Assign(r.Context(), auth.PrincipalFrom(r.Context()), in)
	if errors.Is(err, core.ErrNotAssignable) && q.WorkID != 0 {
		s.appMetrics.refused.Add(1)
		logError(r, err, http.StatusUnprocessableEntity)
		writeJSON(w, http.StatusUnprocessableEntity, AssignRefusal{Error: err.Error(), Quote: toQuoteJSON(q)})
		return
	}
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	s.appMetrics.assignments.Add(1)
	writeJSON(w, http.StatusOK, AssignResponse{Work: toWorkJSON(work), Quote: toQuoteJSON(q)})
}

func (s *Server) handleAPIUnassignVendor(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	work, err := s.svc.Assignment.Unassign(r.Context(), auth.PrincipalFrom(r.Context()), id)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toWorkJSON(work))
}

func parseAssignInput(w http.ResponseWriter, r *http.Request) (services.AssignInput, error) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		return services.AssignInput{}, err
	}
	return assignInputFrom(p)
}

func assignInputFrom(p *RequestBodyParser) (services.AssignInput, error) {
	var in services.AssignInput
	var err error
	if in.WorkID, err = p.Int64("work_id"); err != nil {
		return in, err
	}
	if in.VendorID, err = p.Int64("vendor_id"); err != nil {
		return in, err
	}
	if in.Version, err = p.Int64("version"); err != nil {
		return in, err
	}
	portionKey := "portion_amount"
	if !p.Has(portionKey) {
		portionKey = "portion"
	}
	if in.Portion, err = p.Money(portionKey); err != nil {
		return in, err
	}
	if in.TaxIDs, err = p.IDs("tax_ids"); err != nil {
		return in, err
	}
	return in, nil
}

// Vendors

func (s *Server) handleAPIListVendors(w http.ResponseWriter, r *http.Request) {
	var status core.VendorStatus
	if v := r.URL.Query().Get("status"); !core.IsAll(v) {
		var err error
		if status, err = core.ParseVendorStatus(v); err != nil {
			writeAPIError(w, r, err)
			return
		}
	}
	vendors, err := s.svc.Vendors.List(r.Context(), auth.PrincipalFrom(r.Context()), status)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	out := make([]vendorJSON, 0, len(vendors))
	for _, v := range vendors {
		out = append(out, toVendorJSON(v))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAPIGetVendor(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	v, err := s.svc.Vendors.Get(r.Context(), auth.PrincipalFrom(r.Context()), id)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toVendorJSON(v))
}

func (s *Server) handleAPIRegisterVendor(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		writeAPIError(w, r, err)
		return
	}
	v, err := vendorFrom(p)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	created, err := s.svc.Vendors.Register(r.Context(), auth.PrincipalFrom(r.Context()), v)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toVendorJSON(created))
}

// handleAPIUpdateVendor replaces the registration details. Responses only
// carry the masked Aadhaar, so an empty one keeps the stored number.
func (s *Server) handleAPIUpdateVendor(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		writeAPIError(w, r, err)
		return
	}
	v, err := vendorFrom(p)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	principal := auth.PrincipalFrom(r.Context())
	v.ID = id
	if v.Aadhaar == "" {
		old, err := s.svc.Vendors.Get(r.Context(), principal, id)
		if err != nil {
			writeAPIError(w, r, err)
			return
		}
		v.Aadhaar = old.Aadhaar
	}
	updated, err := s.svc.Vendors.Update(r.Context(), principal, v)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toVendorJSON(updated))
}

func (s *Server) handleAPIVendorStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		writeAPIError(w, r, err)
		return
	}
	status, err := core.ParseVendorStatus(p.Get("status"))
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	v, err := s.svc.Vendors.SetStatus(r.Context(), auth.PrincipalFrom(r.Context()), id, status, p.Bool("payment_eligible"))
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toVendorJSON(v))
}

func vendorFrom(p *RequestBodyParser) (core.Vendor, error) {
	v := core.Vendor{
		Name:     p.Get("name"),
		FirmName: p.Get("firm_name"),
		Aadhaar:  p.Get("aadhaar"),
		GSTIN:    p.Get("gstin"),
		PAN:      p.Get("pan"),
		Mobile:   p.Get("mobile"),
		Email:    p.Get("email"),
		Address:  p.Text("address"),
		Bank: core.BankDetails{
			AccountHolder: p.Get("account_holder"),
			AccountNumber: p.Get("account_number"),
			IFSC:          p.Get("ifsc"),
			BankName:      p.Get("bank_name"),
			Branch:        p.Get("branch"),
		},
	}
	var err error
	v.DistrictID, err = p.Int64("district_id")
	return v, err
}

// Demands

func (s *Server) handleAPIListDemands(w http.ResponseWriter, r *http.Request) {
	f, err := ParseFilter(r.URL.Query())
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	list, err := s.svc.Demands.List(r.Context(), auth.PrincipalFrom(r.Context()), f)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDemandListJSON(list))
}

func (s *Server) handleAPIGetDemand(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	row, err := s.svc.Demands.Get(r.Context(), auth.PrincipalFrom(r.Context()), id)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDemandRowJSON(row))
}

func (s *Server) handleAPISubmitDemand(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		writeAPIError(w, r, err)
		return
	}
	in, err := submitInputFrom(p)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	d, err := s.svc.Demands.Submit(r.Context(), auth.PrincipalFrom(r.Context()), in)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	s.appMetrics.submitted.Add(1)
	writeJSON(w, http.StatusCreated, toDemandJSON(d))
}

// handleAPIDemandAction applies approve, reject, send-back or resubmit. The
// services check who may do which.
func (s *Server) handleAPIDemandAction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		writeAPIError(w, r, err)
		return
	}
	d, err := s.act(r, p, id)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDemandJSON(d))
}

func (s *Server) act(r *http.Request, p *RequestBodyParser, id int64) (core.Demand, error) {
	action, err := services.ParseAction(p.Get("action"))
	if err != nil {
		return core.Demand{}, err
	}
	amt, err := p.Money("amount")
	if err != nil {
		return core.Demand{}, err
	}
	d, err := s.svc.Demands.Act(r.Context(), auth.PrincipalFrom(r.Context()), id, action, p.Text("remark"), amt)
	if err != nil {
		return core.Demand{}, err
	}
	if action != services.ActionResubmit {
		s.appMetrics.decided.Add(1)
	}
	return d, nil
}

func submitInputFrom(p *RequestBodyParser) (services.SubmitInput, error) {
	in := services.SubmitInput{Remark: p.Text("remark")}
	var err error
	if in.WorkID, err = p.Int64("work_id"); err != nil {
		return in, err
	}
	if in.Amount, err = p.Money("amount"); err != nil {
		return in, err
	}
	if v := p.Get("date"); v != "" {
		if in.Date, err = core.ParseDate(v); err != nil {
			return in, err
		}
	}
	return in, nil
}

// Dashboards

func (s *Server) handleAPIRepresentativeDashboard(role core.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fy, repID, err := dashboardParams(r, "representative_id")
		if err != nil {
			writeAPIError(w, r, err)
			return
		}
		d, err := s.svc.Reports.RepresentativeDashboard(r.Context(), auth.PrincipalFrom(r.Context()), role, repID, fy)
		if err != nil {
			writeAPIError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toRepresentativeDashboardJSON(d))
	}
}

func (s *Server) handleAPIVendorDashboard(w http.ResponseWriter, r *http.Request) {
	fy, vendorID, err := dashboardParams(r, "vendor_id")
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	d, err := s.svc.Reports.VendorDashboard(r.Context(), auth.PrincipalFrom(r.Context()), vendorID, fy)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toVendorDashboardJSON(d))
}

func (s *Server) handleAPIDistrictDashboard(w http.ResponseWriter, r *http.Request) {
	fy, districtID, err := dashboardParams(r, "district_id")
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	d, err := s.svc.Reports.DistrictDashboard(r.Context(), auth.PrincipalFrom(r.Context()), districtID, fy)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDistrictDashboardJSON(d))
}

func dashboardParams(r *http.Request, idKey string) (core.FinancialYear, int64, error) {
	q := r.URL.Query()
	fy, err := ParseFY(q)
	if err != nil {
		return "", 0, err
	}
	id, err := parseID(idKey, q.Get(idKey))
	return fy, id, err
}

// Budget

func (s *Server) handleAPIListBudget(w http.ResponseWriter, r *http.Request) {
	f, err := ParseFilter(r.URL.Query())
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	view, err := s.svc.Budget.List(r.Context(), auth.PrincipalFrom(r.Context()), f)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBudgetJSON(view))
}

func (s *Server) handleAPIAllocate(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		writeAPIError(w, r, err)
		return
	}
	a, err := allocationFrom(p)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	created, err := s.svc.Budget.Allocate(r.Context(), auth.PrincipalFrom(r.Context()), a)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBudgetRowJSON(core.BudgetRow{BudgetAllocation: created}))
}

func (s *Server) handleAPIDeleteAllocation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	if err := s.svc.Budget.Delete(r.Context(), auth.PrincipalFrom(r.Context()), id); err != nil {
		writeAPIError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func allocationFrom(p *RequestBodyParser) (core.BudgetAllocation, error) {
	a := core.BudgetAllocation{Remark: p.Text("remark")}
	var err error
	if a.FY, err = core.ParseFinancialYear(p.Get("fy")); err != nil {
		return a, err
	}
	if a.SchemeID, err = p.Int64("scheme_id"); err != nil {
		return a, err
	}
	if a.DistrictID, err = p.Int64("district_id"); err != nil {
		return a, err
	}
	if a.RepresentativeID, err = p.Int64("representative_id"); err != nil {
		return a, err
	}
	if a.Amount, err = p.Money("amount"); err != nil {
		return a, err
	}
	return a, nil
}
