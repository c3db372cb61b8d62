package http

import (
	"bytes"
	"context"
	"errors"
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"fundportal/internal/core"
	"fundportal/internal/log"
	"fundportal/internal/middleware/auth"
	"fundportal/internal/remarks"
	"fundportal/internal/services"
)

// pageData is what every full page template receives.
type pageData struct {
	Title  string
	Next   string
	Error  string
	Active string
	User   core.Principal
	FY     core.FinancialYear
	Years  []core.FinancialYear
	Query  url.Values

	Districts []core.MasterRecord
	Schemes   []core.MasterRecord
	Agencies  []core.MasterRecord
	Taxes     []core.MasterRecord

	Data any
}

// dashboardView is the body of the dashboard; exactly one section is set.
type dashboardView struct {
	Representative *core.RepresentativeDashboard
	Vendor         *core.VendorDashboard
	District       *core.DistrictDashboard
	Works          []services.WorkRow
}

type assignView struct {
	Row     services.WorkRow
	Vendors []core.Vendor
	Taxes   []core.MasterRecord
	Quote   core.Quote
}

type demandsView struct {
	List  services.DemandList
	Works []services.WorkRow
}

type masterSection struct {
	Kind    core.MasterKind
	Records []core.MasterRecord
}

// selectView feeds the master_select template.
type selectView struct {
	Name    string
	Records []core.MasterRecord
	Current string
}

type budgetView struct {
	services.BudgetView
	Representatives []core.User
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"inr":    func(m core.Money) string { return m.String() },
		"rupees": func(m core.Money) string { return m.Decimal() },
		"pct":    func(b core.BasisPoints) string { return b.String() },
		"date":   func(d core.Date) string { return d.String() },
		"ts": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("02 Jan 2006 15:04")
		},
		"can": func(p core.Principal, perm string) bool {
			return p.Can(core.Permission(perm))
		},
		"remark": remarks.Render,
		"id":     func(v int64) string { return strconv.FormatInt(v, 10) },
		"sel": func(q url.Values, key, value string) bool {
			return q.Get(key) == value
		},
		"list": func(v ...string) []string { return v },
		"opts": func(name string, records []core.MasterRecord, current string) selectView {
			return selectView{Name: name, Records: records, Current: current}
		},
		"hasTax": func(ids []int64, id int64) bool {
			for _, v := range ids {
				if v == id {
					return true
				}
			}
			return false
		},
	}
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, name string, data any) {
	s.renderStatus(w, r, http.StatusOK, name, data)
}

// renderStatus executes name into a buffer so a failing template never sends
// half a page.
func (s *Server) renderStatus(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	body, err := s.execute(r, name, data)
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func (s *Server) execute(r *http.Request, name string, data any) ([]byte, error) {
	if s.templates == nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Templates not loaded")
		return nil, errors.New("templates not loaded")
	}
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Template execution failed",
			"template", name,
			log.FieldError, err,
			"error_type", log.ErrorTypeInternal)
		return nil, err
	}
	return buf.Bytes(), nil
}

// renderError shows a full error page for browser navigation.
func (s *Server) renderError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	logError(r, err, status)
	s.renderStatus(w, r, status, "error.html", pageData{
		Title: http.StatusText(status),
		Error: errorMessage(err, status),
		User:  auth.PrincipalFrom(r.Context()),
	})
}

// page fills the common fields. Master lists feed the filter dropdowns; a
// failure to load them only leaves the dropdowns empty.
func (s *Server) page(r *http.Request, title, active string) pageData {
	q := r.URL.Query()
	fy, err := ParseFY(q)
	if err != nil || fy == "" {
		fy = s.svc.Reports.DefaultFY("")
	}
	pd := pageData{
		Title:  title,
		Active: active,
		User:   auth.PrincipalFrom(r.Context()),
		FY:     fy,
		Years:  core.RecentFinancialYears(time.Now(), 5),
		Query:  q,
	}
	for kind, dst := range map[core.MasterKind]*[]core.MasterRecord{
		core.KindDistrict: &pd.Districts,
		core.KindScheme:   &pd.Schemes,
		core.KindAgency:   &pd.Agencies,
		core.KindTax:      &pd.Taxes,
	} {
		records, err := s.svc.Masters.List(r.Context(), kind, true)
		if err != nil {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Loading dropdown failed", "kind", string(kind), log.FieldError, err)
			continue
		}
		*dst = records
	}
	return pd
}

// uiFilter reads the filter query; a page always has a financial year.
func (s *Server) uiFilter(r *http.Request) (core.Filter, error) {
	f, err := ParseFilter(r.URL.Query())
	if err != nil {
		return core.Filter{}, err
	}
	if f.FY == "" && !r.URL.Query().Has("fy") {
		f.FY = s.svc.Reports.DefaultFY("")
	}
	return f, nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if auth.PrincipalFrom(r.Context()).UserID != 0 {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// Dashboard

func (s *Server) handleDashboardPage(w http.ResponseWriter, r *http.Request) {
	pd := s.page(r, "Dashboard", "dashboard")
	view, err := s.dashboardFor(r.Context(), pd)
	if err != nil {
		if statusFor(err) >= http.StatusInternalServerError {
			s.renderError(w, r, err)
			return
		}
		pd.Error = errorMessage(err, statusFor(err))
	}
	pd.Data = view
	s.render(w, r, "dashboard.html", pd)
}

func (s *Server) handleDashboardPartial(w http.ResponseWriter, r *http.Request) {
	pd := s.page(r, "Dashboard", "dashboard")
	view, err := s.dashboardFor(r.Context(), pd)
	if err != nil {
		writeUIError(w, r, err)
		return
	}
	pd.Data = view
	s.render(w, r, "dashboard_body", pd)
}

// dashboardFor picks the dashboard of the caller's role. Administrators
// choose a district and default to the first one.
func (s *Server) dashboardFor(ctx context.Context, pd pageData) (dashboardView, error) {
	p := pd.User
	var view dashboardView
	switch p.Role {
	case core.RoleMLA, core.RoleMLC:
		d, err := s.svc.Reports.RepresentativeDashboard(ctx, p, p.Role, 0, pd.FY)
		if err != nil {
			return view, err
		}
		view.Representative = &d
	case core.RoleVendor:
		d, err := s.svc.Reports.VendorDashboard(ctx, p, 0, pd.FY)
		if err != nil {
			return view, err
		}
		view.Vendor = &d
	case core.RoleIA:
		rows, err := s.svc.Assignment.ListWorks(ctx, p, core.Filter{FY: pd.FY})
		if err != nil {
			return view, err
		}
		view.Works = rows
	default:
		districtID, err := parseID("district_id", pd.Query.Get("district_id"))
		if err != nil {
			return view, err
		}
		if districtID == 0 && p.Role == core.RoleAdmin {
			if len(pd.Districts) == 0 {
				return view, nil
			}
			districtID = pd.Districts[0].ID
		}
		d, err := s.svc.Reports.DistrictDashboard(ctx, p, districtID, pd.FY)
		if err != nil {
			return view, err
		}
		view.District = &d
	}
	return view, nil
}

// Works

func (s *Server) handleWorksPage(w http.ResponseWriter, r *http.Request) {
	pd := s.page(r, "Works", "works")
	rows, err := s.workRows(r)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	pd.Data = rows
	s.render(w, r, "works.html", pd)
}

func (s *Server) handleWorksPartial(w http.ResponseWriter, r *http.Request) {
	pd := s.page(r, "Works", "works")
	rows, err := s.workRows(r)
	if err != nil {
		writeUIError(w, r, err)
		return
	}
	pd.Data = rows
	s.render(w, r, "works_table", pd)
}

func (s *Server) workRows(r *http.Request) ([]services.WorkRow, error) {
	f, err := s.uiFilter(r)
	if err != nil {
		return nil, err
	}
	return s.svc.Masters.ListWorks(r.Context(), auth.PrincipalFrom(r.Context()), f)
}

func (s *Server) handleUICreateWork(w http.ResponseWriter, r *http.Request) {
	in, err := parseWorkInput(w, r)
	if err != nil {
		writeUIError(w, r, err)
		return
	}
	created, err := s.svc.Masters.CreateWork(r.Context(), auth.PrincipalFrom(r.Context()), in)
	if err != nil {
		writeUIError(w, r, err)
		return
	}
	SuccessResponse("Work "+created.Title+" created").
		TriggerWorksChanged().
		TriggerFormReset().
		Write(w)
}

// handleAssignForm shows the vendor assignment form with the current
// breakdown of the work.
func (s *Server) handleAssignForm(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeUIError(w, r, err)
		return
	}
	p := auth.PrincipalFrom(r.Context())
	view, err := s.assignView(r.Context(), p, id)
	if err != nil {
		writeUIError(w, r, err)
		return
	}
	pd := s.page(r, "Assign vendor", "works")
	pd.Data = view
	s.render(w, r, "assign_form", pd)
}

func (s *Server) assignView(ctx context.Context, p core.Principal, workID int64) (assignView, error) {
	rows, err := s.svc.Assignment.ListWorks(ctx, p, core.Filter{})
	if err != nil {
		return assignView{}, err
	}
	var view assignView
	found := false
	for _, row := range rows {
		if row.ID == workID {
			view.Row, found = row, true
			break
		}
	}
	if !found {
		return assignView{}, core.ErrNotFound
	}
	if view.Vendors, err = s.svc.Vendors.List(ctx, p, core.VendorActive); err != nil {
		return assignView{}, err
	}
	if view.Taxes, err = s.svc.Masters.List(ctx, core.KindTax, true); err != nil {
		return assignView{}, err
	}
	view.Quote, err = s.svc.Assignment.Quote(ctx, p, services.AssignInput{
		WorkID:   workID,
		VendorID: view.Row.VendorID,
		Portion:  view.Row.PortionAmount,
		TaxIDs:   view.Row.TaxIDs,
	})
	return view, err
}

// handleUIQuote recomputes the breakdown as the assignment form changes.
func (s *Server) handleUIQuote(w http.ResponseWriter, r *http.Request) {
	in, err := parseAssignInput(w, r)
	if err != nil {
		writeUIError(w, r, err)
		return
	}
	q, err := s.svc.Assignment.Quote(r.Context(), auth.PrincipalFrom(r.Context()), in)
	if err != nil {
		writeUIError(w, r, err)
		return
	}
	s.render(w, r, "quote_panel", q)
}

func (s *Server) handleUIAssign(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeUIError(w, r, err)
		return
	}
	in, err := parseAssignInput(w, r)
	if err != nil {
		writeUIError(w, r, err)
		return
	}
	in.WorkID = id
	work, q, err := s.svc.Assignment.Assign(r.Context(), auth.PrincipalFrom(r.Context()), in)
	if errors.Is(err, core.ErrNotAssignable) && q.WorkID != 0 {
		s.appMetrics.refused.Add(1)
		logError(r, err, http.StatusUnprocessableEntity)
		body, rerr := s.execute(r, "quote_panel", q)
		if rerr != nil {
			writeUIError(w, r, err)
			return
		}
		NewHTMXResponse().
			Status(http.StatusUnprocessableEntity).
			BodyHTML(string(body)).
			TriggerErrorNotification(err.Error()).
			Write(w)
		return
	}
	if err != nil {
		writeUIError(w, r, err)
		return
	}
	s.appMetrics.assignments.Add(1)
	SuccessResponse("Vendor assigned").
		TriggerWorkAssigned(work).
		TriggerWorksChanged().
		Write(w)
}

// Demands

func (s *Server) handleDemandsPage(w http.ResponseWriter, r *http.Request) {
	pd := s.page(r, "Fund demands", "demands")
	view, err := s.demandsView(r)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	pd.Data = view
	s.render(w, r, "demands.html", pd)
}

func (s *Server) handleDemandsPartial(w http.ResponseWriter, r *http.Request) {
	pd := s.page(r, "Fund demands", "demands")
	view, err := s.demandsView(r)
	if err != nil {
		writeUIError(w, r, err)
		return
	}
	pd.Data = view
	s.render(w, r, "demands_table", pd)
}

// demandsView lists the filtered register. Agencies also get the works they
// can raise a demand against.
func (s *Server) demandsView(r *http.Request) (demandsView, error) {
	f, err := s.uiFilter(r)
	if err != nil {
		return demandsView{}, err
	}
	p := auth.PrincipalFrom(r.Context())
	list, err := s.svc.Demands.List(r.Context(), p, f)
	if err != nil {
		return demandsView{}, err
	}
	view := demandsView{List: list}
	if p.Can(core.PermSubmitDemand) {
		rows, err := s.svc.Assignment.ListWorks(r.Context(), p, core.Filter{})
		if err != nil {
			return demandsView{}, err
		}
		for _, row := range rows {
			if row.HasVendor() && row.Demandable.IsPositive() && row.Status != core.WorkCompleted {
				view.Works = append(view.Works, row)
			}
		}
	}
	return view, nil
}

func (s *Server) handleUISubmitDemand(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		writeUIError(w, r, err)
		return
	}
	in, err := submitInputFrom(p)
	if err != nil {
		writeUIError(w, r, err)
		return
	}
	d, err := s.svc.Demands.Submit(r.Context(), auth.PrincipalFrom(r.Context()), in)
	if err != nil {
		writeUIError(w, r, err)
		return
	}
	s.appMetrics.submitted.Add(1)
	SuccessResponse("Demand "+d.Reference+" submitted").
		TriggerDemandChanged(d).
		TriggerFormReset().
		Write(w)
}

func (s *Server) handleUIDemandAction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeUIError(w, r, err)
		return
	}
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		writeUIError(w, r, err)
		return
	}
	d, err := s.act(r, p, id)
	if err != nil {
		writeUIError(w, r, err)
		return
	}
	SuccessResponse("Demand "+d.Reference+" is now "+string(d.Status)).
		TriggerDemandChanged(d).
		Write(w)
}

// Vendors

func (s *Server) handleVendorsPage(w http.ResponseWriter, r *http.Request) {
	pd := s.page(r, "Vendors", "vendors")
	var status core.VendorStatus
	if v := pd.Query.Get("status"); !core.IsAll(v) {
		var err error
		if status, err = core.ParseVendorStatus(v); err != nil {
			s.renderError(w, r, err)
			return
		}
	}
	vendors, err := s.svc.Vendors.List(r.Context(), pd.User, status)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	pd.Data = vendors
	s.render(w, r, "vendors.html", pd)
}

func (s *Server) handleUIRegisterVendor(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		writeUIError(w, r, err)
		return
	}
	v, err := vendorFrom(p)
	if err != nil {
		writeUIError(w, r, err)
		return
	}
	created, err := s.svc.Vendors.Register(r.Context(), auth.PrincipalFrom(r.Context()), v)
	if err != nil {
		writeUIError(w, r, err)
		return
	}
	SuccessResponse("Vendor "+created.DisplayName()+" registered").
		TriggerVendorsChanged().
		TriggerFormReset().
		Write(w)
}

func (s *Server) handleUIVendorStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeUIError(w, r, err)
		return
	}
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		writeUIError(w, r, err)
		return
	}
	status, err := core.ParseVendorStatus(p.Get("status"))
	if err != nil {
		writeUIError(w, r, err)
		return
	}
	v, err := s.svc.Vendors.SetStatus(r.Context(), auth.PrincipalFrom(r.Context()), id, status, p.Bool("payment_eligible"))
	if err != nil {
		writeUIError(w, r, err)
		return
	}
	SuccessResponse(v.DisplayName() + " is " + string(v.Status)).
		TriggerVendorsChanged().
		Write(w)
}

// Masters

func (s *Server) handleMastersPage(w http.ResponseWriter, r *http.Request) {
	pd := s.page(r, "Masters", "masters")
	var sections []masterSection
	for _, kind := range []core.MasterKind{core.KindDistrict, core.KindScheme, core.KindAgency, core.KindTax} {
		records, err := s.svc.Masters.List(r.Context(), kind, false)
		if err != nil {
			s.renderError(w, r, err)
			return
		}
		sections = append(sections, masterSection{Kind: kind, Records: records})
	}
	pd.Data = sections
	s.render(w, r, "masters.html", pd)
}

func (s *Server) handleUICreateMaster(w http.ResponseWriter, r *http.Request) {
	m, err := parseMaster(w, r)
	if err != nil {
		writeUIError(w, r, err)
		return
	}
	created, err := s.svc.Masters.Create(r.Context(), auth.PrincipalFrom(r.Context()), m)
	if err != nil {
		writeUIError(w, r, err)
		return
	}
	SuccessResponse(created.Kind.Label()+" "+created.Name+" added").
		TriggerMastersChanged(created.Kind).
		TriggerFormReset().
		Write(w)
}

func (s *Server) handleUIDeleteMaster(w http.ResponseWriter, r *http.Request) {
	kind, err := core.ParseMasterKind(r.PathValue("kind"))
	if err != nil {
		writeUIError(w, r, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeUIError(w, r, err)
		return
	}
	m, err := s.svc.Masters.Get(r.Context(), kind, id)
	if err != nil {
		writeUIError(w, r, err)
		return
	}
	if err := s.svc.Masters.Delete(r.Context(), auth.PrincipalFrom(r.Context()), id); err != nil {
		writeUIError(w, r, err)
		return
	}
	SuccessResponse(kind.Label() + " " + m.Name + " deleted").
		TriggerMastersChanged(kind).
		Write(w)
}

// Budget

func (s *Server) handleBudgetPage(w http.ResponseWriter, r *http.Request) {
	pd := s.page(r, "Budget", "budget")
	f, err := s.uiFilter(r)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	list, err := s.svc.Budget.List(r.Context(), pd.User, f)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	view := budgetView{BudgetView: list}
	if pd.User.Can(core.PermManageBudget) {
		for _, role := range []core.Role{core.RoleMLA, core.RoleMLC} {
			users, err := s.svc.Auth.ListUsers(r.Context(), role)
			if err != nil {
				s.renderError(w, r, err)
				return
			}
			for _, u := range users {
				if pd.User.Role == core.RoleAdmin || u.DistrictID == pd.User.DistrictID {
					view.Representatives = append(view.Representatives, u)
				}
			}
		}
	}
	pd.Data = view
	s.render(w, r, "budget.html", pd)
}

func (s *Server) handleUIAllocate(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		writeUIError(w, r, err)
		return
	}
	a, err := allocationFrom(p)
	if err != nil {
		writeUIError(w, r, err)
		return
	}
	created, err := s.svc.Budget.Allocate(r.Context(), auth.PrincipalFrom(r.Context()), a)
	if err != nil {
		writeUIError(w, r, err)
		return
	}
	SuccessResponse("Allocated "+created.Amount.String()).
		TriggerBudgetChanged(created.FY).
		TriggerFormReset().
		Write(w)
}
