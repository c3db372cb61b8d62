package storage

import (
	"context"
	"fmt"

	"fundportal/internal/core"
)

const vendorColumns = "id, name, firm_name, aadhaar, gstin, pan, mobile, email, address, district_id, " +
	"account_holder, account_number, ifsc, bank_name, branch, status, payment_eligible, created_at"

func scanVendor(s scanner) (core.Vendor, error) {
	var v core.Vendor
	var status string
	var created int64
	err := s.Scan(&v.ID, &v.Name, &v.FirmName, &v.Aadhaar, &v.GSTIN, &v.PAN, &v.Mobile, &v.Email, &v.Address,
		&v.DistrictID, &v.Bank.AccountHolder, &v.Bank.AccountNumber, &v.Bank.IFSC, &v.Bank.BankName,
		&v.Bank.Branch, &status, &v.PaymentEligible, &created)
	v.Status = core.VendorStatus(status)
	v.CreatedAt = fromUnix(created)
	return v, err
}

func (r *Repository) ListVendors(ctx context.Context) ([]core.Vendor, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+vendorColumns+" FROM vendors ORDER BY name, id")
	if err != nil {
		return nil, fmt.Errorf("list vendors: %w", err)
	}
	defer rows.Close()

	var out []core.Vendor
	for rows.Next() {
		v, err := scanVendor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan vendor: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (r *Repository) GetVendor(ctx context.Context, id int64) (core.Vendor, error) {
	v, err := scanVendor(r.db.QueryRowContext(ctx, r.rebind("SELECT "+vendorColumns+" FROM vendors WHERE id = ?"), id))
	if err != nil {
		return core.Vendor{}, fmt.Errorf("get vendor %d: %w", id, mapErr(err))
	}
	return v, nil
}

func (r *Repository) CreateVendor(ctx context.Context, v core.Vendor) (core.Vendor, error) {
	now := r.now().UTC()
	id, err := r.insert(ctx, r.db,
		"INSERT INTO vendors (name, firm_name, aadhaar, gstin, pan, mobile, email, address, district_id, "+
			"account_holder, account_number, ifsc, bank_name, branch, status, payment_eligible, created_at) "+
			"VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		v.Name, v.FirmName, v.Aadhaar, v.GSTIN, v.PAN, v.Mobile, v.Email, v.Address, v.DistrictID,
		v.Bank.AccountHolder, v.Bank.AccountNumber, v.Bank.IFSC, v.Bank.BankName, v.Bank.Branch,
		string(v.Status), v.PaymentEligible, now.Unix())
	if err != nil {
		return core.Vendor{}, fmt.Errorf("create vendor: %w", err)
	}
	v.ID = id
	v.CreatedAt = fromUnix(now.Unix())
	return v, nil
}

func (r *Repository) UpdateVendor(ctx context.Context, v core.Vendor) error {
	n, err := r.exec(ctx, r.db,
		"UPDATE vendors SET name = ?, firm_name = ?, aadhaar = ?, gstin = ?, pan = ?, mobile = ?, email = ?, "+
			"address = ?, district_id = ?, account_holder = ?, account_number = ?, ifsc = ?, bank_name = ?, "+
			"branch = ?, status = ?, payment_eligible = ? WHERE id = ?",
		v.Name, v.FirmName, v.Aadhaar, v.GSTIN, v.PAN, v.Mobile, v.Email, v.Address, v.DistrictID,
		v.Bank.AccountHolder, v.Bank.AccountNumber, v.Bank.IFSC, v.Bank.BankName, v.Bank.Branch,
		string(v.Status), v.PaymentEligible, v.ID)
	if err != nil {
		return fmt.Errorf("update vendor %d: %w", v.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("update vendor %d: %w", v.ID, core.ErrNotFound)
	}
	return nil
}
