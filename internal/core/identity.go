package core

import (
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
)

// ErrInvalidInput is the parent of form validation failures.
var ErrInvalidInput = errors.New("invalid input")

var (
	ErrInvalidPAN     = fmt.Errorf("%w: PAN must look like ABCDE1234F", ErrInvalidInput)
	ErrInvalidAadhaar = fmt.Errorf("%w: Aadhaar must be 12 digits not starting with 0 or 1", ErrInvalidInput)
	ErrInvalidGSTIN   = fmt.Errorf("%w: GSTIN must be 15 characters with the PAN at positions 3-12", ErrInvalidInput)
	ErrGSTINMismatch  = fmt.Errorf("%w: GSTIN does not contain the vendor PAN", ErrInvalidInput)
	ErrInvalidIFSC    = fmt.Errorf("%w: IFSC must look like SBIN0001234", ErrInvalidInput)
	ErrInvalidMobile  = fmt.Errorf("%w: mobile must be 10 digits starting with 6-9", ErrInvalidInput)
	ErrInvalidEmail   = fmt.Errorf("%w: email address is malformed", ErrInvalidInput)
	ErrInvalidAccount = fmt.Errorf("%w: account number must be 9 to 18 digits", ErrInvalidInput)
)

var (
	panRe     = regexp.MustCompile(`^[A-Z]{5}[0-9]{4}[A-Z]$`)
	aadhaarRe = regexp.MustCompile(`^[2-9][0-9]{11}$`)
	gstinRe   = regexp.MustCompile(`^[0-9]{2}[A-Z]{5}[0-9]{4}[A-Z][1-9A-Z]Z[0-9A-Z]$`)
	ifscRe    = regexp.MustCompile(`^[A-Z]{4}0[A-Z0-9]{6}$`)
	mobileRe  = regexp.MustCompile(`^[6-9][0-9]{9}$`)
	accountRe = regexp.MustCompile(`^[0-9]{9,18}$`)
)

// NormalizeID upper-cases an identifier and drops spaces and dashes, the way
// users commonly type them ("1234 5678 9012", "abcde1234f").
func NormalizeID(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '\t':
			return -1
		}
		return r
	}, strings.ToUpper(strings.TrimSpace(s)))
}

func ValidatePAN(s string) error {
	if !panRe.MatchString(s) {
		return ErrInvalidPAN
	}
	return nil
}

func ValidateAadhaar(s string) error {
	if !aadhaarRe.MatchString(s) {
		return ErrInvalidAadhaar
	}
	return nil
}

// ValidateGSTIN checks the GSTIN shape and, when pan is non-empty, that the
// GSTIN embeds it.
func ValidateGSTIN(gstin, pan string) error {
	if !gstinRe.MatchString(gstin) {
		return ErrInvalidGSTIN
	}
	if pan != "" && gstin[2:12] != pan {
		return ErrGSTINMismatch
	}
	return nil
}

func ValidateIFSC(s string) error {
	if !ifscRe.MatchString(s) {
		return ErrInvalidIFSC
	}
	return nil
}

func ValidateMobile(s string) error {
	s = strings.TrimPrefix(s, "+91")
	if !mobileRe.MatchString(s) {
		return ErrInvalidMobile
	}
	return nil
}

// MaskAadhaar hides all but the last four digits.
func MaskAadhaar(s string) string {
	if len(s) < 4 {
		return strings.Repeat("X", len(s))
	}
	return "XXXX-XXXX-" + s[len(s)-4:]
}

// MaskedAadhaar is the displayable form of the vendor's Aadhaar.
func (v Vendor) MaskedAadhaar() string { return MaskAadhaar(v.Aadhaar) }

// DisplayName prefers the firm name.
func (v Vendor) DisplayName() string {
	if v.FirmName != "" {
		return v.FirmName
	}
	return v.Name
}

// Normalize canonicalises identifiers in place before validation and storage.
func (v *Vendor) Normalize() {
	v.Name = strings.TrimSpace(v.Name)
	v.FirmName = strings.TrimSpace(v.FirmName)
	v.PAN = NormalizeID(v.PAN)
	v.Aadhaar = NormalizeID(v.Aadhaar)
	v.GSTIN = NormalizeID(v.GSTIN)
	v.Mobile = NormalizeID(v.Mobile)
	v.Email = strings.TrimSpace(v.Email)
	v.Bank.IFSC = NormalizeID(v.Bank.IFSC)
	v.Bank.AccountNumber = NormalizeID(v.Bank.AccountNumber)
	v.Bank.AccountHolder = strings.TrimSpace(v.Bank.AccountHolder)
	v.Bank.BankName = strings.TrimSpace(v.Bank.BankName)
}

// Validate runs the registration form checks. GSTIN and email are optional.
func (v Vendor) Validate() error {
	var errs []error
	if v.Name == "" {
		errs = append(errs, fmt.Errorf("%w: vendor name is required", ErrInvalidInput))
	}
	if err := ValidatePAN(v.PAN); err != nil {
		errs = append(errs, err)
	}
	if err := ValidateAadhaar(v.Aadhaar); err != nil {
		errs = append(errs, err)
	}
	if v.GSTIN != "" {
		if err := ValidateGSTIN(v.GSTIN, v.PAN); err != nil {
			errs = append(errs, err)
		}
	}
	if err := ValidateMobile(v.Mobile); err != nil {
		errs = append(errs, err)
	}
	if v.Email != "" {
		if _, err := mail.ParseAddress(v.Email); err != nil {
			errs = append(errs, ErrInvalidEmail)
		}
	}
	if v.Bank.AccountHolder == "" {
		errs = append(errs, fmt.Errorf("%w: account holder is required", ErrInvalidInput))
	}
	if !accountRe.MatchString(v.Bank.AccountNumber) {
		errs = append(errs, ErrInvalidAccount)
	}
	if err := ValidateIFSC(v.Bank.IFSC); err != nil {
		errs = append(errs, err)
	}
	switch v.Status {
	case VendorPending, VendorActive, VendorSuspended:
	default:
		errs = append(errs, ErrInvalidStatus)
	}
	return errors.Join(errs...)
}

// ParseVendorStatus matches case-insensitively.
func ParseVendorStatus(s string) (VendorStatus, error) {
	for _, st := range []VendorStatus{VendorPending, VendorActive, VendorSuspended} {
		if strings.EqualFold(strings.TrimSpace(s), string(st)) {
			return st, nil
		}
	}
	return "", ErrInvalidStatus
}
