package core

import (
	"fmt"
	"strconv"
	"time"
)

// FinancialYear is an April-March year written "2024-25".
type FinancialYear string

// FinancialYearOf returns the financial year containing t.
func FinancialYearOf(t time.Time) FinancialYear {
	y := t.Year()
	if t.Month() < time.April {
		y--
	}
	return financialYearStarting(y)
}

func financialYearStarting(y int) FinancialYear {
	return FinancialYear(fmt.Sprintf("%d-%02d", y, (y+1)%100))
}

// ParseFinancialYear validates s and returns it as a FinancialYear.
func ParseFinancialYear(s string) (FinancialYear, error) {
	fy := FinancialYear(s)
	if err := fy.Validate(); err != nil {
		return "", err
	}
	return fy, nil
}

func (fy FinancialYear) Validate() error {
	s := string(fy)
	if len(s) != 7 || s[4] != '-' {
		return ErrInvalidFinancialYear
	}
	start, err := strconv.Atoi(s[:4])
	if err != nil || start < 1950 || start > 2200 {
		return ErrInvalidFinancialYear
	}
	end, err := strconv.Atoi(s[5:])
	if err != nil || end != (start+1)%100 {
		return ErrInvalidFinancialYear
	}
	return nil
}

// StartYear is the calendar year in which the financial year begins.
func (fy FinancialYear) StartYear() int {
	y, _ := strconv.Atoi(string(fy)[:min(4, len(fy))])
	return y
}

// Start is 1 April of the start year.
func (fy FinancialYear) Start() Date {
	return NewDate(fy.StartYear(), time.April, 1)
}

// End is 31 March of the following year.
func (fy FinancialYear) End() Date {
	return NewDate(fy.StartYear()+1, time.March, 31)
}

// Contains reports whether d falls inside the financial year.
func (fy FinancialYear) Contains(d Date) bool {
	return !d.Before(fy.Start().Time) && !d.After(fy.End().Time)
}

// Previous returns the financial year before fy.
func (fy FinancialYear) Previous() FinancialYear {
	return financialYearStarting(fy.StartYear() - 1)
}

// RecentFinancialYears lists n financial years ending with the one containing now,
// newest first. Used for dropdowns.
func RecentFinancialYears(now time.Time, n int) []FinancialYear {
	out := make([]FinancialYear, 0, n)
	fy := FinancialYearOf(now)
	for i := 0; i < n; i++ {
		out = append(out, fy)
		fy = fy.Previous()
	}
	return out
}
