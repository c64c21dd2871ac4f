package models

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidCriteria is returned for criteria values that are out of range.
var ErrInvalidCriteria = errors.New("invalid filter criteria")

// FilterCriteria is the structured refinement chosen by the user. A fresh
// value is built for every interaction; the filter never modifies it.
type FilterCriteria struct {
	MinAmount        *float64
	Positions        []AcademicPosition
	RepresentingVSOs []RepresentingVSO
	SortBy           SortBy
	SortOrder        SortOrder
}

// DefaultCriteria returns criteria with no threshold, no position or VSO
// constraints and the default sort.
func DefaultCriteria() FilterCriteria {
	return FilterCriteria{
		SortBy:    DefaultSortBy,
		SortOrder: DefaultSortOrder,
	}
}

// CriteriaInput carries unvalidated criteria as they arrive from a query
// string, CLI flags or a config file.
type CriteriaInput struct {
	MinAmount        *float64
	Positions        []string
	RepresentingVSOs []string
	SortBy           string
	SortOrder        string
}

// ParseCriteria validates raw input into FilterCriteria.
func ParseCriteria(in CriteriaInput) (FilterCriteria, error) {
	c := DefaultCriteria()

	if in.MinAmount != nil {
		v := *in.MinAmount
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return c, fmt.Errorf("%w: min amount must be a finite number", ErrInvalidCriteria)
		}
		if v < 0 {
			return c, fmt.Errorf("%w: min amount must not be negative", ErrInvalidCriteria)
		}
		c.MinAmount = Float64Ptr(*in.MinAmount)
	}

	for _, raw := range in.Positions {
		p, err := ParseAcademicPosition(raw)
		if err != nil {
			return c, err
		}
		c.Positions = append(c.Positions, p)
	}
	for _, raw := range in.RepresentingVSOs {
		v, err := ParseRepresentingVSO(raw)
		if err != nil {
			return c, err
		}
		c.RepresentingVSOs = append(c.RepresentingVSOs, v)
	}

	var err error
	if c.SortBy, err = ParseSortBy(in.SortBy); err != nil {
		return c, err
	}
	if c.SortOrder, err = ParseSortOrder(in.SortOrder); err != nil {
		return c, err
	}
	return c, nil
}
