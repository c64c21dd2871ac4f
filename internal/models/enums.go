package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidEnum is returned when external input names a value outside one
// of the closed sets below.
var ErrInvalidEnum = errors.New("invalid enum value")

type AcademicPosition string

const (
	PositionUndergraduate  AcademicPosition = "Undergraduate"
	PositionMastersStudent AcademicPosition = "Masters Student"
	PositionCoterm         AcademicPosition = "Coterm"
	PositionPhD            AcademicPosition = "PhD"
	PositionPostdoc        AcademicPosition = "Postdoc"
	PositionFaculty        AcademicPosition = "Faculty"
	PositionOther          AcademicPosition = "Other"

	DefaultAcademicPosition = PositionOther
)

var AcademicPositions = []AcademicPosition{
	PositionUndergraduate, PositionMastersStudent, PositionCoterm,
	PositionPhD, PositionPostdoc, PositionFaculty, PositionOther,
}

type RepresentingVSO string

const (
	VSOUndergraduate RepresentingVSO = "Undergraduate"
	VSOGraduate      RepresentingVSO = "Graduate"
	VSONone          RepresentingVSO = "None"

	DefaultRepresentingVSO = VSONone
)

var RepresentingVSOs = []RepresentingVSO{VSOUndergraduate, VSOGraduate, VSONone}

type SortBy string

const (
	SortByAmount   SortBy = "Amount"
	SortByDeadline SortBy = "Deadline"

	DefaultSortBy = SortByAmount
)

var SortByValues = []SortBy{SortByAmount, SortByDeadline}

type SortOrder string

const (
	SortAscending  SortOrder = "Ascending"
	SortDescending SortOrder = "Descending"

	DefaultSortOrder = SortDescending
)

var SortOrderValues = []SortOrder{SortAscending, SortDescending}

// ParseAcademicPosition matches s case-insensitively against the known
// positions. An empty string yields the default.
func ParseAcademicPosition(s string) (AcademicPosition, error) {
	return parseEnum(s, AcademicPositions, DefaultAcademicPosition, "academic position")
}

func ParseRepresentingVSO(s string) (RepresentingVSO, error) {
	return parseEnum(s, RepresentingVSOs, DefaultRepresentingVSO, "representing VSO")
}

func ParseSortBy(s string) (SortBy, error) {
	return parseEnum(s, SortByValues, DefaultSortBy, "sort by")
}

func ParseSortOrder(s string) (SortOrder, error) {
	// "asc"/"desc" are accepted as shorthands on query strings and flags.
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "asc":
		return SortAscending, nil
	case "desc":
		return SortDescending, nil
	}
	return parseEnum(s, SortOrderValues, DefaultSortOrder, "sort order")
}

func parseEnum[T ~string](s string, allowed []T, def T, kind string) (T, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return def, nil
	}
	for _, v := range allowed {
		if strings.EqualFold(string(v), s) {
			return v, nil
		}
	}
	return def, fmt.Errorf("%w: %s %q", ErrInvalidEnum, kind, s)
}
