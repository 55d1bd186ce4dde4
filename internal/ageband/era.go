package ageband

import (
	"strconv"
	"strings"
)

// Era is the age-group coding used by death records of a range of years.
// Each era carries its own mapping function so rules can be audited one by one.
type Era struct {
	Name    string
	First   int
	Last    int
	Unknown int // code meaning "age not stated"
	mapCode func(code int) (int, bool)
}

// Map returns the bucket for code, or false when the code is the era's
// unknown-age sentinel or otherwise outside the ruleset.
func (e Era) Map(code int) (int, bool) {
	if code < 0 || e.mapCode == nil {
		return 0, false
	}
	return e.mapCode(code)
}

// Contains reports whether year falls within the era.
func (e Era) Contains(year int) bool {
	return year >= e.First && year <= e.Last
}

// 1979-1997: codes up to 7 cover ages under five, 8..22 are the
// quinquennial groups 5-9..75-79, 25 means unknown.
func mapEra1979(code int) (int, bool) {
	switch {
	case code <= 7:
		return 1, true
	case code <= 22:
		return code - 6, true
	case code == 25:
		return 0, false
	default:
		return NumBuckets, true
	}
}

// 1998-2007: codes up to 8 cover ages under five, 9..23 are 5-9..75-79,
// 26 means unknown.
func mapEra1998(code int) (int, bool) {
	switch {
	case code <= 8:
		return 1, true
	case code <= 23:
		return code - 7, true
	case code == 26:
		return 0, false
	default:
		return NumBuckets, true
	}
}

// 2008-2023: same boundaries as 1998-2007; 29 means unknown.
func mapEra2008(code int) (int, bool) {
	switch {
	case code <= 8:
		return 1, true
	case code <= 23:
		return code - 7, true
	case code == 29:
		return 0, false
	default:
		return NumBuckets, true
	}
}

// Eras lists the death-record age-group rulesets in chronological order.
var Eras = []Era{
	{Name: "1979-1997", First: 1979, Last: 1997, Unknown: 25, mapCode: mapEra1979},
	{Name: "1998-2007", First: 1998, Last: 2007, Unknown: 26, mapCode: mapEra1998},
	{Name: "2008-2023", First: 2008, Last: 2023, Unknown: 29, mapCode: mapEra2008},
}

// EraFor returns the ruleset in force for year.
func EraFor(year int) (Era, error) {
	for _, e := range Eras {
		if e.Contains(year) {
			return e, nil
		}
	}
	return Era{}, &UnmappableCodeError{Kind: "year", Year: year, Raw: strconv.Itoa(year)}
}

// MapAgeGroup maps a raw gru_ed1 code of a record from year to its bucket.
func MapAgeGroup(year, code int) (int, error) {
	era, err := EraFor(year)
	if err != nil {
		return 0, err
	}
	b, ok := era.Map(code)
	if !ok {
		return 0, &UnmappableCodeError{Kind: "age group", Year: year, Raw: strconv.Itoa(code)}
	}
	return b, nil
}

// ParseAgeGroupCode parses a raw gru_ed1 value such as "07", "7" or "7.0".
func ParseAgeGroupCode(raw string) (int, error) {
	s := strings.TrimSuffix(strings.TrimSpace(raw), ".0")
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, &UnmappableCodeError{Kind: "age group", Raw: raw}
	}
	return n, nil
}
