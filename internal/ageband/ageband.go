// Package ageband maps ages, raw death-record age-group codes and sex codes
// onto the canonical 17 quinquennial buckets (gr_et) and sex codes {1,2}.
package ageband

import (
	"cmp"
	"fmt"
	"strconv"
	"strings"
)

// NumBuckets is the number of canonical age buckets.
const NumBuckets = 17

// Sex is the canonical sex code.
type Sex int

const (
	Male   Sex = 1
	Female Sex = 2
)

func (s Sex) String() string {
	switch s {
	case Male:
		return "male"
	case Female:
		return "female"
	default:
		return "unknown"
	}
}

// Label returns the lower-case Spanish label used in the long population table.
func (s Sex) Label() string {
	switch s {
	case Male:
		return "hombre"
	case Female:
		return "mujer"
	default:
		return ""
	}
}

// UnmappableCodeError reports an age, age-group or sex code that no rule recognizes.
type UnmappableCodeError struct {
	Kind string // "age", "age group", "sex" or "year"
	Year int
	Raw  string
}

func (e *UnmappableCodeError) Error() string {
	if e.Year != 0 {
		return fmt.Sprintf("unmappable %s %q (year %d)", e.Kind, e.Raw, e.Year)
	}
	return fmt.Sprintf("unmappable %s %q", e.Kind, e.Raw)
}

// BucketForAge maps an age in completed years to its bucket:
// 0-4 -> 1, 5-9 -> 2, ..., 75-79 -> 16, 80+ -> 17.
func BucketForAge(age int) (int, bool) {
	if age < 0 {
		return 0, false
	}
	if age >= 80 {
		return NumBuckets, true
	}
	return age/5 + 1, true
}

// BucketLabel returns the age range covered by a bucket, e.g. "0-4" or "80+".
func BucketLabel(bucket int) string {
	if bucket < 1 || bucket > NumBuckets {
		return ""
	}
	if bucket == NumBuckets {
		return "80+"
	}
	lo := (bucket - 1) * 5
	return fmt.Sprintf("%d-%d", lo, lo+4)
}

// ParseSex normalizes textual and numeric sex variants.
func ParseSex(raw string) (Sex, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.TrimSuffix(s, ".0")
	switch s {
	case "1", "h", "hombre", "hombres", "masculino":
		return Male, nil
	case "2", "m", "mujer", "mujeres", "femenino":
		return Female, nil
	}
	return 0, &UnmappableCodeError{Kind: "sex", Raw: raw}
}

// ParseAge parses an age column value; "80" and "080" are both accepted.
func ParseAge(raw string) (int, error) {
	s := strings.TrimSpace(raw)
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, &UnmappableCodeError{Kind: "age", Raw: raw}
	}
	return n, nil
}

// Key identifies one (year, sex, bucket) cell of an aggregate table.
type Key struct {
	Year   int
	Sex    Sex
	Bucket int
}

// Compare orders keys by year, then sex, then bucket.
func (k Key) Compare(o Key) int {
	if k.Year != o.Year {
		return cmp.Compare(k.Year, o.Year)
	}
	if k.Sex != o.Sex {
		return cmp.Compare(k.Sex, o.Sex)
	}
	return cmp.Compare(k.Bucket, o.Bucket)
}
