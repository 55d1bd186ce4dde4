// Package validate runs observational integrity checks over the population,
// death and joined tables. Checks never mutate their input; severity is
// decided by the caller through Apply.
package validate

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/scuartasr/tfm-tuberc/internal/ageband"
	"github.com/scuartasr/tfm-tuberc/internal/numeric"
	"github.com/scuartasr/tfm-tuberc/internal/table"
)

// Entity names used in findings and reports.
const (
	EntityPopulation = "population"
	EntityDeaths     = "deaths"
	EntityJoined     = "joined"
)

// Check identifies the rule that produced a finding.
type Check string

const (
	CheckSchema                  Check = "schema"
	CheckCoverage                Check = "coverage"
	CheckSentinel                Check = "sentinel"
	CheckSentinelMissing         Check = "sentinel_missing"
	CheckThousands               Check = "thousands_pattern"
	CheckNegative                Check = "negative_values"
	CheckSexCodes                Check = "sex_codes"
	CheckDeathsWithoutPopulation Check = "deaths_without_population"
	CheckDeathsExceedPopulation  Check = "deaths_exceed_population"
)

// Reference values for the population checks.
const (
	SentinelYear       = 1979
	SentinelPopulation = 1795941
	FirstExpectedYear  = 1979
	LastExpectedYear   = 2023
	thousandsSample    = 1000
)

// Finding is one integrity observation. Escalates marks findings that
// become errors in critical mode.
type Finding struct {
	Entity    string `yaml:"entity"`
	Check     Check  `yaml:"check"`
	Message   string `yaml:"message"`
	Escalates bool   `yaml:"escalates"`
	Expected  string `yaml:"expected,omitempty"`
	Observed  string `yaml:"observed,omitempty"`
}

func schemaFinding(entity string, t *table.Table, cols ...string) *Finding {
	missing := t.Missing(cols...)
	if len(missing) == 0 {
		return nil
	}
	return &Finding{
		Entity:    entity,
		Check:     CheckSchema,
		Message:   fmt.Sprintf("missing columns %s", strings.Join(missing, ",")),
		Escalates: true,
		Expected:  strings.Join(cols, ","),
		Observed:  strings.Join(t.Header, ","),
	}
}

// Population checks a long {ano,sexo,edad,poblacion} or bucketed
// {ano,sexo,gr_et,poblacion} population table.
func Population(t *table.Table) []Finding {
	long := t.Has(table.ColYear, table.ColSex, table.ColAge, table.ColPopulation)
	bucketed := t.Has(table.ColYear, table.ColSex, table.ColBucket, table.ColPopulation)
	if !long && !bucketed {
		f := schemaFinding(EntityPopulation, t, table.ColYear, table.ColSex, table.ColAge, table.ColPopulation)
		if !t.Has(table.ColAge) && t.Has(table.ColBucket) {
			f = schemaFinding(EntityPopulation, t, table.ColYear, table.ColSex, table.ColBucket, table.ColPopulation)
		}
		f.Message = "missing columns for both the long (ano,sexo,edad,poblacion) and bucketed (ano,sexo,gr_et,poblacion) schemas: " + f.Message
		return []Finding{*f}
	}

	var out []Finding
	yearIdx, sexIdx, popIdx := t.Index(table.ColYear), t.Index(table.ColSex), t.Index(table.ColPopulation)
	groupIdx, label := t.Index(table.ColBucket), "bucketed gr_et=1"
	if long {
		groupIdx, label = t.Index(table.ColAge), "long ages "+ageband.BucketLabel(1)
	}

	minYear, maxYear := math.MaxInt, math.MinInt
	var refSum float64
	refRows, negatives, thousands := 0, 0, false
	for i, row := range t.Rows {
		if i < thousandsSample && numeric.HasThousandsPattern(table.Cell(row, popIdx)) {
			thousands = true
		}
		pop, err := table.ParseFloat(table.Cell(row, popIdx))
		if err != nil {
			pop = math.NaN()
		}
		if pop < 0 {
			negatives++
		}
		year, err := table.ParseInt(table.Cell(row, yearIdx))
		if err != nil {
			continue
		}
		minYear, maxYear = min(minYear, year), max(maxYear, year)
		if year != SentinelYear {
			continue
		}
		if sex, err := ageband.ParseSex(table.Cell(row, sexIdx)); err != nil || sex != ageband.Male {
			continue
		}
		g, err := table.ParseInt(table.Cell(row, groupIdx))
		if err != nil {
			continue
		}
		if (long && g >= 0 && g <= 4) || (!long && g == 1) {
			refRows++
			if !math.IsNaN(pop) {
				refSum += pop
			}
		}
	}

	if minYear != math.MaxInt {
		if minYear > FirstExpectedYear {
			out = append(out, Finding{Entity: EntityPopulation, Check: CheckCoverage,
				Message:  fmt.Sprintf("first year %d > %d; truncated dataset or missing rows?", minYear, FirstExpectedYear),
				Expected: fmt.Sprint(FirstExpectedYear), Observed: fmt.Sprint(minYear)})
		}
		if maxYear < LastExpectedYear {
			out = append(out, Finding{Entity: EntityPopulation, Check: CheckCoverage,
				Message:  fmt.Sprintf("last year %d < %d; incomplete dataset?", maxYear, LastExpectedYear),
				Expected: fmt.Sprint(LastExpectedYear), Observed: fmt.Sprint(maxYear)})
		}
	}

	if refRows == 0 {
		out = append(out, Finding{Entity: EntityPopulation, Check: CheckSentinelMissing,
			Message: fmt.Sprintf("no %d male %s reference rows found (truncated dataset or incompatible schema)", SentinelYear, ageband.BucketLabel(1))})
	} else if refSum != SentinelPopulation {
		observed := table.FormatFloat(refSum)
		out = append(out, Finding{Entity: EntityPopulation, Check: CheckSentinel,
			Message: fmt.Sprintf("unexpected %d male %s population (%s): %s != %s", SentinelYear, ageband.BucketLabel(1), label,
				numeric.FormatCount(int64(math.Round(refSum)), '.'), numeric.FormatCount(SentinelPopulation, '.')),
			Escalates: true,
			Expected:  fmt.Sprint(SentinelPopulation),
			Observed:  observed})
	}

	if thousands {
		out = append(out, Finding{Entity: EntityPopulation, Check: CheckThousands,
			Message: fmt.Sprintf("thousands separator pattern found in %s (cleaning error?)", table.ColPopulation)})
	}
	if negatives > 0 {
		out = append(out, Finding{Entity: EntityPopulation, Check: CheckNegative,
			Message:   fmt.Sprintf("%d negative %s values", negatives, table.ColPopulation),
			Escalates: true, Expected: ">= 0", Observed: fmt.Sprint(negatives)})
	}
	return out
}

var expectedDeathSexCodes = []string{"1", "2", "9"}

// Deaths checks a {ano,sexo,gr_et,conteo_defunciones} table.
func Deaths(t *table.Table) []Finding {
	if f := schemaFinding(EntityDeaths, t, table.ColYear, table.ColSex, table.ColBucket, table.ColDeaths); f != nil {
		return []Finding{*f}
	}
	var out []Finding
	sexIdx, deathIdx := t.Index(table.ColSex), t.Index(table.ColDeaths)
	unexpected := map[string]bool{}
	negatives := 0
	for _, row := range t.Rows {
		s := strings.TrimSuffix(table.Cell(row, sexIdx), ".0")
		if s != "" && !slices.Contains(expectedDeathSexCodes, s) {
			unexpected[s] = true
		}
		if v, err := table.ParseFloat(table.Cell(row, deathIdx)); err == nil && v < 0 {
			negatives++
		}
	}
	if len(unexpected) > 0 {
		codes := make([]string, 0, len(unexpected))
		for c := range unexpected {
			codes = append(codes, c)
		}
		slices.Sort(codes)
		out = append(out, Finding{Entity: EntityDeaths, Check: CheckSexCodes,
			Message:  fmt.Sprintf("unexpected %s values: %s", table.ColSex, strings.Join(codes, ",")),
			Expected: strings.Join(expectedDeathSexCodes, ","), Observed: strings.Join(codes, ",")})
	}
	if negatives > 0 {
		out = append(out, Finding{Entity: EntityDeaths, Check: CheckNegative,
			Message:   fmt.Sprintf("%d negative %s values", negatives, table.ColDeaths),
			Escalates: true, Expected: ">= 0", Observed: fmt.Sprint(negatives)})
	}
	return out
}

// Joined checks a {ano,sexo,gr_et,poblacion,conteo_defunciones} table for
// structurally impossible rows.
func Joined(t *table.Table) []Finding {
	if f := schemaFinding(EntityJoined, t, table.ColYear, table.ColSex, table.ColBucket, table.ColPopulation, table.ColDeaths); f != nil {
		return []Finding{*f}
	}
	var out []Finding
	popIdx, deathIdx := t.Index(table.ColPopulation), t.Index(table.ColDeaths)
	withoutPop, exceeding := 0, 0
	for _, row := range t.Rows {
		pop, err := table.ParseFloat(table.Cell(row, popIdx))
		if err != nil {
			continue
		}
		d, err := table.ParseFloat(table.Cell(row, deathIdx))
		if err != nil {
			continue
		}
		if pop == 0 && d > 0 {
			withoutPop++
		}
		if d > pop {
			exceeding++
		}
	}
	if withoutPop > 0 {
		out = append(out, Finding{Entity: EntityJoined, Check: CheckDeathsWithoutPopulation,
			Message:   fmt.Sprintf("%d rows with deaths > 0 but population = 0 (join key mismatch?)", withoutPop),
			Escalates: true, Expected: "0", Observed: fmt.Sprint(withoutPop)})
	}
	// Multiple-cause attribution in raw records can produce this legitimately.
	if exceeding > 0 {
		out = append(out, Finding{Entity: EntityJoined, Check: CheckDeathsExceedPopulation,
			Message:  fmt.Sprintf("%d rows with %s > %s", exceeding, table.ColDeaths, table.ColPopulation),
			Expected: "0", Observed: fmt.Sprint(exceeding)})
	}
	return out
}
