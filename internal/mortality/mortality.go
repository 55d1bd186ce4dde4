// Package mortality joins population and death aggregates and derives
// mortality rates with explicit missing-value semantics.
package mortality

import (
	"cmp"
	"maps"
	"math"
	"slices"
	"strconv"

	"github.com/scuartasr/tfm-tuberc/internal/ageband"
	"github.com/scuartasr/tfm-tuberc/internal/deaths"
	"github.com/scuartasr/tfm-tuberc/internal/population"
	"github.com/scuartasr/tfm-tuberc/internal/table"
)

// Output table names.
const (
	JoinedTableName    = "poblacion_defunciones_por_gr_et"
	CollapsedTableName = "tasas_mortalidad_gret_per"
)

// DefaultMinRate floors per-100k rates so exact zeros survive log transforms.
const DefaultMinRate = 1e-8

// Options controls the join.
type Options struct {
	// FillZeros turns missing death counts into 0 instead of NaN.
	FillZeros bool
	// MinRate is the floor applied to non-NaN rates before scaling to 100k.
	MinRate float64
}

// DefaultOptions keeps missing deaths as NaN with the default floor.
func DefaultOptions() Options {
	return Options{MinRate: DefaultMinRate}
}

// Row is one joined (year, sex, bucket) cell. Sex is zero in sex-collapsed rows.
type Row struct {
	Year       int
	Sex        ageband.Sex
	Bucket     int
	Population int64
	// Deaths is NaN when no death aggregate matched.
	Deaths  float64
	T       int
	Rate    float64
	Per100k float64
}

// Rate returns deaths/population and the floored per-100k rate. Both are NaN
// when population is not positive or deaths is NaN.
func Rate(deaths float64, population int64, minRate float64) (rate, per100k float64) {
	if population <= 0 || math.IsNaN(deaths) {
		return math.NaN(), math.NaN()
	}
	rate = deaths / float64(population)
	return rate, math.Max(rate, minRate) * 1e5
}

// Join left-joins deaths onto population by (year, sex, bucket). Every
// population row is kept; deaths sharing a key are summed. Rows come back in
// population order with rates and the time index assigned.
func Join(pop []population.Aggregate, dth []deaths.Aggregate, opt Options) []Row {
	counts := make(map[ageband.Key]int64, len(dth))
	for _, d := range dth {
		counts[d.Key()] += d.Deaths
	}
	rows := make([]Row, 0, len(pop))
	for _, p := range pop {
		d := math.NaN()
		if n, ok := counts[p.Key()]; ok {
			d = float64(n)
		} else if opt.FillZeros {
			d = 0
		}
		r := Row{Year: p.Year, Sex: p.Sex, Bucket: p.Bucket, Population: p.Population, Deaths: d}
		r.Rate, r.Per100k = Rate(d, p.Population, opt.MinRate)
		rows = append(rows, r)
	}
	return AssignTimeIndex(rows)
}

// AssignTimeIndex numbers the distinct years present 1..k in ascending order
// and sets T on a copy of rows.
func AssignTimeIndex(rows []Row) []Row {
	idx := TimeIndex(rows)
	out := slices.Clone(rows)
	for i := range out {
		out[i].T = idx[out[i].Year]
	}
	return out
}

// TimeIndex maps each distinct year of rows to its dense position, from 1.
func TimeIndex(rows []Row) map[int]int {
	years := map[int]struct{}{}
	for _, r := range rows {
		years[r.Year] = struct{}{}
	}
	idx := make(map[int]int, len(years))
	for i, y := range slices.Sorted(maps.Keys(years)) {
		idx[y] = i + 1
	}
	return idx
}

type collapseKey struct {
	year, t, bucket int
}

// CollapseSex sums population and deaths across sexes per (year, t, bucket)
// and re-derives rates from the sums. A group whose deaths are all NaN stays
// NaN.
func CollapseSex(rows []Row, opt Options) []Row {
	type acc struct {
		pop     int64
		deaths  float64
		present bool
	}
	groups := map[collapseKey]*acc{}
	for _, r := range rows {
		k := collapseKey{r.Year, r.T, r.Bucket}
		a, ok := groups[k]
		if !ok {
			a = &acc{}
			groups[k] = a
		}
		a.pop += r.Population
		if !math.IsNaN(r.Deaths) {
			a.deaths += r.Deaths
			a.present = true
		}
	}
	keys := slices.SortedFunc(maps.Keys(groups), func(a, b collapseKey) int {
		if a.year != b.year {
			return cmp.Compare(a.year, b.year)
		}
		if a.t != b.t {
			return cmp.Compare(a.t, b.t)
		}
		return cmp.Compare(a.bucket, b.bucket)
	})
	out := make([]Row, 0, len(keys))
	for _, k := range keys {
		a := groups[k]
		d := math.NaN()
		if a.present {
			d = a.deaths
		}
		r := Row{Year: k.year, T: k.t, Bucket: k.bucket, Population: a.pop, Deaths: d}
		r.Rate, r.Per100k = Rate(d, a.pop, opt.MinRate)
		out = append(out, r)
	}
	return out
}

// JoinedTable renders rows as ano,sexo,gr_et,poblacion,conteo_defunciones,
// tasa_x100k,tasa,t.
func JoinedTable(rows []Row) *table.Table {
	t := table.New(JoinedTableName,
		table.ColYear, table.ColSex, table.ColBucket, table.ColPopulation, table.ColDeaths,
		table.ColRate100k, table.ColRate, table.ColT)
	for _, r := range rows {
		t.Append(strconv.Itoa(r.Year), strconv.Itoa(int(r.Sex)), strconv.Itoa(r.Bucket),
			strconv.FormatInt(r.Population, 10), table.FormatFloat(r.Deaths),
			table.FormatFloat(r.Per100k), table.FormatFloat(r.Rate), strconv.Itoa(r.T))
	}
	return t
}

// CollapsedTable renders sex-collapsed rows as ano,t,gr_et,poblacion,
// conteo_defunciones,tasa_x100k,tasa.
func CollapsedTable(rows []Row) *table.Table {
	t := table.New(CollapsedTableName,
		table.ColYear, table.ColT, table.ColBucket, table.ColPopulation, table.ColDeaths,
		table.ColRate100k, table.ColRate)
	for _, r := range rows {
		t.Append(strconv.Itoa(r.Year), strconv.Itoa(r.T), strconv.Itoa(r.Bucket),
			strconv.FormatInt(r.Population, 10), table.FormatFloat(r.Deaths),
			table.FormatFloat(r.Per100k), table.FormatFloat(r.Rate))
	}
	return t
}
