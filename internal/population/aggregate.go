package population

import (
	"fmt"
	"maps"
	"slices"
	"strconv"

	"github.com/scuartasr/tfm-tuberc/internal/ageband"
	"github.com/scuartasr/tfm-tuberc/internal/numeric"
	"github.com/scuartasr/tfm-tuberc/internal/table"
)

// Aggregate is the population of one (year, sex, bucket) cell.
type Aggregate struct {
	Year       int
	Sex        ageband.Sex
	Bucket     int
	Population int64
}

// Key returns the join key of the aggregate.
func (a Aggregate) Key() ageband.Key {
	return ageband.Key{Year: a.Year, Sex: a.Sex, Bucket: a.Bucket}
}

// AggregateRecords sums per-age records into buckets, ordered by key.
func AggregateRecords(recs []Record) []Aggregate {
	sums := map[ageband.Key]int64{}
	for _, r := range recs {
		b, ok := ageband.BucketForAge(r.Age)
		if !ok {
			continue
		}
		sums[ageband.Key{Year: r.Year, Sex: r.Sex, Bucket: b}] += r.Population
	}
	return fromSums(sums)
}

// Reaggregate sums aggregates sharing a key. Already bucketed input with
// unique keys comes back unchanged.
func Reaggregate(aggs []Aggregate) []Aggregate {
	sums := map[ageband.Key]int64{}
	for _, a := range aggs {
		sums[a.Key()] += a.Population
	}
	return fromSums(sums)
}

func fromSums(sums map[ageband.Key]int64) []Aggregate {
	keys := slices.SortedFunc(maps.Keys(sums), ageband.Key.Compare)
	out := make([]Aggregate, 0, len(keys))
	for _, k := range keys {
		out = append(out, Aggregate{Year: k.Year, Sex: k.Sex, Bucket: k.Bucket, Population: sums[k]})
	}
	return out
}

// AggregatesFromTable reads either the bucketed schema {ano,sexo,gr_et,poblacion}
// or the long schema {ano,sexo,edad,poblacion} and returns bucket aggregates.
// Rows with a blank population are skipped.
func AggregatesFromTable(t *table.Table) ([]Aggregate, error) {
	bucketed := t.Has(table.ColYear, table.ColSex, table.ColBucket, table.ColPopulation)
	if !bucketed {
		if err := t.Require(table.ColYear, table.ColSex, table.ColAge, table.ColPopulation); err != nil {
			return nil, err
		}
	}
	yearIdx, sexIdx, popIdx := t.Index(table.ColYear), t.Index(table.ColSex), t.Index(table.ColPopulation)
	groupCol := table.ColAge
	if bucketed {
		groupCol = table.ColBucket
	}
	groupIdx := t.Index(groupCol)

	var recs []Record
	var aggs []Aggregate
	for i, row := range t.Rows {
		raw := table.Cell(row, popIdx)
		if raw == "" {
			continue
		}
		pop, err := numeric.ParseCount(raw)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", t.Name, i+1, err)
		}
		year, err := table.ParseInt(table.Cell(row, yearIdx))
		if err != nil {
			return nil, fmt.Errorf("%s row %d: invalid year: %w", t.Name, i+1, err)
		}
		sex, err := ageband.ParseSex(table.Cell(row, sexIdx))
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", t.Name, i+1, err)
		}
		group, err := table.ParseInt(table.Cell(row, groupIdx))
		if err != nil {
			return nil, fmt.Errorf("%s row %d: invalid %s: %w", t.Name, i+1, groupCol, err)
		}
		if bucketed {
			if group < 1 || group > ageband.NumBuckets {
				return nil, fmt.Errorf("%s row %d: %w", t.Name, i+1, &ageband.UnmappableCodeError{Kind: "bucket", Year: year, Raw: strconv.Itoa(group)})
			}
			aggs = append(aggs, Aggregate{Year: year, Sex: sex, Bucket: group, Population: pop})
			continue
		}
		recs = append(recs, Record{Year: year, Sex: sex, Age: group, Population: pop})
	}
	if bucketed {
		return Reaggregate(aggs), nil
	}
	return AggregateRecords(recs), nil
}

// BucketTable renders aggregates as ano,sexo,gr_et,poblacion with sexo as 1/2.
func BucketTable(aggs []Aggregate) *table.Table {
	t := table.New(BucketTableName, table.ColYear, table.ColSex, table.ColBucket, table.ColPopulation)
	for _, a := range aggs {
		t.Append(strconv.Itoa(a.Year), strconv.Itoa(int(a.Sex)), strconv.Itoa(a.Bucket), strconv.FormatInt(a.Population, 10))
	}
	return t
}
