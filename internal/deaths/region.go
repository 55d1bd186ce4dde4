package deaths

import (
	"cmp"
	"maps"
	"slices"
	"strconv"

	"github.com/scuartasr/tfm-tuberc/internal/ageband"
	"github.com/scuartasr/tfm-tuberc/internal/table"
)

// UnknownRegion labels rows whose department is blank or not in the lookup.
const UnknownRegion = "sin_region"

// RegionTableName names the regional breakdown table.
const RegionTableName = "defunciones_por_region"

// Regions maps a two-digit department code to its region name.
type Regions map[string]string

// Region returns the region of a department code.
func (r Regions) Region(dept string) string {
	if name, ok := r[padCode(dept, 2)]; ok && name != "" {
		return name
	}
	return UnknownRegion
}

// LoadRegions reads the department-to-region lookup (columns cod_dpto, region).
func LoadRegions(path string) (Regions, error) {
	t, err := table.ReadFile(path, table.ReadOptions{NormalizeHeader: true})
	if err != nil {
		return nil, err
	}
	return RegionsFromTable(t)
}

// RegionsFromTable builds the lookup from an already loaded table.
func RegionsFromTable(t *table.Table) (Regions, error) {
	if err := t.Require(table.ColDepartment, table.ColRegion); err != nil {
		return nil, err
	}
	deptIdx, regionIdx := t.Index(table.ColDepartment), t.Index(table.ColRegion)
	out := Regions{}
	for _, row := range t.Rows {
		code := padCode(table.Cell(row, deptIdx), 2)
		if code == "" {
			continue
		}
		out[code] = table.Cell(row, regionIdx)
	}
	return out, nil
}

// RegionAggregate is the death count of one (year, region, sex, bucket) cell.
type RegionAggregate struct {
	Year   int
	Region string
	Sex    ageband.Sex
	Bucket int
	Deaths int64
}

type regionKey struct {
	year   int
	region string
	sex    ageband.Sex
	bucket int
}

// AggregateByRegion counts retained rows per (year, region, sex, bucket).
func AggregateByRegion(rows []Row, regions Regions) []RegionAggregate {
	counts := map[regionKey]int64{}
	for _, r := range rows {
		counts[regionKey{r.Year, regions.Region(r.Department), r.Sex, r.Bucket}]++
	}
	keys := slices.SortedFunc(maps.Keys(counts), func(a, b regionKey) int {
		if a.year != b.year {
			return cmp.Compare(a.year, b.year)
		}
		if a.region != b.region {
			return cmp.Compare(a.region, b.region)
		}
		if a.sex != b.sex {
			return cmp.Compare(a.sex, b.sex)
		}
		return cmp.Compare(a.bucket, b.bucket)
	})
	out := make([]RegionAggregate, 0, len(keys))
	for _, k := range keys {
		out = append(out, RegionAggregate{Year: k.year, Region: k.region, Sex: k.sex, Bucket: k.bucket, Deaths: counts[k]})
	}
	return out
}

// RegionTable renders regional aggregates as ano,region,sexo,gr_et,conteo_defunciones.
func RegionTable(aggs []RegionAggregate) *table.Table {
	t := table.New(RegionTableName, table.ColYear, table.ColRegion, table.ColSex, table.ColBucket, table.ColDeaths)
	for _, a := range aggs {
		t.Append(strconv.Itoa(a.Year), a.Region, strconv.Itoa(int(a.Sex)), strconv.Itoa(a.Bucket), strconv.FormatInt(a.Deaths, 10))
	}
	return t
}
