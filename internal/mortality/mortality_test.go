package mortality

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scuartasr/tfm-tuberc/internal/ageband"
	"github.com/scuartasr/tfm-tuberc/internal/deaths"
	"github.com/scuartasr/tfm-tuberc/internal/population"
)

func popAgg(year int, sex ageband.Sex, bucket int, n int64) population.Aggregate {
	return population.Aggregate{Year: year, Sex: sex, Bucket: bucket, Population: n}
}

func deathAgg(year int, sex ageband.Sex, bucket int, n int64) deaths.Aggregate {
	return deaths.Aggregate{Year: year, Sex: sex, Bucket: bucket, Deaths: n}
}

// minRate is a variable so expected floors round like Rate does.
var minRate = DefaultMinRate

func TestRateSafety(t *testing.T) {
	r, p := Rate(5, 0, DefaultMinRate)
	assert.True(t, math.IsNaN(r), "zero population must give NaN rate")
	assert.True(t, math.IsNaN(p))

	r, p = Rate(math.NaN(), 100, DefaultMinRate)
	assert.True(t, math.IsNaN(r))
	assert.True(t, math.IsNaN(p), "floor never applies to NaN")

	r, p = Rate(0, 100, DefaultMinRate)
	assert.Equal(t, 0.0, r)
	assert.Equal(t, minRate*1e5, p)

	r, p = Rate(3, 1000, DefaultMinRate)
	assert.Equal(t, 0.003, r)
	assert.InDelta(t, 300.0, p, 1e-9)

	r, _ = Rate(1, -1, DefaultMinRate)
	assert.True(t, math.IsNaN(r))
}

func TestJoinKeepsEveryPopulationRow(t *testing.T) {
	pop := []population.Aggregate{
		popAgg(2000, ageband.Male, 1, 1000),
		popAgg(2000, ageband.Female, 1, 0),
		popAgg(2002, ageband.Male, 1, 500),
		popAgg(2002, ageband.Female, 1, 400),
	}
	dth := []deaths.Aggregate{
		deathAgg(2000, ageband.Male, 1, 2),
		deathAgg(2000, ageband.Female, 1, 5),
		deathAgg(2002, ageband.Male, 1, 1),
		deathAgg(2002, ageband.Male, 1, 3),
		deathAgg(1999, ageband.Male, 1, 9),
	}
	rows := Join(pop, dth, DefaultOptions())
	require.Len(t, rows, len(pop))

	assert.Equal(t, 0.002, rows[0].Rate)
	assert.True(t, math.IsNaN(rows[1].Rate), "deaths without population")
	assert.Equal(t, 5.0, rows[1].Deaths)
	assert.Equal(t, 4.0, rows[2].Deaths, "duplicate death keys are summed")
	assert.True(t, math.IsNaN(rows[3].Deaths))
	assert.True(t, math.IsNaN(rows[3].Per100k))

	assert.Equal(t, 1, rows[0].T)
	assert.Equal(t, 2, rows[2].T, "gaps in calendar years do not appear in t")

	filled := Join(pop, dth, Options{FillZeros: true, MinRate: DefaultMinRate})
	assert.Equal(t, 0.0, filled[3].Deaths)
	assert.Equal(t, 0.0, filled[3].Rate)
	assert.Equal(t, minRate*1e5, filled[3].Per100k)
}

func TestJoinEmptyDeaths(t *testing.T) {
	pop := []population.Aggregate{popAgg(2000, ageband.Male, 1, 10)}
	rows := Join(pop, nil, DefaultOptions())
	require.Len(t, rows, 1)
	assert.True(t, math.IsNaN(rows[0].Deaths))
	assert.Empty(t, Join(nil, nil, DefaultOptions()))
}

func TestTimeIndexIsDenseAndDeterministic(t *testing.T) {
	rows := []Row{{Year: 2020}, {Year: 1979}, {Year: 2001}, {Year: 1979}, {Year: 2020}}
	first := AssignTimeIndex(rows)
	second := AssignTimeIndex(rows)
	assert.Equal(t, first, second)
	got := []int{first[0].T, first[1].T, first[2].T, first[3].T, first[4].T}
	assert.Equal(t, []int{3, 1, 2, 1, 3}, got)
	assert.Equal(t, 0, rows[0].T, "input is not mutated")
}

func TestCollapseSexSumsThenDerives(t *testing.T) {
	pop := []population.Aggregate{
		popAgg(2000, ageband.Male, 1, 1000),
		popAgg(2000, ageband.Female, 1, 3000),
		popAgg(2000, ageband.Male, 2, 10),
		popAgg(2000, ageband.Female, 2, 10),
		popAgg(2001, ageband.Male, 1, 100),
		popAgg(2001, ageband.Female, 1, 100),
	}
	dth := []deaths.Aggregate{
		deathAgg(2000, ageband.Male, 1, 10),
		deathAgg(2000, ageband.Female, 1, 2),
		deathAgg(2001, ageband.Female, 1, 1),
	}
	opt := DefaultOptions()
	col := CollapseSex(Join(pop, dth, opt), opt)
	require.Len(t, col, 3)

	assert.Equal(t, Row{Year: 2000, T: 1, Bucket: 1, Population: 4000, Deaths: 12, Rate: 0.003, Per100k: col[0].Per100k}, col[0])
	assert.InDelta(t, 300.0, col[0].Per100k, 1e-9, "rate of sums, not mean of rates")

	assert.True(t, math.IsNaN(col[1].Deaths), "all-NaN group stays NaN")
	assert.Equal(t, int64(20), col[1].Population)

	assert.Equal(t, 1.0, col[2].Deaths, "present values are summed")
	assert.Equal(t, 2, col[2].T)
	assert.Equal(t, ageband.Sex(0), col[2].Sex)
}

func TestTables(t *testing.T) {
	rows := Join([]population.Aggregate{popAgg(2000, ageband.Female, 3, 0)}, nil, DefaultOptions())
	jt := JoinedTable(rows)
	assert.Equal(t, []string{"ano", "sexo", "gr_et", "poblacion", "conteo_defunciones", "tasa_x100k", "tasa", "t"}, jt.Header)
	assert.Equal(t, []string{"2000", "2", "3", "0", "", "", "", "1"}, jt.Rows[0])

	ct := CollapsedTable(CollapseSex(rows, DefaultOptions()))
	assert.Equal(t, []string{"ano", "t", "gr_et", "poblacion", "conteo_defunciones", "tasa_x100k", "tasa"}, ct.Header)
	assert.Equal(t, []string{"2000", "1", "3", "0", "", "", ""}, ct.Rows[0])
}
