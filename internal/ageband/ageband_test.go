package ageband

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBucketForAgeCoverage(t *testing.T) {
	for age := 0; age <= 130; age++ {
		b, ok := BucketForAge(age)
		require.True(t, ok, "age %d", age)
		require.GreaterOrEqual(t, b, 1, "age %d", age)
		require.LessOrEqual(t, b, NumBuckets, "age %d", age)
	}
	for age := 0; age <= 4; age++ {
		b, _ := BucketForAge(age)
		assert.Equal(t, 1, b)
	}
	for age := 75; age <= 79; age++ {
		b, _ := BucketForAge(age)
		assert.Equal(t, 16, b)
	}
	for _, age := range []int{80, 85, 99, 130} {
		b, _ := BucketForAge(age)
		assert.Equal(t, 17, b)
	}
	b, _ := BucketForAge(5)
	assert.Equal(t, 2, b)
	_, ok := BucketForAge(-1)
	assert.False(t, ok)
}

func TestBucketLabel(t *testing.T) {
	assert.Equal(t, "0-4", BucketLabel(1))
	assert.Equal(t, "75-79", BucketLabel(16))
	assert.Equal(t, "80+", BucketLabel(17))
	assert.Equal(t, "", BucketLabel(0))
}

func TestParseAge(t *testing.T) {
	for raw, want := range map[string]int{"0": 0, "080": 80, " 12 ": 12, "130": 130} {
		got, err := ParseAge(raw)
		require.NoError(t, err)
		assert.Equal(t, want, got, raw)
	}
	for _, raw := range []string{"-1", "x", ""} {
		_, err := ParseAge(raw)
		var ue *UnmappableCodeError
		assert.ErrorAs(t, err, &ue, raw)
	}
}

func TestParseSex(t *testing.T) {
	for _, raw := range []string{"1", "H", "Hombre", " hombres ", "MASCULINO", "1.0"} {
		s, err := ParseSex(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, Male, s, raw)
	}
	for _, raw := range []string{"2", "M", "Mujer", "mujeres", "Femenino"} {
		s, err := ParseSex(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, Female, s, raw)
	}
	for _, raw := range []string{"3", "9", "", "x", "total"} {
		_, err := ParseSex(raw)
		var ue *UnmappableCodeError
		require.True(t, errors.As(err, &ue), raw)
		assert.Equal(t, "sex", ue.Kind)
	}
}

func TestEraFor(t *testing.T) {
	cases := map[int]string{
		1979: "1979-1997",
		1997: "1979-1997",
		1998: "1998-2007",
		2007: "1998-2007",
		2008: "2008-2023",
		2020: "2008-2023",
		2023: "2008-2023",
	}
	for year, name := range cases {
		e, err := EraFor(year)
		require.NoError(t, err)
		assert.Equal(t, name, e.Name, "year %d", year)
	}
	_, err := EraFor(1978)
	require.Error(t, err)
	_, err = EraFor(2024)
	require.Error(t, err)
}

func TestEra1979Rules(t *testing.T) {
	e := Eras[0]
	for code := 0; code <= 7; code++ {
		b, ok := e.Map(code)
		require.True(t, ok)
		assert.Equal(t, 1, b, "code %d", code)
	}
	b, _ := e.Map(8)
	assert.Equal(t, 2, b)
	b, _ = e.Map(22)
	assert.Equal(t, 16, b)
	for _, code := range []int{23, 24, 26} {
		b, ok := e.Map(code)
		require.True(t, ok)
		assert.Equal(t, 17, b, "code %d", code)
	}
	_, ok := e.Map(25)
	assert.False(t, ok, "25 is the unknown-age sentinel")
	_, ok = e.Map(-1)
	assert.False(t, ok)
}

func TestEra1998And2008Rules(t *testing.T) {
	for _, tc := range []struct {
		era     Era
		unknown int
		other   int
	}{
		{Eras[1], 26, 29},
		{Eras[2], 29, 26},
	} {
		b, _ := tc.era.Map(8)
		assert.Equal(t, 1, b, tc.era.Name)
		b, _ = tc.era.Map(9)
		assert.Equal(t, 2, b, tc.era.Name)
		b, _ = tc.era.Map(23)
		assert.Equal(t, 16, b, tc.era.Name)
		b, _ = tc.era.Map(24)
		assert.Equal(t, 17, b, tc.era.Name)
		_, ok := tc.era.Map(tc.unknown)
		assert.False(t, ok, tc.era.Name)
		b, ok = tc.era.Map(tc.other)
		assert.True(t, ok, tc.era.Name)
		assert.Equal(t, 17, b, tc.era.Name)
	}
}

func TestMapAgeGroupAcrossEras(t *testing.T) {
	// The same raw code lands in different buckets depending on the era.
	b, err := MapAgeGroup(1990, 9)
	require.NoError(t, err)
	assert.Equal(t, 3, b)
	b, err = MapAgeGroup(2000, 9)
	require.NoError(t, err)
	assert.Equal(t, 2, b)

	_, err = MapAgeGroup(1990, 25)
	var ue *UnmappableCodeError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, "age group", ue.Kind)
	assert.Equal(t, 1990, ue.Year)

	_, err = MapAgeGroup(2015, 29)
	require.Error(t, err)
	b, err = MapAgeGroup(2015, 25)
	require.NoError(t, err)
	assert.Equal(t, 17, b)
}

func TestParseAgeGroupCode(t *testing.T) {
	for raw, want := range map[string]int{"07": 7, "7": 7, " 12 ": 12, "7.0": 7} {
		got, err := ParseAgeGroupCode(raw)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseAgeGroupCode("x")
	require.Error(t, err)
}
