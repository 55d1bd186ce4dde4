package pipeline

import (
	"fmt"

	"github.com/scuartasr/tfm-tuberc/internal/deaths"
	"github.com/scuartasr/tfm-tuberc/internal/mortality"
	"github.com/scuartasr/tfm-tuberc/internal/population"
	"github.com/scuartasr/tfm-tuberc/internal/table"
	"github.com/scuartasr/tfm-tuberc/internal/utils"
	"github.com/scuartasr/tfm-tuberc/internal/validate"
)

type checkedTable struct {
	entity string
	path   string
	check  func(*table.Table) []validate.Finding
}

// ValidateDir re-runs the integrity checks over the tables a previous run
// left in outputDir. Absent tables are skipped; it is an error when none is
// found. In critical mode the first escalating finding aborts with an
// *validate.IntegrityError.
func ValidateDir(outputDir string, mode validate.Mode) (validate.Report, []validate.Finding, error) {
	targets := []checkedTable{
		{validate.EntityPopulation, OutputPath(outputDir, DirPopulation, population.LongTableName), validate.Population},
		{validate.EntityDeaths, OutputPath(outputDir, DirDeaths, deaths.AggregateTableName), validate.Deaths},
		{validate.EntityJoined, OutputPath(outputDir, DirMortality, mortality.JoinedTableName), validate.Joined},
	}
	rep := validate.Report{}
	var all []validate.Finding
	for _, tc := range targets {
		if !utils.FileExists(tc.path) {
			continue
		}
		t, err := table.ReadFile(tc.path, table.ReadOptions{})
		if err != nil {
			return rep, all, err
		}
		findings := tc.check(t)
		all = append(all, findings...)
		msgs, err := validate.Apply(findings, mode)
		rep.Add(tc.entity, msgs)
		if err != nil {
			return rep, all, err
		}
	}
	if len(rep) == 0 {
		return rep, nil, fmt.Errorf("no pipeline outputs found under %s", outputDir)
	}
	return rep, all, nil
}
