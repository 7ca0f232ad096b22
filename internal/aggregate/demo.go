package aggregate

import (
	"fmt"

	"github.com/verte-zerg/sparcsviz/internal/model"
)

var (
	demoYears      = []int{2018, 2019, 2020, 2021}
	demoInsurance  = []string{"Medicaid", "Medicare", "Private Health Insurance", "Self-Pay"}
	demoAgeGroups  = []string{"0 to 17", "18 to 29", "30 to 49", "50 to 69", "70 or Older"}
	demoGenders    = []string{"F", "M"}
	demoStayFactor = map[string]float64{"0 to 17": 3.1, "18 to 29": 3.6, "30 to 49": 4.4, "50 to 69": 5.3, "70 or Older": 6.2}
)

// DemoSource returns a small synthetic discharge table with the source
// schema, used by --demo and tests. Stay lengths of the oldest Medicare
// group are right-censored ("N +").
func DemoSource() *model.ResultTable {
	cols := []model.Column{
		{Name: SourceYear, Type: model.Quantitative},
		{Name: SourceInsurance, Type: model.Nominal},
		{Name: SourceAgeGroup, Type: model.Ordinal},
		{Name: SourceGender, Type: model.Nominal},
		{Name: SourceDischarges, Type: model.Quantitative},
		{Name: SourceStay, Type: model.Nominal},
	}
	var rows []model.Row
	for yi, year := range demoYears {
		for ii, ins := range demoInsurance {
			for ai, age := range demoAgeGroups {
				for gi, gender := range demoGenders {
					discharges := 900 + 130*ai + 210*ii - 40*gi + 55*yi
					if year == 2020 {
						discharges -= 150
					}
					stay := demoStayFactor[age] + 0.3*float64(ii) + 0.1*float64(gi)
					text := fmt.Sprintf("%.1f", stay)
					if age == "70 or Older" && ins == "Medicare" {
						text += " +"
					}
					rows = append(rows, model.Row{
						SourceYear:       year,
						SourceInsurance:  ins,
						SourceAgeGroup:   age,
						SourceGender:     gender,
						SourceDischarges: discharges,
						SourceStay:       text,
					})
				}
			}
		}
	}
	return model.MustResultTable("sparcs_demo", cols, rows)
}
