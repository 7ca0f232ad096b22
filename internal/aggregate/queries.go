// Package aggregate runs the fixed set of dashboard aggregations against the
// store once and keeps the results in an immutable Catalog.
package aggregate

import (
	"fmt"

	"github.com/verte-zerg/sparcsviz/internal/model"
	"github.com/verte-zerg/sparcsviz/internal/store"
)

// Source column names of the discharge dataset.
const (
	SourceYear       = "Discharge Year"
	SourceInsurance  = "Insurance Type"
	SourceAgeGroup   = "Age Group"
	SourceGender     = "Gender"
	SourceDischarges = "Number of Discharges"
	SourceStay       = "Average Length of Stay"
)

// Result column names shared by the aggregation tables.
const (
	ColYear       = "year"
	ColInsurance  = "insurance_type"
	ColAgeGroup   = "age_group"
	ColGender     = "gender"
	ColDischarges = "discharges"
	ColAvgStay    = "avg_stay"
	ColRecords    = "records"
)

// Names of the cached tables.
const (
	TableDischargesByYear          = "discharges_by_year"
	TableDischargesByYearInsurance = "discharges_by_year_insurance"
	TableStayByAgeInsurance        = "stay_by_age_insurance"
	TableDischargesByGender        = "discharges_by_gender_insurance"
	TableUtilizationByAgeInsurance = "utilization_by_age_insurance"
)

// Query is one named aggregation. SQL contains a single %s for the quoted
// source table.
type Query struct {
	Name    string
	SQL     string
	Keys    []string
	Columns []model.Column
	Source  []string
}

// Render returns the SQL for the given source table.
func (q Query) Render(table string) string {
	return fmt.Sprintf(q.SQL, store.QuoteIdent(table))
}

var (
	colYear       = model.Column{Name: ColYear, Type: model.Quantitative}
	colInsurance  = model.Column{Name: ColInsurance, Type: model.Nominal}
	colAgeGroup   = model.Column{Name: ColAgeGroup, Type: model.Ordinal}
	colGender     = model.Column{Name: ColGender, Type: model.Nominal}
	colDischarges = model.Column{Name: ColDischarges, Type: model.Quantitative}
	colAvgStay    = model.Column{Name: ColAvgStay, Type: model.Quantitative}
	colRecords    = model.Column{Name: ColRecords, Type: model.Quantitative}
)

// Queries returns the dashboard's aggregation set in execution order.
func Queries() []Query {
	return []Query{
		{
			Name: TableDischargesByYear,
			SQL: `SELECT CAST("Discharge Year" AS INTEGER) AS year,
				SUM("Number of Discharges") AS discharges
			FROM %s
			GROUP BY 1
			ORDER BY 1`,
			Keys:    []string{ColYear},
			Columns: []model.Column{colYear, colDischarges},
			Source:  []string{SourceYear, SourceDischarges},
		},
		{
			Name: TableDischargesByYearInsurance,
			SQL: `SELECT CAST("Discharge Year" AS INTEGER) AS year,
				"Insurance Type" AS insurance_type,
				SUM("Number of Discharges") AS discharges
			FROM %s
			GROUP BY 1, 2
			ORDER BY 1, 2`,
			Keys:    []string{ColYear, ColInsurance},
			Columns: []model.Column{colYear, colInsurance, colDischarges},
			Source:  []string{SourceYear, SourceInsurance, SourceDischarges},
		},
		{
			Name: TableStayByAgeInsurance,
			SQL: `SELECT "Age Group" AS age_group,
				"Insurance Type" AS insurance_type,
				AVG(clean_stay("Average Length of Stay")) AS avg_stay
			FROM %s
			GROUP BY 1, 2
			ORDER BY 1, 2`,
			Keys:    []string{ColAgeGroup, ColInsurance},
			Columns: []model.Column{colAgeGroup, colInsurance, colAvgStay},
			Source:  []string{SourceAgeGroup, SourceInsurance, SourceStay},
		},
		{
			Name: TableDischargesByGender,
			SQL: `SELECT "Gender" AS gender,
				"Insurance Type" AS insurance_type,
				SUM("Number of Discharges") AS discharges,
				COUNT(*) AS records
			FROM %s
			GROUP BY 1, 2
			ORDER BY 1, 2`,
			Keys:    []string{ColGender, ColInsurance},
			Columns: []model.Column{colGender, colInsurance, colDischarges, colRecords},
			Source:  []string{SourceGender, SourceInsurance, SourceDischarges},
		},
		{
			Name: TableUtilizationByAgeInsurance,
			SQL: `SELECT "Age Group" AS age_group,
				"Insurance Type" AS insurance_type,
				SUM("Number of Discharges") AS discharges,
				AVG(clean_stay("Average Length of Stay")) AS avg_stay
			FROM %s
			GROUP BY 1, 2
			ORDER BY 1, 2`,
			Keys:    []string{ColAgeGroup, ColInsurance},
			Columns: []model.Column{colAgeGroup, colInsurance, colDischarges, colAvgStay},
			Source:  []string{SourceAgeGroup, SourceInsurance, SourceDischarges, SourceStay},
		},
	}
}

// SourceColumns lists every source column the queries read, in first-use
// order.
func SourceColumns(queries []Query) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, q := range queries {
		for _, c := range q.Source {
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	return out
}
