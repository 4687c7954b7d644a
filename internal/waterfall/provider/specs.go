package provider

import (
	"github.com/sells-group/opendate-cli/internal/model"
	"github.com/sells-group/opendate-cli/internal/table"
)

func refField() table.Field {
	return table.Field{Name: FieldReference, Aliases: ReferenceAliases, Required: true}
}

// eventDate reads a recorded event date at whatever precision it carries.
func eventDate(t *table.Table, cols table.Columns, r int) (model.PartialDate, bool) {
	d, err := model.ParseDate(t.Value(r, cols[FieldDate]))
	return d, err == nil
}

// startYear reads an explicit year, falling back to the start of a period.
func startYear(t *table.Table, cols table.Columns, r int) (model.PartialDate, bool) {
	if y, ok := model.ExtractYear(t.Value(r, cols[FieldYear])); ok {
		return model.YearOnly(y), true
	}
	if y, ok := model.PeriodStartYear(t.Value(r, cols[FieldPeriod])); ok {
		return model.YearOnly(y), true
	}
	return model.PartialDate{}, false
}

// constructionYear reads the year of a listed construction date, falling
// back to the earliest year mentioned in the listing text.
func constructionYear(t *table.Table, cols table.Columns, r int) (model.PartialDate, bool) {
	raw := t.Value(r, cols[FieldDate])
	if d, err := model.ParseDate(raw); err == nil {
		return model.YearOnly(d.Year), true
	}
	if y, ok := model.ExtractYear(raw); ok {
		return model.YearOnly(y), true
	}
	if y, ok := model.EarliestYear(t.Value(r, cols[FieldDescription])); ok {
		return model.YearOnly(y), true
	}
	return model.PartialDate{}, false
}

// BusinessRegistrySpec indexes company incorporation dates.
func BusinessRegistrySpec() Spec {
	return Spec{
		Source: model.SourceBusinessRegistry,
		Fields: []table.Field{
			refField(),
			{Name: FieldDate, Aliases: []string{"IncorporationDate", "incorporation_date", "date_of_creation"}, Required: true},
			{Name: FieldExternalID, Aliases: []string{"CompanyNumber", "company_number"}},
			{Name: FieldName, Aliases: []string{"CompanyName", "company_name", "name"}},
			{Name: FieldPostcode, Aliases: []string{"RegAddress.PostCode", "postcode", "postal_code"}},
			{Name: FieldAddress, Aliases: []string{"RegAddress.AddressLine1", "address"}},
		},
		Extract: eventDate,
	}
}

// PlanningRegistrySpec indexes development completion or occupation dates.
func PlanningRegistrySpec() Spec {
	return Spec{
		Source: model.SourcePlanningRegistry,
		Fields: []table.Field{
			refField(),
			{Name: FieldDate, Aliases: []string{"completion_date", "completion", "occupation_date", "occupation"}, Required: true},
			{Name: FieldExternalID, Aliases: []string{"application_reference", "planning_reference", "case_reference"}},
			{Name: FieldName, Aliases: []string{"site_name", "name"}},
			{Name: FieldPostcode, Aliases: []string{"postcode", "postal_code"}},
			{Name: FieldAddress, Aliases: []string{"site_address", "address"}},
		},
		Extract: eventDate,
	}
}

// CadastralAgeSpec indexes building age years or age periods.
func CadastralAgeSpec() Spec {
	return Spec{
		Source: model.SourceCadastralAge,
		Fields: []table.Field{
			refField(),
			{Name: FieldYear, Aliases: []string{"building_age_year", "age_year"}},
			{Name: FieldPeriod, Aliases: []string{"building_age_period", "age_period"}},
			{Name: FieldExternalID, Aliases: []string{"building_id", "toid", "TOID"}},
		},
		AnyOf:   []string{FieldYear, FieldPeriod},
		Extract: startYear,
	}
}

// RefinementRegistrySpec indexes energy certificate construction age bands.
func RefinementRegistrySpec() Spec {
	return Spec{
		Source: model.SourceRefinementRegistry,
		Fields: []table.Field{
			refField(),
			{Name: FieldYear, Aliases: []string{"construction_age", "construction_year"}},
			{Name: FieldPeriod, Aliases: []string{"CONSTRUCTION_AGE_BAND", "construction_age_band"}},
			{Name: FieldExternalID, Aliases: []string{"LMK_KEY", "lmk_key", "certificate_number"}},
		},
		AnyOf:   []string{FieldYear, FieldPeriod},
		Extract: startYear,
	}
}

// HeritageRegistrySpec indexes listed building construction years.
func HeritageRegistrySpec() Spec {
	return Spec{
		Source: model.SourceHeritageRegistry,
		Fields: []table.Field{
			refField(),
			{Name: FieldDate, Aliases: []string{"construction_date", "date_built"}},
			{Name: FieldDescription, Aliases: []string{"description", "list_entry_description", "details"}},
			{Name: FieldExternalID, Aliases: []string{"ListEntry", "list_entry", "list_entry_number"}},
			{Name: FieldName, Aliases: []string{"Name", "name"}},
		},
		AnyOf:   []string{FieldDate, FieldDescription},
		Extract: constructionYear,
	}
}

// SpecFor returns the built-in spec of a reference-keyed source.
func SpecFor(source string) (Spec, bool) {
	switch source {
	case model.SourceBusinessRegistry:
		return BusinessRegistrySpec(), true
	case model.SourcePlanningRegistry:
		return PlanningRegistrySpec(), true
	case model.SourceCadastralAge:
		return CadastralAgeSpec(), true
	case model.SourceRefinementRegistry:
		return RefinementRegistrySpec(), true
	case model.SourceHeritageRegistry:
		return HeritageRegistrySpec(), true
	default:
		return Spec{}, false
	}
}
