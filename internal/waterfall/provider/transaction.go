package provider

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/opendate-cli/internal/join"
	"github.com/sells-group/opendate-cli/internal/model"
	"github.com/sells-group/opendate-cli/internal/table"
)

const (
	fieldSAON   = "saon"
	fieldPAON   = "paon"
	fieldStreet = "street"
)

// TransactionFields are the accepted columns of a property sales extract.
// A single address column wins over composed SAON/PAON/street parts.
func TransactionFields() []table.Field {
	return []table.Field{
		{Name: FieldPostcode, Aliases: []string{"postcode", "Postcode", "postal_code"}, Required: true},
		{Name: FieldDate, Aliases: []string{"date_of_transfer", "transfer_date", "date"}, Required: true},
		{Name: FieldAddress, Aliases: []string{"address", "full_address"}},
		{Name: fieldSAON, Aliases: []string{"SAON", "saon"}},
		{Name: fieldPAON, Aliases: []string{"PAON", "paon"}},
		{Name: fieldStreet, Aliases: []string{"Street", "street"}},
		{Name: FieldExternalID, Aliases: []string{"transaction_unique_identifier", "transaction_id"}},
	}
}

type sale struct {
	date  model.PartialDate
	extID string
}

type saleGroup struct {
	first sale
	count int
}

// Transaction proxies an opening date by the first recorded sale of the same
// postcode and address.
type Transaction struct {
	groups map[string]saleGroup
	stats  LoadStats
}

func transactionKey(postcode, address string) string {
	pc, addr := join.NormalizePostcode(postcode), join.NormalizeText(address)
	if pc == "" || addr == "" {
		return ""
	}
	return pc + "|" + addr
}

// NewTransaction groups t by normalized postcode and address. Each group is
// sorted by transfer date so its first element is the minimum.
func NewTransaction(t *table.Table, overrides map[string][]string) (*Transaction, error) {
	cols, err := table.Bind(model.SourceTransactionRegistry, t, TransactionFields(), overrides)
	if err != nil {
		return nil, err
	}
	addressOf := addressReader(t, cols)

	grouped := make(map[string][]sale)
	var stats LoadStats
	for r := 0; r < t.Len(); r++ {
		stats.Rows++
		key := transactionKey(t.Value(r, cols[FieldPostcode]), addressOf(r))
		if key == "" {
			stats.MissingKey++
			continue
		}
		d, err := model.ParseDate(t.Value(r, cols[FieldDate]))
		if err != nil {
			stats.UnusableDate++
			continue
		}
		grouped[key] = append(grouped[key], sale{date: d, extID: t.Value(r, cols[FieldExternalID])})
	}

	groups := make(map[string]saleGroup, len(grouped))
	for k, sales := range grouped {
		sort.SliceStable(sales, func(i, j int) bool { return sales[i].date.Before(sales[j].date) })
		groups[k] = saleGroup{first: sales[0], count: len(sales)}
	}
	stats.Indexed = len(groups)

	zap.L().Info("provider: grouped transactions",
		zap.Int("rows", stats.Rows),
		zap.Int("groups", stats.Indexed),
		zap.Int("missing_key", stats.MissingKey),
		zap.Int("unusable_date", stats.UnusableDate),
	)
	return &Transaction{groups: groups, stats: stats}, nil
}

func addressReader(t *table.Table, cols table.Columns) func(int) string {
	if cols.Has(FieldAddress) {
		return func(r int) string { return t.Value(r, cols[FieldAddress]) }
	}
	return func(r int) string {
		parts := make([]string, 0, 3)
		for _, f := range []string{fieldSAON, fieldPAON, fieldStreet} {
			if v := t.Value(r, cols[f]); v != "" {
				parts = append(parts, v)
			}
		}
		return strings.Join(parts, " ")
	}
}

// Name implements Provider.
func (p *Transaction) Name() string { return model.SourceTransactionRegistry }

// Stats reports how the extract was grouped.
func (p *Transaction) Stats() LoadStats { return p.stats }

// Produce implements Provider.
func (p *Transaction) Produce(_ context.Context, e model.Entity) (*model.CandidateDate, error) {
	key := transactionKey(e.PostalCode, e.Address)
	if key == "" {
		return nil, nil
	}
	g, ok := p.groups[key]
	if !ok {
		return nil, nil
	}
	return &model.CandidateDate{
		Date:                g.first.date,
		Source:              model.SourceTransactionRegistry,
		ExternalReferenceID: g.first.extID,
		MatchConfidence:     1.0,
	}, nil
}
