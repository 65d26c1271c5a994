// Package report renders account statements as spreadsheets.
package report

import (
	"fmt"
	"io"
	"sort"

	"github.com/flaboy/aira-checkout/pkg/hashid"
	"github.com/flaboy/aira-checkout/pkg/models"
	"github.com/flaboy/aira-checkout/pkg/types"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const StatementSheet = "Statement"

var statementHeader = []interface{}{"Date", "Type", "Amount", "Currency", "Description", "Order"}

// ExportLedger writes txs to w as an xlsx workbook. Debits are negative. One
// totals row per currency follows the transactions.
func ExportLedger(w io.Writer, txs []models.BalanceTransaction) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", StatementSheet); err != nil {
		return err
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	money, err := f.NewStyle(&excelize.Style{NumFmt: 4}) // #,##0.00
	if err != nil {
		return err
	}
	boldMoney, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}, NumFmt: 4})
	if err != nil {
		return err
	}

	if err := f.SetSheetRow(StatementSheet, "A1", &statementHeader); err != nil {
		return err
	}
	if err := f.SetCellStyle(StatementSheet, "A1", "F1", bold); err != nil {
		return err
	}

	totals := map[string]decimal.Decimal{}
	row := 2
	for _, tx := range txs {
		amount := *types.MinorToDecimal(tx.Amount)
		if tx.Type == models.BalanceDebit {
			amount = amount.Neg()
		}
		totals[tx.Currency] = totals[tx.Currency].Add(amount)

		order := ""
		if tx.OrderID != nil {
			order = hashid.Encode(hashid.TypeOrder, *tx.OrderID)
		}
		cells := []interface{}{
			tx.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
			string(tx.Type),
			amount.InexactFloat64(),
			tx.Currency,
			tx.Description,
			order,
		}
		if err := f.SetSheetRow(StatementSheet, fmt.Sprintf("A%d", row), &cells); err != nil {
			return err
		}
		if err := f.SetCellStyle(StatementSheet, fmt.Sprintf("C%d", row), fmt.Sprintf("C%d", row), money); err != nil {
			return err
		}
		row++
	}

	currencies := make([]string, 0, len(totals))
	for c := range totals {
		currencies = append(currencies, c)
	}
	sort.Strings(currencies)

	for _, c := range currencies {
		cells := []interface{}{"Total", "", totals[c].InexactFloat64(), c}
		if err := f.SetSheetRow(StatementSheet, fmt.Sprintf("A%d", row), &cells); err != nil {
			return err
		}
		if err := f.SetCellStyle(StatementSheet, fmt.Sprintf("A%d", row), fmt.Sprintf("D%d", row), boldMoney); err != nil {
			return err
		}
		row++
	}

	if err := f.SetColWidth(StatementSheet, "A", "A", 20); err != nil {
		return err
	}
	if err := f.SetColWidth(StatementSheet, "E", "E", 48); err != nil {
		return err
	}

	return f.Write(w)
}
