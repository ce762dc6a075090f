package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"wow-guild-mcp/internal/models"
	"wow-guild-mcp/internal/services/query"
)

const (
	sheetTopItems = "Top Items"
	sheetVelocity = "Velocity"
)

// copperToGold converts auction house copper prices to gold for the report.
func copperToGold(copper float64) float64 {
	return copper / 10000.0
}

// MarketReport renders one realm's market overview as an XLSX workbook with
// a top-items sheet and a sales-velocity sheet.
type MarketReport struct {
	Key      models.RealmKey
	TopItems []query.TopItem
	Velocity []query.ItemVelocity
}

// Write renders the workbook to w.
func (r *MarketReport) Write(w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := r.writeTopItems(f); err != nil {
		return fmt.Errorf("export top items: %w", err)
	}
	if err := r.writeVelocity(f); err != nil {
		return fmt.Errorf("export velocity: %w", err)
	}

	// The default sheet excelize creates becomes the top items sheet.
	if idx, err := f.GetSheetIndex(sheetTopItems); err == nil {
		f.SetActiveSheet(idx)
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("export write: %w", err)
	}
	return nil
}

func (r *MarketReport) writeTopItems(f *excelize.File) error {
	if err := f.SetSheetName("Sheet1", sheetTopItems); err != nil {
		return err
	}
	headers := []string{
		"Item ID", "Total Quantity", "Auctions", "Sellers",
		"Mean Price (g)", "Median Price (g)", "Top Seller Share", "Captured At",
	}
	if err := setRow(f, sheetTopItems, 1, toAny(headers)); err != nil {
		return err
	}
	for i, item := range r.TopItems {
		row := []any{
			item.ItemID,
			item.TotalQuantity,
			item.AuctionCount,
			item.UniqueSellerCount,
			copperToGold(item.MeanPrice),
			copperToGold(item.MedianPrice),
			item.TopSellerShare,
			item.CapturedAt.Format("2006-01-02 15:04"),
		}
		if err := setRow(f, sheetTopItems, i+2, row); err != nil {
			return err
		}
	}
	return nil
}

func (r *MarketReport) writeVelocity(f *excelize.File) error {
	if _, err := f.NewSheet(sheetVelocity); err != nil {
		return err
	}
	headers := []string{
		"Item ID", "Estimated Sales", "Snapshots", "Latest Quantity", "Latest Mean Price (g)",
	}
	if err := setRow(f, sheetVelocity, 1, toAny(headers)); err != nil {
		return err
	}
	for i, v := range r.Velocity {
		row := []any{
			v.ItemID,
			v.EstimatedSales,
			v.Snapshots,
			v.LatestQuantity,
			copperToGold(v.LatestPrice),
		}
		if err := setRow(f, sheetVelocity, i+2, row); err != nil {
			return err
		}
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	for col, v := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return err
		}
	}
	return nil
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
