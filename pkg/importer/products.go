// Package importer loads the product catalog from xlsx or CSV sheets.
//
// Expected columns (header names are case-insensitive):
//
//	id           optional pr-... id; updates the existing product
//	name         required
//	seller       required, us-... id or numeric user id
//	price        required, e.g. 49.90, 1.234,50 or 1,234.50
//	currency     optional, defaults to USD
//	active       optional, defaults to true
//	coproducers  optional, "us-abc:10;us-def:12.5"
package importer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"unicode"

	"github.com/flaboy/aira-checkout/pkg/errors"
	"github.com/flaboy/aira-checkout/pkg/hashid"
	"github.com/flaboy/aira-checkout/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
	"gorm.io/gorm"
)

var requiredColumns = []string{"name", "seller", "price"}

type RowError struct {
	Line  int    `json:"line"`
	Error string `json:"error"`
}

type Result struct {
	Created []string   `json:"created"`
	Updated []string   `json:"updated"`
	Failed  []RowError `json:"failed"`
}

type productRow struct {
	id          uint
	product     models.Product
	coproducers []models.ProductCoproducer
}

// ImportProducts 逐行写入，单行失败不影响其他行
func ImportProducts(ctx context.Context, db *gorm.DB, fd io.Reader, ft FileType) (*Result, error) {
	src, err := openSource(fd, ft)
	if err != nil {
		return nil, err
	}
	if err := checkHeader(src.Header()); err != nil {
		return nil, err
	}

	result := &Result{Created: []string{}, Updated: []string{}, Failed: []RowError{}}
	for row := range src.Rows() {
		parsed, err := parseProductRow(row)
		if err == nil {
			var created bool
			created, err = saveProduct(ctx, db, parsed)
			if err == nil {
				id := hashid.Encode(hashid.TypeProduct, parsed.product.ID)
				if created {
					result.Created = append(result.Created, id)
				} else {
					result.Updated = append(result.Updated, id)
				}
				continue
			}
		}
		slog.Warn("[Importer] Row skipped", "line", row.Line, "error", err)
		result.Failed = append(result.Failed, RowError{Line: row.Line, Error: err.Error()})
	}
	if err := src.Err(); err != nil {
		return result, err
	}

	slog.Info("[Importer] Products imported",
		"created", len(result.Created), "updated", len(result.Updated), "failed", len(result.Failed))
	return result, nil
}

func checkHeader(header []string) error {
	seen := make(map[string]bool, len(header))
	for _, h := range header {
		seen[h] = true
	}
	var missing []string
	for _, c := range requiredColumns {
		if !seen[c] {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing columns: %s", strings.Join(missing, ", "))
	}
	return nil
}

func parseProductRow(row Row) (*productRow, error) {
	out := &productRow{}

	if raw := row.Get("id"); raw != "" {
		id, err := hashid.Decode(hashid.TypeProduct, raw)
		if err != nil {
			return nil, errors.ErrProductInvalidID
		}
		out.id = id
	}

	name := row.Get("name")
	if name == "" {
		return nil, fmt.Errorf("name is empty")
	}

	sellerID, err := parseUserRef(row.Get("seller"))
	if err != nil {
		return nil, fmt.Errorf("seller: %w", err)
	}

	price, err := parseMinorAmount(row.Get("price"))
	if err != nil {
		return nil, fmt.Errorf("price: %w", err)
	}
	if price <= 0 {
		return nil, errors.ErrInvalidAmount
	}

	currency := strings.ToUpper(row.Get("currency"))
	if currency == "" {
		currency = "USD"
	}
	if len(currency) != 3 {
		return nil, fmt.Errorf("currency %q is not a 3-letter code", currency)
	}

	active := true
	if raw := row.Get("active"); raw != "" {
		active, err = parseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("active: %w", err)
		}
	}

	out.product = models.Product{
		SellerID: sellerID,
		Name:     name,
		Price:    price,
		Currency: currency,
		Active:   active,
	}

	out.coproducers, err = parseCoproducers(row.Get("coproducers"))
	if err != nil {
		return nil, err
	}
	return out, nil
}

func saveProduct(ctx context.Context, db *gorm.DB, row *productRow) (bool, error) {
	created := row.id == 0
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if created {
			if err := tx.Create(&row.product).Error; err != nil {
				return err
			}
			// default:true 的字段创建时会忽略 false
			if !row.product.Active {
				if err := tx.Model(&row.product).Update("active", false).Error; err != nil {
					return err
				}
			}
		} else {
			var existing models.Product
			if err := tx.First(&existing, row.id).Error; err != nil {
				if err == gorm.ErrRecordNotFound {
					return errors.ErrProductNotFound
				}
				return err
			}
			if err := tx.Model(&existing).Updates(map[string]interface{}{
				"seller_id": row.product.SellerID,
				"name":      row.product.Name,
				"price":     row.product.Price,
				"currency":  row.product.Currency,
				"active":    row.product.Active,
			}).Error; err != nil {
				return err
			}
			if err := tx.Where("product_id = ?", existing.ID).Delete(&models.ProductCoproducer{}).Error; err != nil {
				return err
			}
			row.product.ID = existing.ID
		}

		for i := range row.coproducers {
			row.coproducers[i].ProductID = row.product.ID
		}
		if len(row.coproducers) > 0 {
			return tx.Create(&row.coproducers).Error
		}
		return nil
	})
	return created, err
}

func parseUserRef(raw string) (uint, error) {
	if raw == "" {
		return 0, fmt.Errorf("empty user")
	}
	if strings.HasPrefix(raw, hashid.TypeUser.Prefix) {
		id, err := hashid.Decode(hashid.TypeUser, raw)
		if err != nil {
			return 0, errors.ErrUserInvalidID
		}
		return id, nil
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, errors.ErrUserInvalidID
	}
	return uint(id), nil
}

// parseCoproducers 解析 "us-abc:10;us-def:12.5"
func parseCoproducers(raw string) ([]models.ProductCoproducer, error) {
	var out []models.ProductCoproducer
	if raw == "" {
		return out, nil
	}

	seen := map[uint]bool{}
	total := decimal.Zero
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		user, pct, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("coproducer %q: expected user:percent", part)
		}
		userID, err := parseUserRef(strings.TrimSpace(user))
		if err != nil {
			return nil, fmt.Errorf("coproducer %q: %w", part, err)
		}
		if seen[userID] {
			return nil, fmt.Errorf("coproducer %q listed twice", strings.TrimSpace(user))
		}
		seen[userID] = true

		percent, err := decimal.NewFromString(strings.TrimSuffix(strings.TrimSpace(pct), "%"))
		if err != nil || !percent.IsPositive() {
			return nil, fmt.Errorf("coproducer %q: invalid percent", part)
		}
		total = total.Add(percent)
		out = append(out, models.ProductCoproducer{UserID: userID, CommissionPercent: percent})
	}
	if total.GreaterThan(decimal.NewFromInt(100)) {
		return nil, errors.ErrCommissionOverflow
	}
	return out, nil
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(raw) {
	case "yes", "y", "on":
		return true, nil
	case "no", "n", "off":
		return false, nil
	}
	return cast.ToBoolE(raw)
}

// parseMinorAmount 将价格文本转换为分，最多两位小数
func parseMinorAmount(input string) (int64, error) {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) || r == '.' || r == ',' || r == '-' {
			return r
		}
		return -1
	}, input)
	if cleaned == "" {
		return 0, fmt.Errorf("empty amount %q", input)
	}

	switch decimalSeparator(cleaned) {
	case ',':
		cleaned = strings.ReplaceAll(cleaned, ".", "")
		cleaned = strings.ReplaceAll(cleaned, ",", ".")
	default:
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", input)
	}
	cents := d.Shift(2)
	if !cents.Equal(cents.Truncate(0)) {
		return 0, fmt.Errorf("amount %q has more than two decimals", input)
	}
	return cents.IntPart(), nil
}

// decimalSeparator 猜测小数点符号
// 1,234.50 / 1.234,50 以最后出现的为准；单独的 49,90 视为小数；1,234 视为千分位
func decimalSeparator(s string) rune {
	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")

	if lastDot >= 0 && lastComma >= 0 {
		if lastComma > lastDot {
			return ','
		}
		return '.'
	}
	if lastComma >= 0 {
		if strings.Count(s, ",") == 1 && len(s)-lastComma-1 <= 2 {
			return ','
		}
		return 0
	}
	if lastDot >= 0 && strings.Count(s, ".") > 1 {
		// 1.234.567 只能是千分位
		return ','
	}
	return '.'
}
