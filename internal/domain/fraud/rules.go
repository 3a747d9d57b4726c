package fraud

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pasale/pasale-api/internal/config"
	"github.com/pasale/pasale-api/internal/domain/transaction"
)

// History is the slice of the transaction store the rules read.
type History interface {
	ListBetween(ctx context.Context, shopID uuid.UUID, from, to time.Time) ([]*transaction.Transaction, error)
	ListForProduct(ctx context.Context, shopID, productID uuid.UUID, since time.Time) ([]*transaction.Transaction, error)
}

// StockReader reports the stock on hand before a transaction is applied.
type StockReader interface {
	CurrentQuantity(ctx context.Context, shopID, productID uuid.UUID) (int, error)
}

// Check is the transaction being scored.
type Check struct {
	ShopID        uuid.UUID
	TransactionID *uuid.UUID
	ProductID     *uuid.UUID
	Quantity      int
	Price         decimal.Decimal
	Type          transaction.Type
	At            time.Time
}

// CheckFor builds the check of a recorded transaction.
func CheckFor(t *transaction.Transaction) Check {
	id := t.ID
	return Check{
		ShopID:        t.ShopID,
		TransactionID: &id,
		ProductID:     t.ProductID,
		Quantity:      t.Quantity,
		Price:         t.Price,
		Type:          t.Type,
		At:            t.CreatedAt,
	}
}

func (c Check) isSelf(t *transaction.Transaction) bool {
	return c.TransactionID != nil && t.ID == *c.TransactionID
}

// Finding is one triggered rule.
type Finding struct {
	Type       Type
	Level      RiskLevel
	Confidence float64
	Details    Details
}

type rule struct {
	name string
	eval func(ctx context.Context, c Check) (*Finding, error)
}

// Detector runs the rule set. Every rule is independent of the others.
type Detector struct {
	rules   config.Rules
	history History
	stock   StockReader
}

func NewDetector(rules config.Rules, history History, stock StockReader) *Detector {
	return &Detector{rules: rules, history: history, stock: stock}
}

func (d *Detector) ruleSet() []rule {
	return []rule{
		{"velocity", d.velocity},
		{"quantity", d.quantity},
		{"price", d.priceDeviation},
		{"duplicate", d.duplicate},
		{"time", d.timeOfDay},
		{"inventory", d.inventoryMismatch},
	}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// overshoot grows from 0.5 at the limit to 1 at twice the limit.
func overshoot(value, limit int) float64 {
	return clamp01(0.5 + 0.5*(float64(value)/float64(limit)-1))
}

func (d *Detector) countSince(ctx context.Context, c Check, window time.Duration) (int, error) {
	txns, err := d.history.ListBetween(ctx, c.ShopID, c.At.Add(-window), c.At.Add(time.Nanosecond))
	if err != nil {
		return 0, fmt.Errorf("velocity history: %w", err)
	}
	count := 1
	for _, t := range txns {
		if !c.isSelf(t) {
			count++
		}
	}
	return count, nil
}

// velocity counts the transaction itself together with the shop's other
// transactions in the trailing minute and hour.
func (d *Detector) velocity(ctx context.Context, c Check) (*Finding, error) {
	perMinute, err := d.countSince(ctx, c, time.Minute)
	if err != nil {
		return nil, err
	}
	if perMinute >= d.rules.MaxTransactionsPerMinute {
		return &Finding{
			Type:       TypeVelocity,
			Level:      RiskHigh,
			Confidence: overshoot(perMinute, d.rules.MaxTransactionsPerMinute),
			Details: Details{
				"window":            "1m",
				"transaction_count": perMinute,
				"limit":             d.rules.MaxTransactionsPerMinute,
			},
		}, nil
	}

	perHour, err := d.countSince(ctx, c, time.Hour)
	if err != nil {
		return nil, err
	}
	if perHour >= d.rules.MaxTransactionsPerHour {
		return &Finding{
			Type:       TypeVelocity,
			Level:      RiskMedium,
			Confidence: overshoot(perHour, d.rules.MaxTransactionsPerHour),
			Details: Details{
				"window":            "1h",
				"transaction_count": perHour,
				"limit":             d.rules.MaxTransactionsPerHour,
			},
		}, nil
	}
	return nil, nil
}

func (d *Detector) quantity(_ context.Context, c Check) (*Finding, error) {
	limit := d.rules.MaxQuantityPerTransaction
	if c.Quantity <= limit {
		return nil, nil
	}
	level := RiskMedium
	if c.Quantity > 2*limit {
		level = RiskHigh
	}
	return &Finding{
		Type:       TypeQuantity,
		Level:      level,
		Confidence: overshoot(c.Quantity, limit),
		Details:    Details{"quantity": c.Quantity, "limit": limit},
	}, nil
}

// priceDeviation compares the unit price with the product's recent prices of
// the same transaction type.
func (d *Detector) priceDeviation(ctx context.Context, c Check) (*Finding, error) {
	if c.ProductID == nil {
		return nil, nil
	}
	since := c.At.AddDate(0, 0, -d.rules.PriceHistoryDays)
	txns, err := d.history.ListForProduct(ctx, c.ShopID, *c.ProductID, since)
	if err != nil {
		return nil, fmt.Errorf("price history: %w", err)
	}

	var prices []float64
	for _, t := range txns {
		if c.isSelf(t) || t.Type != c.Type || t.CreatedAt.After(c.At) {
			continue
		}
		prices = append(prices, t.Price.InexactFloat64())
	}
	if len(prices) < d.rules.PriceHistoryMinSamples {
		return nil, nil
	}

	mean, stddev := meanStddev(prices)
	if stddev == 0 {
		return nil, nil
	}
	price := c.Price.InexactFloat64()
	z := math.Abs(price-mean) / stddev
	k := d.rules.PriceDeviationMultiplier
	if z <= k {
		return nil, nil
	}

	level := RiskMedium
	if z > 2*k {
		level = RiskHigh
	}
	return &Finding{
		Type:       TypePrice,
		Level:      level,
		Confidence: clamp01(z / (2 * k)),
		Details: Details{
			"price":         c.Price.String(),
			"mean_price":    math.Round(mean*100) / 100,
			"std_deviation": math.Round(stddev*100) / 100,
			"deviation":     math.Round(z*100) / 100,
			"sample_size":   len(prices),
		},
	}, nil
}

func meanStddev(values []float64) (float64, float64) {
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	var sq float64
	for _, v := range values {
		sq += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(sq / float64(len(values)))
}

// duplicate looks for an identical transaction shortly before this one.
func (d *Detector) duplicate(ctx context.Context, c Check) (*Finding, error) {
	window := time.Duration(d.rules.DuplicateWindowMinutes) * time.Minute
	txns, err := d.history.ListBetween(ctx, c.ShopID, c.At.Add(-window), c.At.Add(time.Nanosecond))
	if err != nil {
		return nil, fmt.Errorf("duplicate history: %w", err)
	}

	var matches []string
	for _, t := range txns {
		if c.isSelf(t) || t.Type != c.Type || t.Quantity != c.Quantity || !t.Price.Equal(c.Price) {
			continue
		}
		if !sameProduct(t.ProductID, c.ProductID) {
			continue
		}
		matches = append(matches, t.ID.String())
	}
	if len(matches) == 0 {
		return nil, nil
	}
	return &Finding{
		Type:       TypeDuplicate,
		Level:      RiskMedium,
		Confidence: clamp01(0.5 + 0.2*float64(len(matches))),
		Details: Details{
			"duplicates":     matches,
			"window_minutes": d.rules.DuplicateWindowMinutes,
		},
	}, nil
}

func sameProduct(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// timeOfDay flags transactions inside the suspicious window. The window wraps
// midnight when start is after end.
func (d *Detector) timeOfDay(_ context.Context, c Check) (*Finding, error) {
	start, end := d.rules.SuspiciousHoursStart, d.rules.SuspiciousHoursEnd
	hour := c.At.UTC().Hour()

	var inside bool
	switch {
	case start == end:
		inside = false
	case start < end:
		inside = hour >= start && hour < end
	default:
		inside = hour >= start || hour < end
	}
	if !inside {
		return nil, nil
	}
	return &Finding{
		Type:       TypeTime,
		Level:      RiskLow,
		Confidence: 0.4,
		Details:    Details{"hour": hour, "window_start": start, "window_end": end},
	}, nil
}

// inventoryMismatch projects the stock a sale would leave behind.
func (d *Detector) inventoryMismatch(ctx context.Context, c Check) (*Finding, error) {
	if c.ProductID == nil || c.Type != transaction.TypeSale || d.stock == nil {
		return nil, nil
	}
	current, err := d.stock.CurrentQuantity(ctx, c.ShopID, *c.ProductID)
	if err != nil {
		return nil, fmt.Errorf("stock lookup: %w", err)
	}
	projected := current - c.Quantity
	if projected >= -d.rules.InventoryMismatchThreshold {
		return nil, nil
	}
	return &Finding{
		Type:       TypeInventory,
		Level:      RiskHigh,
		Confidence: 0.8,
		Details: Details{
			"current_quantity":   current,
			"projected_quantity": projected,
			"threshold":          d.rules.InventoryMismatchThreshold,
		},
	}, nil
}

// Evaluate runs every rule. A failing rule does not stop the others; the
// findings of the rules that ran are returned along with the failures.
func (d *Detector) Evaluate(ctx context.Context, c Check) ([]Finding, map[string]error) {
	var findings []Finding
	var failures map[string]error
	for _, r := range d.ruleSet() {
		f, err := r.eval(ctx, c)
		if err != nil {
			if failures == nil {
				failures = make(map[string]error)
			}
			failures[r.name] = err
			continue
		}
		if f != nil {
			findings = append(findings, *f)
		}
	}
	return findings, failures
}
