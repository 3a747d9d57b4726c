package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Rules holds every tunable constant of the ledger engine. It is built once at
// startup and passed by value into each component constructor.
type Rules struct {
	// Reward
	PointsPerSale         int             `validate:"gte=0"`
	PointsPerPurchase     int             `validate:"gte=0"`
	PointsPerReturn       int             `validate:"gte=0"`
	DailyBonusThreshold   int             `validate:"gte=1"`
	DailyBonusPoints      int             `validate:"gte=0"`
	StreakDays            int             `validate:"gte=1,lte=366"`
	StreakMinTransactions int             `validate:"gte=1"`
	StreakBonusPoints     int             `validate:"gte=0"`
	MaxDailyPoints        int             `validate:"gte=1"`
	PointsToCurrencyRatio decimal.Decimal `validate:"-"`
	MinRedemptionPoints   int             `validate:"gte=1"`

	// Inventory
	DefaultReorderLevel int `validate:"gte=0"`
	InventoryFloor      int `validate:"lte=0"`

	// Fraud
	MaxTransactionsPerMinute   int     `validate:"gte=1"`
	MaxTransactionsPerHour     int     `validate:"gte=1"`
	MaxQuantityPerTransaction  int     `validate:"gte=1"`
	SuspiciousHoursStart       int     `validate:"gte=0,lte=23"`
	SuspiciousHoursEnd         int     `validate:"gte=0,lte=23"`
	DuplicateWindowMinutes     int     `validate:"gte=1"`
	PriceDeviationMultiplier   float64 `validate:"gt=0"`
	PriceHistoryMinSamples     int     `validate:"gte=2"`
	PriceHistoryDays           int     `validate:"gte=1"`
	InventoryMismatchThreshold int     `validate:"gte=0"`
	AutoSuspendThreshold       float64 `validate:"gt=0,lte=1"`
	HighRiskThreshold          float64 `validate:"gt=0,lte=1"`
	MediumRiskThreshold        float64 `validate:"gt=0,lte=1,ltefield=HighRiskThreshold"`
	ScoreWindowDays            int     `validate:"gte=1"`
}

// DefaultRules returns the production defaults.
func DefaultRules() Rules {
	return Rules{
		PointsPerSale:         2,
		PointsPerPurchase:     1,
		PointsPerReturn:       0,
		DailyBonusThreshold:   10,
		DailyBonusPoints:      10,
		StreakDays:            7,
		StreakMinTransactions: 5,
		StreakBonusPoints:     50,
		MaxDailyPoints:        100,
		PointsToCurrencyRatio: decimal.NewFromFloat(0.1),
		MinRedemptionPoints:   1000,

		DefaultReorderLevel: 10,
		InventoryFloor:      -1000,

		MaxTransactionsPerMinute:   5,
		MaxTransactionsPerHour:     100,
		MaxQuantityPerTransaction:  500,
		SuspiciousHoursStart:       23,
		SuspiciousHoursEnd:         6,
		DuplicateWindowMinutes:     5,
		PriceDeviationMultiplier:   3.0,
		PriceHistoryMinSamples:     5,
		PriceHistoryDays:           30,
		InventoryMismatchThreshold: 50,
		AutoSuspendThreshold:       0.8,
		HighRiskThreshold:          0.6,
		MediumRiskThreshold:        0.3,
		ScoreWindowDays:            30,
	}
}

func loadRules() Rules {
	d := DefaultRules()
	return Rules{
		PointsPerSale:         parseInt(getEnv("POINTS_PER_SALE", ""), d.PointsPerSale),
		PointsPerPurchase:     parseInt(getEnv("POINTS_PER_PURCHASE", ""), d.PointsPerPurchase),
		PointsPerReturn:       parseInt(getEnv("POINTS_PER_RETURN", ""), d.PointsPerReturn),
		DailyBonusThreshold:   parseInt(getEnv("DAILY_BONUS_THRESHOLD", ""), d.DailyBonusThreshold),
		DailyBonusPoints:      parseInt(getEnv("DAILY_BONUS_POINTS", ""), d.DailyBonusPoints),
		StreakDays:            parseInt(getEnv("STREAK_DAYS", ""), d.StreakDays),
		StreakMinTransactions: parseInt(getEnv("STREAK_MIN_TRANSACTIONS", ""), d.StreakMinTransactions),
		StreakBonusPoints:     parseInt(getEnv("STREAK_BONUS_POINTS", ""), d.StreakBonusPoints),
		MaxDailyPoints:        parseInt(getEnv("MAX_DAILY_POINTS", ""), d.MaxDailyPoints),
		PointsToCurrencyRatio: parseDecimal(getEnv("POINTS_TO_CURRENCY_RATIO", ""), d.PointsToCurrencyRatio),
		MinRedemptionPoints:   parseInt(getEnv("MIN_REDEMPTION_POINTS", ""), d.MinRedemptionPoints),

		DefaultReorderLevel: parseInt(getEnv("DEFAULT_REORDER_LEVEL", ""), d.DefaultReorderLevel),
		InventoryFloor:      parseInt(getEnv("INVENTORY_FLOOR", ""), d.InventoryFloor),

		MaxTransactionsPerMinute:   parseInt(getEnv("FRAUD_MAX_TRANSACTIONS_PER_MINUTE", ""), d.MaxTransactionsPerMinute),
		MaxTransactionsPerHour:     parseInt(getEnv("FRAUD_MAX_TRANSACTIONS_PER_HOUR", ""), d.MaxTransactionsPerHour),
		MaxQuantityPerTransaction:  parseInt(getEnv("FRAUD_MAX_QUANTITY_PER_TRANSACTION", ""), d.MaxQuantityPerTransaction),
		SuspiciousHoursStart:       parseInt(getEnv("FRAUD_SUSPICIOUS_HOURS_START", ""), d.SuspiciousHoursStart),
		SuspiciousHoursEnd:         parseInt(getEnv("FRAUD_SUSPICIOUS_HOURS_END", ""), d.SuspiciousHoursEnd),
		DuplicateWindowMinutes:     parseInt(getEnv("FRAUD_DUPLICATE_WINDOW_MINUTES", ""), d.DuplicateWindowMinutes),
		PriceDeviationMultiplier:   parseFloat(getEnv("FRAUD_PRICE_DEVIATION_THRESHOLD", ""), d.PriceDeviationMultiplier),
		PriceHistoryMinSamples:     parseInt(getEnv("FRAUD_PRICE_HISTORY_MIN_SAMPLES", ""), d.PriceHistoryMinSamples),
		PriceHistoryDays:           parseInt(getEnv("FRAUD_PRICE_HISTORY_DAYS", ""), d.PriceHistoryDays),
		InventoryMismatchThreshold: parseInt(getEnv("FRAUD_INVENTORY_MISMATCH_THRESHOLD", ""), d.InventoryMismatchThreshold),
		AutoSuspendThreshold:       parseFloat(getEnv("FRAUD_AUTO_SUSPEND_THRESHOLD", ""), d.AutoSuspendThreshold),
		HighRiskThreshold:          parseFloat(getEnv("FRAUD_HIGH_RISK_THRESHOLD", ""), d.HighRiskThreshold),
		MediumRiskThreshold:        parseFloat(getEnv("FRAUD_MEDIUM_RISK_THRESHOLD", ""), d.MediumRiskThreshold),
		ScoreWindowDays:            parseInt(getEnv("FRAUD_SCORE_WINDOW_DAYS", ""), d.ScoreWindowDays),
	}
}

func parseDecimal(s string, defaultValue decimal.Decimal) decimal.Decimal {
	value, err := decimal.NewFromString(s)
	if err != nil {
		return defaultValue
	}
	return value
}

// Validate checks every constraint on the rules and reports all violations at once.
func (r Rules) Validate() error {
	var fields []string
	if !r.PointsToCurrencyRatio.IsPositive() {
		fields = append(fields, "PointsToCurrencyRatio(gt=0)")
	}

	var verrs validator.ValidationErrors
	if err := validator.New().Struct(r); errors.As(err, &verrs) {
		for _, fe := range verrs {
			fields = append(fields, fmt.Sprintf("%s(%s=%s)", fe.Field(), fe.Tag(), fe.Param()))
		}
	} else if err != nil {
		return fmt.Errorf("invalid rules: %w", err)
	}

	if len(fields) == 0 {
		return nil
	}
	return fmt.Errorf("invalid rules: %s", strings.Join(fields, ", "))
}
