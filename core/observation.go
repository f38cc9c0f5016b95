package core

// PriceObservation is one daily OHLC row for a symbol. High and Close are
// mandatory; the remaining fields may be absent depending on what the
// upstream feed returned for that day. The 52-week columns hold the values
// as observed on that date, they are never derived from the series itself.
type PriceObservation struct {
	Symbol     string   `db:"symbol" json:"symbol" gorm:"column:symbol;primaryKey;size:16"`
	Date       Day      `db:"date" json:"date" gorm:"column:date;primaryKey"`
	Open       *float64 `db:"open" json:"open" gorm:"column:open"`
	High       float64  `db:"high" json:"high" gorm:"column:high;not null"`
	Low        *float64 `db:"low" json:"low" gorm:"column:low"`
	Close      float64  `db:"close" json:"close" gorm:"column:close;not null"`
	Volume     *int64   `db:"volume" json:"volume" gorm:"column:volume"`
	Week52High *float64 `db:"week_52_high" json:"week_52_high" gorm:"column:week_52_high"`
	Week52Low  *float64 `db:"week_52_low" json:"week_52_low" gorm:"column:week_52_low"`
}

// TableName keeps the table compatible with databases created before the
// 52-week columns existed; the migrator only ever adds columns to it.
func (PriceObservation) TableName() string { return "price_history" }
