package core

import "time"

// CurrentSnapshot is a live quote for one symbol. It is never persisted as
// such; the orchestrator folds it into today's PriceObservation row.
type CurrentSnapshot struct {
	Symbol      string    `json:"symbol"`
	Price       float64   `json:"price"`
	Currency    string    `json:"currency"`
	MovingAvg50 *float64  `json:"moving_avg_50"`
	Week52High  *float64  `json:"week_52_high"`
	Week52Low   *float64  `json:"week_52_low"`
	RetrievedAt time.Time `json:"retrieved_at"`
}

// Observation converts the snapshot into today's provisional OHLC row.
// With only a point-in-time quote available, the price stands in for all
// four OHLC fields; a later fetch of the finished day replaces the row.
func (s CurrentSnapshot) Observation() PriceObservation {
	price := s.Price
	return PriceObservation{
		Symbol:     s.Symbol,
		Date:       DayOf(s.RetrievedAt),
		Open:       &price,
		High:       price,
		Low:        &price,
		Close:      price,
		Week52High: s.Week52High,
		Week52Low:  s.Week52Low,
	}
}
