package feed

import (
	"time"

	"github.com/alanyoungcy/dumpsniper/internal/domain"
	"github.com/alanyoungcy/dumpsniper/internal/platform/polymarket"
)

// Normalize turns one market-channel frame into price updates for the
// instruments in want (all instruments when want is nil). The price of an
// instrument is what it costs to buy it now: the best ask, falling back to
// the best bid or level price when the venue did not send one. Events
// without a usable price in (0,1) are skipped; only an unparseable frame
// is an error.
func Normalize(raw []byte, want map[string]struct{}, receivedAt time.Time) ([]domain.PriceUpdate, error) {
	evs, err := polymarket.ParseEvents(raw)
	if err != nil {
		return nil, err
	}

	var out []domain.PriceUpdate
	emit := func(assetID string, price float64, ts time.Time) {
		if assetID == "" || price <= 0 || price >= 1 {
			return
		}
		if want != nil {
			if _, ok := want[assetID]; !ok {
				return
			}
		}
		out = append(out, domain.PriceUpdate{
			AssetID:    assetID,
			Price:      price,
			Timestamp:  ts,
			ReceivedAt: receivedAt,
		})
	}

	for i := range evs {
		ev := &evs[i]
		switch ev.EventType {
		case "book":
			snap := ev.BookSnapshot()
			p := snap.BestAsk
			if p == 0 {
				p = snap.BestBid
			}
			emit(snap.AssetID, p, snap.Timestamp)
		case "price_change":
			for _, ch := range ev.LevelUpdates() {
				p := ch.BestAsk
				if p == 0 {
					p = ch.Price
				}
				emit(ch.AssetID, p, ch.Timestamp)
			}
		case "last_trade_price":
			lt := ev.LastTrade()
			emit(lt.AssetID, lt.Price, lt.Timestamp)
		}
	}
	return out, nil
}
