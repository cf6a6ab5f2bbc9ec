package transcript

import (
	"fmt"

	"github.com/jinzhu/copier"
	"github.com/koscakluka/ema-transcript/core/conversations"
)

// chronologicalStore is the append-only, timestamp ordered exchange log of a
// single session. It is the source of truth every view is derived from.
type chronologicalStore struct {
	exchanges []conversations.Exchange
}

// append adds the exchange and re-sorts the whole log. Arrival order does not
// always match timestamp order, and sessions are small enough that a full
// stable sort is cheap.
func (s *chronologicalStore) append(exchange conversations.Exchange) {
	s.exchanges = append(s.exchanges, exchange)
	conversations.SortExchanges(s.exchanges)
}

// markInterrupted tags the latest agent exchange carrying text as
// interrupted and reports whether one was found.
func (s *chronologicalStore) markInterrupted(text string) bool {
	for i := len(s.exchanges) - 1; i >= 0; i-- {
		if s.exchanges[i].Role == conversations.RoleAgent && s.exchanges[i].Text == text {
			s.exchanges[i].WasInterrupted = true
			return true
		}
	}
	return false
}

// all returns a copy of the log that is safe to hand to other goroutines.
func (s *chronologicalStore) all() ([]conversations.Exchange, error) {
	exchanges := []conversations.Exchange{}
	if len(s.exchanges) == 0 {
		return exchanges, nil
	}

	if err := copier.Copy(&exchanges, s.exchanges); err != nil {
		return nil, fmt.Errorf("failed to copy exchanges: %w", err)
	}
	return exchanges, nil
}

func (s *chronologicalStore) len() int {
	return len(s.exchanges)
}
