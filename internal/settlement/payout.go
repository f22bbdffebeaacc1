package settlement

import (
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/truthstake/internal/model"
	"github.com/mmeshcher/truthstake/internal/stakes"
)

// Payout описывает запись расчёта, которую нужно провести по одной ставке.
type Payout struct {
	StakeID string
	UserID  int64
	Side    model.Side
	Amount  int64
	Delta   int64
	Reason  model.EntryReason
	Correct bool
}

// Payouts распределяет пулы ставок утверждения для победившей стороны winner.
// Пулы считаются по всем ставкам, выплаты формируются только по незакрытым.
//
// Победитель получает amount + floor(amount × losing / winning). Проигравший
// получает запись Penalty с нулевой дельтой: его резерв просто не возвращается.
// Если проигравший пул пуст, победителям возвращается ставка (Refund). Если пуст
// выигравший пул, Refund получают все. Остаток от округления вниз возвращается
// как dust и никому не зачисляется.
func Payouts(all []model.Stake, winner model.Side) ([]Payout, int64) {
	winning, losing := stakes.Tally(all).Pools(winner)

	res := make([]Payout, 0, len(all))
	var distributed int64
	for _, s := range all {
		p := Payout{
			StakeID: s.ID,
			UserID:  s.UserID,
			Side:    s.Side,
			Amount:  s.Amount,
			Correct: s.Side == winner,
		}

		switch {
		case winning == 0 || losing == 0:
			p.Reason = model.ReasonRefund
			p.Delta = s.Amount
		case p.Correct:
			share := proportionalShare(s.Amount, losing, winning)
			distributed += share
			p.Reason = model.ReasonReward
			p.Delta = s.Amount + share
		default:
			p.Reason = model.ReasonPenalty
			p.Delta = 0
		}

		if !s.Settled {
			res = append(res, p)
		}
	}

	var dust int64
	if winning > 0 && losing > 0 {
		dust = losing - distributed
	}
	return res, dust
}

// proportionalShare возвращает floor(amount × losing / winning) без переполнения int64.
func proportionalShare(amount, losing, winning int64) int64 {
	q, _ := decimal.NewFromInt(amount).
		Mul(decimal.NewFromInt(losing)).
		QuoRem(decimal.NewFromInt(winning), 0)
	return q.IntPart()
}
