package cartstore

import "github.com/marmota-alpina/gostack-desafio-08/internal/domain"

// The mutations below never touch their input; they return a fresh slice
// when the state changes.

func addToCart(p domain.Products, in domain.ItemInput) domain.Products {
	next := p.Clone()
	if i := next.FindIndex(in.ID); i >= 0 {
		next[i].Quantity++
		return next
	}
	return append(next, in.ToLineItem(1))
}

func increment(p domain.Products, id string) (domain.Products, bool) {
	i := p.FindIndex(id)
	if i < 0 {
		return p, false
	}
	next := p.Clone()
	next[i].Quantity++
	return next, true
}

func decrement(p domain.Products, id string, policy domain.ZeroQuantityPolicy) (domain.Products, bool) {
	i := p.FindIndex(id)
	if i < 0 || p[i].Quantity <= 0 {
		return p, false
	}
	next := p.Clone()
	next[i].Quantity--
	return policy.Settle(next, i), true
}
