package app

import (
	"context"
	"fmt"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/shopspring/decimal"

	"orderline/internal/domain"
	"orderline/internal/engine"
	"orderline/internal/engine/auth"
)

// SeedOptions sizes the demo data written by Seed. A zero Seed picks a
// random one.
type SeedOptions struct {
	Seed      uint64
	Customers int
	Shippers  int
	Designers int
	Orders    int
	Quotes    int
}

type SeedReport struct {
	Actors []string `json:"actors"`
	Orders []string `json:"orders"`
	Quotes []string `json:"quotes"`
}

var (
	seedSizes    = []string{"S", "M", "L", "XL"}
	seedProducts = []string{"t-shirt", "hoodie", "tote bag", "cap", "mug"}
	seedAreas    = []string{"front", "back", "left sleeve", "right sleeve"}
)

// Seed fills a workspace with fake customers, staff, orders and quotes. Some
// items are advanced and claimed so every list view has content.
func Seed(ctx context.Context, e engine.Engine, admin auth.Subject, opts SeedOptions) (SeedReport, error) {
	f := gofakeit.New(opts.Seed)
	var rep SeedReport

	people := func(prefix string, role domain.Role, n int) ([]auth.Subject, error) {
		out := make([]auth.Subject, 0, n)
		for i := 0; i < n; i++ {
			a, err := e.SaveActor(ctx, admin, domain.Actor{
				ID:    fmt.Sprintf("%s-%d", prefix, i+1),
				Name:  f.Name(),
				Email: f.Email(),
				Roles: []domain.Role{role},
			})
			if err != nil {
				return nil, fmt.Errorf("seed %s: %w", prefix, err)
			}
			rep.Actors = append(rep.Actors, a.ID)
			out = append(out, auth.Subject{ID: a.ID, Roles: a.Roles})
		}
		return out, nil
	}
	customers, err := people("customer", domain.RoleCustomer, max(opts.Customers, 1))
	if err != nil {
		return rep, err
	}
	shippers, err := people("shipper", domain.RoleShipper, opts.Shippers)
	if err != nil {
		return rep, err
	}
	designers, err := people("designer", domain.RoleDesigner, opts.Designers)
	if err != nil {
		return rep, err
	}
	pick := func(s []auth.Subject) auth.Subject { return s[f.Number(0, len(s)-1)] }
	money := func(lo, hi float64) decimal.Decimal { return decimal.NewFromFloat(f.Price(lo, hi)).Round(2) }

	for i := 0; i < opts.Orders; i++ {
		owner := pick(customers)
		p := domain.OrderPayload{
			ShippingAddress: domain.Address{
				Name:       f.Name(),
				Phone:      f.Phone(),
				Street:     f.Street(),
				City:       f.City(),
				State:      f.State(),
				PostalCode: f.Zip(),
				Country:    f.CountryAbr(),
			},
			ShippingFee: money(0, 15),
		}
		for n := f.Number(1, 3); n > 0; n-- {
			p.Items = append(p.Items, domain.LineItem{
				ProductID: "sku-" + f.DigitN(6),
				Name:      f.ProductName(),
				Size:      f.RandomString(seedSizes),
				Color:     f.Color(),
				Quantity:  f.Number(1, 5),
				UnitPrice: money(5, 80),
			})
		}
		it, err := e.CreateOrder(ctx, owner, engine.CreateOrderOptions{Payload: p})
		if err != nil {
			return rep, fmt.Errorf("seed order: %w", err)
		}
		rep.Orders = append(rep.Orders, it.ID)
		steps := []domain.Status{domain.StatusProcessing, domain.StatusShipping}
		for _, target := range steps[:f.Number(0, len(steps))] {
			if _, err := e.Transition(ctx, engine.TransitionRequest{ItemID: it.ID, Actor: admin, Target: target}); err != nil {
				return rep, fmt.Errorf("seed order %s: %w", it.ID, err)
			}
			if target == domain.StatusShipping && len(shippers) > 0 && f.Bool() {
				if _, err := e.Claim(ctx, pick(shippers), it.ID); err != nil {
					return rep, fmt.Errorf("seed claim %s: %w", it.ID, err)
				}
			}
		}
	}

	for i := 0; i < opts.Quotes; i++ {
		owner := pick(customers)
		p := domain.QuotePayload{
			CustomerName:      f.Name(),
			CustomerEmail:     f.Email(),
			CustomerPhone:     f.Phone(),
			ProductType:       f.RandomString(seedProducts),
			Quantity:          f.Number(10, 200),
			Sizes:             []string{f.RandomString(seedSizes)},
			Colors:            []string{f.Color()},
			PrintAreas:        []string{f.RandomString(seedAreas)},
			DesignDescription: f.Sentence(8),
		}
		it, err := e.CreateQuote(ctx, owner, engine.CreateQuoteOptions{Payload: p})
		if err != nil {
			return rep, fmt.Errorf("seed quote: %w", err)
		}
		rep.Quotes = append(rep.Quotes, it.ID)
		if len(designers) > 0 && f.Bool() {
			d := pick(designers)
			if _, err := e.Claim(ctx, d, it.ID); err != nil {
				return rep, fmt.Errorf("seed claim %s: %w", it.ID, err)
			}
			if _, err := e.Transition(ctx, engine.TransitionRequest{ItemID: it.ID, Actor: d, Target: domain.StatusReviewing}); err != nil {
				return rep, fmt.Errorf("seed quote %s: %w", it.ID, err)
			}
		}
	}
	return rep, nil
}
