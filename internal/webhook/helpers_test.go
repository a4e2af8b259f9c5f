package webhook

import (
	"github.com/example/ec-checkout/internal/domain/product"
	"github.com/example/ec-checkout/internal/money"
)

func productFixture(id, name, price string) product.Product {
	return product.Product{ID: id, Name: name, Price: money.MustParse(price), Active: true}
}
