package models

import "github.com/shopspring/decimal"

type Item struct {
	Name   string          `json:"name"`
	Cost   decimal.Decimal `json:"cost"`
	Seller string          `json:"seller"`
	Listed bool            `json:"listed"`
}
