package models

import "github.com/shopspring/decimal"

type User struct {
	Username string          `json:"username"`
	Password string          `json:"-"`
	Balance  decimal.Decimal `json:"balance"`
	Contacts []string        `json:"contacts"`
}
