package domain

import (
	banksdom "hma/internal/services/banks/domain"
)

// CheckName validates an exchange name. Exchanges share the bank name rules
// because each one owns an import bank of the same name
func CheckName(name string) error { return banksdom.CheckName(name) }
