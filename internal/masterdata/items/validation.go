package items

import (
	"errors"
	"fmt"
	"strings"
)

func (s *Service) validate(item Item) error {
	if strings.TrimSpace(item.Code) == "" {
		return errors.New("item code is required")
	}
	if strings.TrimSpace(item.Name) == "" {
		return errors.New("item name is required")
	}
	if strings.TrimSpace(item.BaseUOM) == "" {
		return errors.New("item base UOM is required")
	}
	if !item.CostingMethod.IsValid() {
		return fmt.Errorf("unknown costing method %q", item.CostingMethod)
	}
	if item.PurchasePrice.IsNegative() {
		return errors.New("purchase price must be >= 0")
	}
	for _, c := range item.UOMConversions {
		if strings.TrimSpace(c.AltUOM) == "" {
			return errors.New("conversion UOM is required")
		}
		if c.AltUOM == item.BaseUOM {
			return errors.New("conversion UOM must differ from base UOM")
		}
		if !c.BaseQty.IsPositive() {
			return fmt.Errorf("conversion factor for %s must be > 0", c.AltUOM)
		}
	}
	return nil
}
