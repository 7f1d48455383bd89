package api

import (
    "fmt"

    "dronenav/internal/model"
)

func validateCoordinate(name string, c model.Coordinate) error {
    if c.Lat < -90 || c.Lat > 90 {
        return fmt.Errorf("%s.lat must be within -90..90, got %v", name, c.Lat)
    }
    if c.Lng < -180 || c.Lng > 180 {
        return fmt.Errorf("%s.lng must be within -180..180, got %v", name, c.Lng)
    }
    if c.Alt < 0 {
        return fmt.Errorf("%s.alt must be >= 0, got %v", name, c.Alt)
    }
    return nil
}

func validateOrder(o model.Order) error {
    if o.ID == "" {
        return fmt.Errorf("order id is required")
    }
    if o.WeightKg <= 0 {
        return fmt.Errorf("weightKg must be positive, got %v", o.WeightKg)
    }
    switch o.Priority {
    case "", model.PriorityStandard, model.PriorityExpress, model.PriorityEmergency:
    default:
        return fmt.Errorf("unknown priority %q", o.Priority)
    }
    if err := validateCoordinate("pickup", o.Pickup); err != nil {
        return err
    }
    return validateCoordinate("delivery", o.Delivery)
}
