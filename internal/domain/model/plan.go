package model

import (
	"math"

	"telegram-group-subscription/internal/domain"
)

// Plan is a purchasable subscription option priced in Telegram Stars.
type Plan struct {
	ID    string `yaml:"id" json:"id"`
	Name  string `yaml:"name" json:"name"`
	Stars int    `yaml:"stars" json:"stars"`
	Days  int    `yaml:"days" json:"days"`
}

func (p *Plan) IsZero() bool { return p == nil || p.ID == "" }

func NewPlan(id, name string, stars, days int) (*Plan, error) {
	if id == "" || name == "" || stars <= 0 || days <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	return &Plan{ID: id, Name: name, Stars: stars, Days: days}, nil
}

// USDAmount converts the Stars price to dollars at the given rate, rounded to cents.
func (p Plan) USDAmount(rate float64) float64 {
	return math.Round(float64(p.Stars)*rate*100) / 100
}

// PlanCatalog is an ordered, read-only set of plans.
type PlanCatalog struct {
	order []string
	plans map[string]Plan
}

func NewPlanCatalog(plans []Plan) (*PlanCatalog, error) {
	c := &PlanCatalog{plans: make(map[string]Plan, len(plans))}
	for _, p := range plans {
		if _, err := NewPlan(p.ID, p.Name, p.Stars, p.Days); err != nil {
			return nil, err
		}
		if _, dup := c.plans[p.ID]; dup {
			return nil, domain.ErrAlreadyExists
		}
		c.order = append(c.order, p.ID)
		c.plans[p.ID] = p
	}
	return c, nil
}

func DefaultPlans() []Plan {
	return []Plan{
		{ID: "basic", Name: "Basic (7 days)", Stars: 50, Days: 7},
		{ID: "standard", Name: "Standard (30 days)", Stars: 100, Days: 30},
		{ID: "premium", Name: "Premium (6 months)", Stars: 500, Days: 180},
	}
}

func (c *PlanCatalog) Get(id string) (Plan, error) {
	p, ok := c.plans[id]
	if !ok {
		return Plan{}, domain.ErrUnknownPlan
	}
	return p, nil
}

func (c *PlanCatalog) List() []Plan {
	out := make([]Plan, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.plans[id])
	}
	return out
}
