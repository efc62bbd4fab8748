package domain

import (
	"errors"
	"time"
)

var errNoField = errors.New("no such field")

type setter func(e Entity, v any) error

// kind binds a node label to its entity type and property setters.
type kind struct {
	new    func() Entity
	fields map[string]setter
	// other receives properties without a dedicated field.
	other func(e Entity, prop string, v any) error
}

// set assigns property prop. Null values leave the field unset.
func (k kind) set(e Entity, prop string, v any) error {
	if v == nil {
		return nil
	}
	if f, ok := k.fields[prop]; ok {
		return f(e, v)
	}
	if k.other != nil {
		return k.other(e, prop, v)
	}
	return errNoField
}

// has reports whether prop can be assigned to the entity. Properties caught
// by other may still be refused by value.
func (k kind) has(prop string) bool {
	_, ok := k.fields[prop]
	return ok || k.other != nil
}

func stringField[T any](field func(*T) *string) setter {
	return func(e Entity, v any) error {
		s, err := toString(v)
		if err != nil {
			return err
		}
		*field(any(e).(*T)) = s
		return nil
	}
}

func floatField[T any](field func(*T) *float64) setter {
	return func(e Entity, v any) error {
		f, err := toFloat64(v)
		if err != nil {
			return err
		}
		*field(any(e).(*T)) = f
		return nil
	}
}

func timeField[T any](field func(*T) *time.Time) setter {
	return func(e Entity, v any) error {
		t, err := toTime(v)
		if err != nil {
			return err
		}
		*field(any(e).(*T)) = t
		return nil
	}
}

var kinds = map[string]kind{
	"Customer": {
		new: func() Entity { return &Customer{} },
		fields: map[string]setter{
			"customerId": stringField(func(c *Customer) *string { return &c.ID }),
			"name":       stringField(func(c *Customer) *string { return &c.Name }),
			"riskRating": stringField(func(c *Customer) *string { return &c.RiskRating }),
		},
	},
	"Loan": {
		new: func() Entity { return &Loan{} },
		fields: map[string]setter{
			"loanId":   stringField(func(l *Loan) *string { return &l.ID }),
			"type":     stringField(func(l *Loan) *string { return &l.Type }),
			"exposure": floatField(func(l *Loan) *float64 { return &l.Exposure }),
		},
	},
	"PD": {
		new: func() Entity { return &PD{} },
		fields: map[string]setter{
			"value":        floatField(func(p *PD) *float64 { return &p.Value }),
			"modelVersion": stringField(func(p *PD) *string { return &p.ModelVersion }),
		},
	},
	"LGD": {
		new: func() Entity { return &LGD{} },
		fields: map[string]setter{
			"value":        floatField(func(l *LGD) *float64 { return &l.Value }),
			"modelVersion": stringField(func(l *LGD) *string { return &l.ModelVersion }),
		},
	},
	"ECL": {
		new: func() Entity { return &ECL{} },
		fields: map[string]setter{
			"value":           floatField(func(e *ECL) *float64 { return &e.Value }),
			"stage":           stringField(func(e *ECL) *string { return &e.Stage }),
			"calculationDate": timeField(func(e *ECL) *time.Time { return &e.CalculationDate }),
			"scenario":        stringField(func(e *ECL) *string { return &e.Scenario }),
			"modelVersion":    stringField(func(e *ECL) *string { return &e.ModelVersion }),
		},
	},
	"Portfolio": {
		new: func() Entity { return &Portfolio{} },
		fields: map[string]setter{
			"name":    stringField(func(p *Portfolio) *string { return &p.Name }),
			"segment": stringField(func(p *Portfolio) *string { return &p.Segment }),
		},
	},
	"Scenario": {
		new: func() Entity { return &Scenario{} },
		fields: map[string]setter{
			"name": stringField(func(s *Scenario) *string { return &s.Name }),
		},
		other: func(e Entity, prop string, v any) error {
			f, err := toFloat64(v)
			if err != nil {
				return errNoField
			}
			s := e.(*Scenario)
			if s.Parameters == nil {
				s.Parameters = make(map[string]float64)
			}
			s.Parameters[prop] = f
			return nil
		},
	},
	"RiskModel": {
		new: func() Entity { return &RiskModel{} },
		fields: map[string]setter{
			"name":    stringField(func(m *RiskModel) *string { return &m.Name }),
			"version": stringField(func(m *RiskModel) *string { return &m.Version }),
		},
	},
}
