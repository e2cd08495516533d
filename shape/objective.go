package shape

import (
	"gonum.org/v1/gonum/floats"
)

// Objective is a scalar functional of the physical mesh. Derivative adds the
// shape derivative, as a dual vector over the vertex coordinates (vertex-major),
// to dst.
type Objective interface {
	Value() (float64, error)
	Derivative(dst []float64) error
}

// Updater is implemented by objectives that must refresh internal state, a
// PDE solve for example, after the physical mesh moved
type Updater interface {
	Update() error
}

// Update refreshes o if it carries state
func Update(o Objective) error {
	if u, ok := o.(Updater); ok {
		return u.Update()
	}
	return nil
}

// DerivativeForm is the directional derivative of o along the deformation
// field w
func DerivativeForm(o Objective, w []float64) (float64, error) {
	dJ := make([]float64, len(w))
	if err := o.Derivative(dJ); err != nil {
		return 0, err
	}
	return floats.Dot(dJ, w), nil
}

// Sum is the pointwise sum of its terms
type Sum struct {
	Terms []Objective
}

// Add returns a + b, flattening nested sums
func Add(a, b Objective) *Sum {
	s := &Sum{}
	for _, o := range []Objective{a, b} {
		if inner, ok := o.(*Sum); ok {
			s.Terms = append(s.Terms, inner.Terms...)
		} else {
			s.Terms = append(s.Terms, o)
		}
	}
	return s
}

func (s *Sum) Value() (v float64, err error) {
	for _, o := range s.Terms {
		var vo float64
		if vo, err = o.Value(); err != nil {
			return
		}
		v += vo
	}
	return
}

func (s *Sum) Derivative(dst []float64) (err error) {
	for _, o := range s.Terms {
		if err = o.Derivative(dst); err != nil {
			return
		}
	}
	return
}

func (s *Sum) Update() (err error) {
	for _, o := range s.Terms {
		if err = Update(o); err != nil {
			return
		}
	}
	return
}

// Scaled is C times O
type Scaled struct {
	C float64
	O Objective
}

func Scale(c float64, o Objective) *Scaled { return &Scaled{C: c, O: o} }

func (s *Scaled) Value() (v float64, err error) {
	v, err = s.O.Value()
	return s.C * v, err
}

func (s *Scaled) Derivative(dst []float64) (err error) {
	tmp := make([]float64, len(dst))
	if err = s.O.Derivative(tmp); err != nil {
		return
	}
	floats.AddScaled(dst, s.C, tmp)
	return
}

func (s *Scaled) Update() error { return Update(s.O) }
