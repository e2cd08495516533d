package shape

import "fmt"

// EqualityConstraint is c_i = J_i - target_i = 0 for every objective
type EqualityConstraint struct {
	Objectives []Objective
	Targets    []float64
}

func NewEqualityConstraint(objectives []Objective, targets []float64) *EqualityConstraint {
	if len(objectives) != len(targets) {
		panic(fmt.Errorf("%d constraint objectives with %d targets", len(objectives), len(targets)))
	}
	return &EqualityConstraint{Objectives: objectives, Targets: targets}
}

func (c *EqualityConstraint) Len() int { return len(c.Objectives) }

// ValueAt returns c_i
func (c *EqualityConstraint) ValueAt(i int) (v float64, err error) {
	if v, err = c.Objectives[i].Value(); err != nil {
		return
	}
	return v - c.Targets[i], nil
}

// Values returns every c_i
func (c *EqualityConstraint) Values() (v []float64, err error) {
	v = make([]float64, c.Len())
	for i := range v {
		if v[i], err = c.ValueAt(i); err != nil {
			return nil, err
		}
	}
	return
}

// DerivativeAt adds the shape derivative of c_i to dst
func (c *EqualityConstraint) DerivativeAt(i int, dst []float64) error {
	return c.Objectives[i].Derivative(dst)
}

func (c *EqualityConstraint) Update() (err error) {
	for _, o := range c.Objectives {
		if err = Update(o); err != nil {
			return
		}
	}
	return
}
