package InputParameters

import (
	"fmt"
	"os"

	"github.com/ghodss/yaml"
	"github.com/mitchellh/go-homedir"
)

// Parameters is the optimizer parameter list, using the option names of the
// Rapid Optimization Library so existing parameter files can be reused
type Parameters struct {
	General    General    `json:"General"`
	Step       Step       `json:"Step"`
	StatusTest StatusTest `json:"Status Test"`
}

type General struct {
	Secant Secant `json:"Secant"`
}

type Secant struct {
	Type           string `json:"Type"`
	MaximumStorage int    `json:"Maximum Storage"`
}

type Step struct {
	Type                string              `json:"Type"`
	LineSearch          LineSearch          `json:"Line Search"`
	AugmentedLagrangian AugmentedLagrangian `json:"Augmented Lagrangian"`
}

type LineSearch struct {
	DescentMethod DescentMethod `json:"Descent Method"`
}

type DescentMethod struct {
	Type string `json:"Type"`
}

type AugmentedLagrangian struct {
	SubproblemStepType                   string  `json:"Subproblem Step Type"`
	MaximumPenaltyParameter              float64 `json:"Maximum Penalty Parameter"`
	UseDefaultInitialPenaltyParameter    bool    `json:"Use Default Initial Penalty Parameter"`
	InitialPenaltyParameter              float64 `json:"Initial Penalty Parameter"`
	PrintIntermediateOptimizationHistory bool    `json:"Print Intermediate Optimization History"`
	SubproblemIterationLimit             int     `json:"Subproblem Iteration Limit"`
}

type StatusTest struct {
	GradientTolerance   float64 `json:"Gradient Tolerance"`
	StepTolerance       float64 `json:"Step Tolerance"`
	ConstraintTolerance float64 `json:"Constraint Tolerance"`
	IterationLimit      int     `json:"Iteration Limit"`
}

// Step types understood by the optimizer
const (
	AugmentedLagrangianStep = "Augmented Lagrangian"
	LineSearchStep          = "Line Search"
)

// NewParameters returns the defaults, options absent from a parsed file keep
// these values
func NewParameters() *Parameters {
	return &Parameters{
		General: General{Secant: Secant{
			Type:           "Limited-Memory BFGS",
			MaximumStorage: 10,
		}},
		Step: Step{
			Type:       LineSearchStep,
			LineSearch: LineSearch{DescentMethod: DescentMethod{Type: "Quasi-Newton Method"}},
			AugmentedLagrangian: AugmentedLagrangian{
				SubproblemStepType:                LineSearchStep,
				MaximumPenaltyParameter:           1.e8,
				UseDefaultInitialPenaltyParameter: true,
				InitialPenaltyParameter:           10,
				SubproblemIterationLimit:          1000,
			},
		},
		StatusTest: StatusTest{
			GradientTolerance:   1.e-6,
			StepTolerance:       1.e-12,
			ConstraintTolerance: 1.e-6,
			IterationLimit:      100,
		},
	}
}

func (ip *Parameters) Parse(data []byte) error {
	return yaml.Unmarshal(data, ip)
}

// NewParameterList builds parameters from a nested map, the way a parameter
// dictionary is written inline in a driver
func NewParameterList(dict map[string]interface{}) (ip *Parameters, err error) {
	data, err := yaml.Marshal(dict)
	if err != nil {
		return nil, err
	}
	ip = NewParameters()
	if err = ip.Parse(data); err != nil {
		return nil, err
	}
	return
}

// ReadParameterFile parses a YAML parameter file, "~" is expanded
func ReadParameterFile(path string) (ip *Parameters, err error) {
	if path, err = homedir.Expand(path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	ip = NewParameters()
	if err = ip.Parse(data); err != nil {
		return nil, fmt.Errorf("%s: %v", path, err)
	}
	return
}

func (ip *Parameters) Print() {
	al := ip.Step.AugmentedLagrangian
	fmt.Printf("[%s]\t= Secant Type\n", ip.General.Secant.Type)
	fmt.Printf("[%d]\t\t\t= Maximum Storage\n", ip.General.Secant.MaximumStorage)
	fmt.Printf("[%s]\t= Step Type\n", ip.Step.Type)
	if ip.Step.Type == AugmentedLagrangianStep {
		fmt.Printf("[%s]\t\t= Subproblem Step Type\n", al.SubproblemStepType)
		fmt.Printf("%8.5g\t\t= Maximum Penalty Parameter\n", al.MaximumPenaltyParameter)
		if al.UseDefaultInitialPenaltyParameter {
			fmt.Printf("[default]\t\t= Initial Penalty Parameter\n")
		} else {
			fmt.Printf("%8.5g\t\t= Initial Penalty Parameter\n", al.InitialPenaltyParameter)
		}
		fmt.Printf("[%d]\t\t\t= Subproblem Iteration Limit\n", al.SubproblemIterationLimit)
	}
	fmt.Printf("%8.5g\t\t= Gradient Tolerance\n", ip.StatusTest.GradientTolerance)
	fmt.Printf("%8.5g\t\t= Step Tolerance\n", ip.StatusTest.StepTolerance)
	fmt.Printf("%8.5g\t\t= Constraint Tolerance\n", ip.StatusTest.ConstraintTolerance)
	fmt.Printf("[%d]\t\t\t= Iteration Limit\n", ip.StatusTest.IterationLimit)
}
