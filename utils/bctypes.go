package utils

import "strings"

// BCType represents the boundary condition applied on a tagged boundary
type BCType uint16

const (
	// BCNone indicates no boundary condition (interior facet)
	BCNone BCType = iota

	BCInflow  // Prescribed inflow velocity profile
	BCOutflow // Do-nothing outflow
	BCWall    // No-slip wall

	BCDirichlet // Fixed value
	BCNeumann   // Natural condition, nothing assembled
)

// String returns the string representation of the boundary condition type
func (bc BCType) String() string {
	names := map[BCType]string{
		BCNone:      "None",
		BCInflow:    "Inflow",
		BCOutflow:   "Outflow",
		BCWall:      "Wall",
		BCDirichlet: "Dirichlet",
		BCNeumann:   "Neumann",
	}

	if name, ok := names[bc]; ok {
		return name
	}
	return "Unknown"
}

// BCNameMap maps gmsh physical group names to BCType
// Keys are lowercase for case-insensitive matching
var BCNameMap = map[string]BCType{
	"inlet":   BCInflow,
	"inflow":  BCInflow,
	"outlet":  BCOutflow,
	"outflow": BCOutflow,
	"exit":    BCOutflow,
	"wall":    BCWall,
	"no_slip": BCWall,
	"noslip":  BCWall,

	"dirichlet": BCDirichlet,
	"neumann":   BCNeumann,
}

// ParseBCName converts a physical group name to a BCType, matching the name
// or any of its "_" separated parts. Unknown names return BCNone.
func ParseBCName(name string) BCType {
	name = strings.ToLower(strings.TrimSpace(name))
	if bc, ok := BCNameMap[name]; ok {
		return bc
	}
	for _, part := range strings.Split(name, "_") {
		if bc, ok := BCNameMap[part]; ok {
			return bc
		}
	}
	return BCNone
}
