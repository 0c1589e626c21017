package fields

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/SteveHuang27GitHub/microhh/grid"
	"github.com/SteveHuang27GitHub/microhh/utils"
)

type Kind uint8

const (
	U Kind = iota
	V
	W
	Pressure
	Scalar
)

func (k Kind) String() string {
	switch k {
	case U:
		return "u"
	case V:
		return "v"
	case W:
		return "w"
	case Pressure:
		return "p"
	}
	return "scalar"
}

// Field is a 3D array over the local subdomain including ghost cells
type Field struct {
	Name string
	Kind Kind
	Data []float64
}

func NewField(name string, kind Kind, g *grid.Grid) *Field {
	return &Field{Name: name, Kind: kind, Data: make([]float64, g.NCells)}
}

func (f *Field) Fill(val float64) {
	for i := range f.Data {
		f.Data[i] = val
	}
}

// Prognostic fields are ordered u, v, w and then the scalars
const (
	IU = iota
	IV
	IW
	NumVelocity
)

/*
FieldStore owns every field of one rank. Cur holds the committed state, Next
receives the provisional state of a Runge-Kutta stage and the two are swapped
once the stage is complete. Tend holds the tendency accumulated by the spatial
operators, Reg the low storage register of the integrator.
*/
type FieldStore struct {
	Grid    *grid.Grid
	Names   []string // prognostic field names, u v w first
	Cur     []*Field
	Next    []*Field
	Tend    []*Field
	Reg     []*Field
	P       *Field
	scalars map[string]int
}

func NewFieldStore(g *grid.Grid, scalarNames []string) (fs *FieldStore, err error) {
	fs = &FieldStore{
		Grid:    g,
		scalars: make(map[string]int),
	}
	fs.Names = append([]string{"u", "v", "w"}, scalarNames...)
	for n, name := range fs.Names {
		if n >= NumVelocity {
			if _, present := fs.scalars[name]; present || name == "p" {
				err = fmt.Errorf("duplicate field name %q", name)
				return nil, err
			}
			if name == "u" || name == "v" || name == "w" {
				err = fmt.Errorf("scalar name %q collides with a velocity component", name)
				return nil, err
			}
			fs.scalars[name] = n
		}
		kind := Scalar
		if n < NumVelocity {
			kind = Kind(n)
		}
		fs.Cur = append(fs.Cur, NewField(name, kind, g))
		fs.Next = append(fs.Next, NewField(name, kind, g))
		fs.Tend = append(fs.Tend, NewField(name+"t", kind, g))
		fs.Reg = append(fs.Reg, NewField(name+"r", kind, g))
	}
	fs.P = NewField("p", Pressure, g)
	return
}

func (fs *FieldStore) NumPrognostic() int { return len(fs.Cur) }

// Index returns the position of a prognostic field by name, or -1
func (fs *FieldStore) Index(name string) int {
	switch name {
	case "u":
		return IU
	case "v":
		return IV
	case "w":
		return IW
	}
	if n, present := fs.scalars[name]; present {
		return n
	}
	return -1
}

// Get returns the committed field by name, including the pressure
func (fs *FieldStore) Get(name string) (f *Field, present bool) {
	if name == "p" {
		return fs.P, true
	}
	if n := fs.Index(name); n >= 0 {
		return fs.Cur[n], true
	}
	return nil, false
}

func (fs *FieldStore) ScalarNames() []string {
	return fs.Names[NumVelocity:]
}

func (fs *FieldStore) Velocity() (u, v, w *Field) {
	return fs.Cur[IU], fs.Cur[IV], fs.Cur[IW]
}

func (fs *FieldStore) NextVelocity() (u, v, w *Field) {
	return fs.Next[IU], fs.Next[IV], fs.Next[IW]
}

func (fs *FieldStore) Swap() {
	fs.Cur, fs.Next = fs.Next, fs.Cur
}

func (fs *FieldStore) ZeroTendencies() {
	for _, f := range fs.Tend {
		f.Fill(0)
	}
}

func (fs *FieldStore) ZeroRegisters() {
	for _, f := range fs.Reg {
		f.Fill(0)
	}
}

// HasNonFinite scans the interior of the given fields
func (fs *FieldStore) HasNonFinite(flds []*Field) (name string, found bool) {
	var (
		g = fs.Grid
	)
	for _, f := range flds {
		for k := g.KStart; k < g.KEnd; k++ {
			for j := g.JStart; j < g.JEnd; j++ {
				ijk := g.Index(g.IStart, j, k)
				if utils.FirstNonFinite(f.Data[ijk:ijk+g.IMax]) >= 0 {
					return f.Name, true
				}
			}
		}
	}
	return
}

// ProfileSum returns the sum over the local interior of each level of f,
// indexed by k over all KCells. Ghost levels are zero.
func (fs *FieldStore) ProfileSum(f *Field) (prof []float64) {
	var (
		g = fs.Grid
	)
	prof = make([]float64, g.KCells)
	for k := g.KStart; k < g.KEnd; k++ {
		for j := g.JStart; j < g.JEnd; j++ {
			ijk := g.Index(g.IStart, j, k)
			prof[k] += floats.Sum(f.Data[ijk : ijk+g.IMax])
		}
	}
	return
}
