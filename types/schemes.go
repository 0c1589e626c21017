package types

import (
	"fmt"
	"sort"
)

// Scheme switches are resolved once, when the configuration is read. The hot
// loop only ever sees the resolved values.

type AdvecType uint8

const (
	Advec_Disabled AdvecType = iota
	Advec_2                  // second order centred interpolation and divergence
	Advec_2i4                // fourth order horizontal interpolation, second order divergence
)

var AdvecNameMap = map[string]AdvecType{
	"0":   Advec_Disabled,
	"2":   Advec_2,
	"2i4": Advec_2i4,
}

func (at AdvecType) String() string { return nameOf(AdvecNameMap, at) }

// HaloWidth is the number of ghost cells the stencil of the scheme reaches into
func (at AdvecType) HaloWidth() int {
	if at == Advec_2i4 {
		return 2
	}
	return 1
}

type DiffType uint8

const (
	Diff_Disabled DiffType = iota
	Diff_Constant2
)

var DiffNameMap = map[string]DiffType{
	"0":  Diff_Disabled,
	"c2": Diff_Constant2,
}

func (dt DiffType) String() string { return nameOf(DiffNameMap, dt) }

type PresType uint8

const (
	Pres_Disabled PresType = iota
	Pres_Spectral2
)

var PresNameMap = map[string]PresType{
	"0": Pres_Disabled,
	"2": Pres_Spectral2,
}

func (pt PresType) String() string { return nameOf(PresNameMap, pt) }

type BoundaryType uint8

const (
	Boundary_NoSlip BoundaryType = iota
	Boundary_FreeSlip
)

var BoundaryNameMap = map[string]BoundaryType{
	"noslip":   Boundary_NoSlip,
	"freeslip": Boundary_FreeSlip,
}

func (bt BoundaryType) String() string { return nameOf(BoundaryNameMap, bt) }

type ThermoType uint8

const (
	Thermo_Disabled ThermoType = iota
	Thermo_Dry                 // buoyancy from potential temperature "th"
	Thermo_Buoy                // prognostic buoyancy "b"
	Thermo_Moist               // liquid water potential temperature "thl" and total water "qt"
)

var ThermoNameMap = map[string]ThermoType{
	"0":     Thermo_Disabled,
	"dry":   Thermo_Dry,
	"buoy":  Thermo_Buoy,
	"moist": Thermo_Moist,
}

func (tt ThermoType) String() string { return nameOf(ThermoNameMap, tt) }

// Scalars returns the prognostic scalars the thermodynamics scheme needs
func (tt ThermoType) Scalars() []string {
	switch tt {
	case Thermo_Dry:
		return []string{"th"}
	case Thermo_Buoy:
		return []string{"b"}
	case Thermo_Moist:
		return []string{"thl", "qt"}
	}
	return nil
}

type ForceType uint8

const (
	Force_Disabled ForceType = iota
	Force_Geostrophic
)

var ForceNameMap = map[string]ForceType{
	"0":   Force_Disabled,
	"geo": Force_Geostrophic,
}

func (ft ForceType) String() string { return nameOf(ForceNameMap, ft) }

type SwitchType uint8

const (
	Switch_Off SwitchType = iota
	Switch_On
)

var SwitchNameMap = map[string]SwitchType{
	"0": Switch_Off,
	"1": Switch_On,
}

func (st SwitchType) String() string { return nameOf(SwitchNameMap, st) }

// Schemes is the resolved set of scheme switches
type Schemes struct {
	Advec    AdvecType
	Diff     DiffType
	Pres     PresType
	Boundary BoundaryType
	Thermo   ThermoType
	Force    ForceType
	Buffer   SwitchType
	Stats    SwitchType
	Cross    SwitchType
}

func (s Schemes) String() string {
	return fmt.Sprintf("advec=%s diff=%s pres=%s boundary=%s thermo=%s force=%s buffer=%s stats=%s cross=%s",
		s.Advec, s.Diff, s.Pres, s.Boundary, s.Thermo, s.Force, s.Buffer, s.Stats, s.Cross)
}

// ParseSwitch looks up label in nameMap, returning a configuration error
// naming the accepted labels when it is not present
func ParseSwitch[T comparable](family, label string, nameMap map[string]T) (val T, err error) {
	var ok bool
	if val, ok = nameMap[label]; !ok {
		err = fmt.Errorf("%w: unrecognized %s scheme %q, valid choices are %v",
			ErrConfiguration, family, label, labels(nameMap))
	}
	return
}

func nameOf[T comparable](nameMap map[string]T, val T) string {
	for name, v := range nameMap {
		if v == val {
			return name
		}
	}
	return "unknown"
}

func labels[T any](nameMap map[string]T) (keys []string) {
	for k := range nameMap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return
}
