package InputParameters

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/ghodss/yaml"

	"github.com/SteveHuang27GitHub/microhh/types"
)

// Parameters obtained from the YAML input file, one section per model component.
// ghodss/yaml decodes through encoding/json, so the json tags are the YAML keys.
type LESParameters struct {
	Title    string         `json:"Title"`
	Grid     GridParams     `json:"Grid"`
	MPI      MPIParams      `json:"MPI"`
	Advec    AdvecParams    `json:"Advec"`
	Diff     DiffParams     `json:"Diff"`
	Pres     PresParams     `json:"Pres"`
	Boundary BoundaryParams `json:"Boundary"`
	Thermo   ThermoParams   `json:"Thermo"`
	Force    ForceParams    `json:"Force"`
	Buffer   BufferParams   `json:"Buffer"`
	Fields   FieldsParams   `json:"Fields"`
	Time     TimeParams     `json:"Time"`
	Stats    StatsParams    `json:"Stats"`
	Cross    CrossParams    `json:"Cross"`
}

type GridParams struct {
	ITot  int       `json:"itot"`
	JTot  int       `json:"jtot"`
	KTot  int       `json:"ktot"`
	XSize float64   `json:"xsize"`
	YSize float64   `json:"ysize"`
	ZSize float64   `json:"zsize"`
	Z     []float64 `json:"z,omitempty"` // cell centre heights of a stretched grid
}

type MPIParams struct {
	NPX int `json:"npx"`
	NPY int `json:"npy"`
}

type AdvecParams struct {
	Swadvec string  `json:"swadvec"`
	CFLMax  float64 `json:"cflmax"`
}

type DiffParams struct {
	Swdiff string  `json:"swdiff"`
	Visc   float64 `json:"visc"`
	SVisc  float64 `json:"svisc"`
	DNMax  float64 `json:"dnmax"`
}

type PresParams struct {
	Swpres string `json:"swpres"`
}

type BoundaryParams struct {
	Swboundary string `json:"swboundary"`
	// Per scalar: "dirichlet" uses the value, "neumann" the gradient
	SBotType map[string]string  `json:"sbcbot,omitempty"`
	STopType map[string]string  `json:"sbctop,omitempty"`
	SBot     map[string]float64 `json:"sbot,omitempty"`
	STop     map[string]float64 `json:"stop,omitempty"`
}

type ThermoParams struct {
	Swthermo string  `json:"swthermo"`
	ThRef    float64 `json:"thref"`
	Gravity  float64 `json:"gravity"`
	PBot     float64 `json:"pbot"` // surface pressure of the moist reference state
}

type ForceParams struct {
	Swforce string  `json:"swforce"`
	FC      float64 `json:"fc"`
	UG      float64 `json:"ug"`
	VG      float64 `json:"vg"`
}

type BufferParams struct {
	Swbuffer string  `json:"swbuffer"`
	ZStart   float64 `json:"zstart"`
	Sigma    float64 `json:"sigma"`
	Beta     float64 `json:"beta"`
}

type FieldsParams struct {
	Scalars []string           `json:"slist,omitempty"`
	U0      float64            `json:"u0"`
	V0      float64            `json:"v0"`
	S0      map[string]float64 `json:"s0,omitempty"`   // surface value per scalar
	DSDz    map[string]float64 `json:"dsdz,omitempty"` // initial lapse rate per scalar
	RndAmp  float64            `json:"rndamp"`         // perturbation amplitude
	RndZ    float64            `json:"rndz"`           // perturbations below this height
	RndSeed int64              `json:"rndseed"`
}

type TimeParams struct {
	EndTime  float64 `json:"endtime"`
	Dt       float64 `json:"dt"`
	DtMax    float64 `json:"dtmax"`
	DtMin    float64 `json:"dtmin"`
	RKOrder  int     `json:"rkorder"`
	SaveTime float64 `json:"savetime"` // 0 disables intermediate checkpoints
	LogSteps int     `json:"logsteps"`
}

type StatsParams struct {
	Swstats    string  `json:"swstats"`
	SampleTime float64 `json:"sampletime"`
	File       string  `json:"file"`
}

type CrossParams struct {
	Swcross    string   `json:"swcross"`
	SampleTime float64  `json:"sampletime"`
	Vars       []string `json:"crosslist,omitempty"`
	JLoc       int      `json:"jloc"` // global y index of the xz cross section
}

// NewLESParameters returns the defaults that an input file overlays
func NewLESParameters() *LESParameters {
	return &LESParameters{
		Title: "LES",
		Grid: GridParams{
			ITot: 32, JTot: 32, KTot: 32,
			XSize: 3200, YSize: 3200, ZSize: 3200,
		},
		MPI:      MPIParams{NPX: 1, NPY: 1},
		Advec:    AdvecParams{Swadvec: "2", CFLMax: 1.2},
		Diff:     DiffParams{Swdiff: "0", DNMax: 0.4},
		Pres:     PresParams{Swpres: "2"},
		Boundary: BoundaryParams{Swboundary: "noslip"},
		Thermo:   ThermoParams{Swthermo: "0", ThRef: 300, Gravity: 9.81, PBot: 1.e5},
		Force:    ForceParams{Swforce: "0"},
		Buffer:   BufferParams{Swbuffer: "0", Beta: 2},
		Fields:   FieldsParams{RndSeed: 2},
		Time: TimeParams{
			EndTime: 3600, Dt: 1, DtMax: 60, DtMin: 1.e-8,
			RKOrder: 3, LogSteps: 10,
		},
		Stats: StatsParams{Swstats: "0", SampleTime: 60, File: "stats.db"},
		Cross: CrossParams{Swcross: "0", SampleTime: 300},
	}
}

func (ip *LESParameters) Parse(data []byte) error {
	return yaml.Unmarshal(data, ip)
}

// ReadLESParameters overlays the YAML file contents onto the defaults
func ReadLESParameters(r io.Reader) (ip *LESParameters, err error) {
	var data []byte
	if data, err = io.ReadAll(r); err != nil {
		return
	}
	ip = NewLESParameters()
	if err = ip.Parse(data); err != nil {
		err = fmt.Errorf("%w: %v", types.ErrConfiguration, err)
		ip = nil
	}
	return
}

// Schemes resolves the scheme switches into the closed set of variants
func (ip *LESParameters) Schemes() (s types.Schemes, err error) {
	if s.Advec, err = types.ParseSwitch("advection", ip.Advec.Swadvec, types.AdvecNameMap); err != nil {
		return
	}
	if s.Diff, err = types.ParseSwitch("diffusion", ip.Diff.Swdiff, types.DiffNameMap); err != nil {
		return
	}
	if s.Pres, err = types.ParseSwitch("pressure", ip.Pres.Swpres, types.PresNameMap); err != nil {
		return
	}
	if s.Boundary, err = types.ParseSwitch("boundary", ip.Boundary.Swboundary, types.BoundaryNameMap); err != nil {
		return
	}
	if s.Thermo, err = types.ParseSwitch("thermo", ip.Thermo.Swthermo, types.ThermoNameMap); err != nil {
		return
	}
	if s.Force, err = types.ParseSwitch("force", ip.Force.Swforce, types.ForceNameMap); err != nil {
		return
	}
	if s.Buffer, err = types.ParseSwitch("buffer", ip.Buffer.Swbuffer, types.SwitchNameMap); err != nil {
		return
	}
	if s.Stats, err = types.ParseSwitch("stats", ip.Stats.Swstats, types.SwitchNameMap); err != nil {
		return
	}
	if s.Cross, err = types.ParseSwitch("cross", ip.Cross.Swcross, types.SwitchNameMap); err != nil {
		return
	}
	return
}

// ScalarNames returns the configured scalars plus the one thermodynamics needs
func (ip *LESParameters) ScalarNames(thermo types.ThermoType) (names []string) {
	var (
		seen = make(map[string]bool)
	)
	for _, name := range ip.Fields.Scalars {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	for _, s := range thermo.Scalars() {
		if !seen[s] {
			seen[s] = true
			names = append(names, s)
		}
	}
	return
}

// Validate checks the numeric parameters. Scheme switches are checked by Schemes.
func (ip *LESParameters) Validate() error {
	var (
		problems []string
		g        = ip.Grid
		tp       = ip.Time
	)
	check := func(ok bool, format string, args ...interface{}) {
		if !ok {
			problems = append(problems, fmt.Sprintf(format, args...))
		}
	}
	check(g.ITot > 0 && g.JTot > 0 && g.KTot > 0, "grid dimensions must be positive, have %dx%dx%d", g.ITot, g.JTot, g.KTot)
	check(g.XSize > 0 && g.YSize > 0 && g.ZSize > 0, "domain extents must be positive")
	check(len(g.Z) == 0 || len(g.Z) == g.KTot, "z lists %d levels, ktot is %d", len(g.Z), g.KTot)
	check(ip.MPI.NPX > 0 && ip.MPI.NPY > 0, "process grid must be at least 1x1")
	check(ip.Advec.CFLMax > 0, "cflmax must be positive")
	check(ip.Diff.DNMax > 0, "dnmax must be positive")
	check(ip.Diff.Visc >= 0 && ip.Diff.SVisc >= 0, "viscosities must be non-negative")
	check(tp.EndTime > 0, "endtime must be positive")
	check(tp.Dt > 0 && tp.DtMax > 0 && tp.DtMin >= 0 && tp.DtMin < tp.DtMax, "time step bounds are inconsistent")
	check(tp.RKOrder == 3 || tp.RKOrder == 4, "rkorder must be 3 or 4, have %d", tp.RKOrder)
	check(tp.SaveTime >= 0, "savetime must be non-negative")
	check(ip.Stats.SampleTime > 0 && ip.Cross.SampleTime > 0, "sample times must be positive")
	check(ip.Thermo.ThRef > 0, "thref must be positive")
	check(ip.Thermo.PBot > 0, "pbot must be positive")
	check(ip.Buffer.ZStart >= 0 && ip.Buffer.ZStart < g.ZSize, "buffer zstart must lie inside the domain")
	for name, kind := range ip.Boundary.SBotType {
		check(kind == "dirichlet" || kind == "neumann", "bottom boundary of %s must be dirichlet or neumann, have %q", name, kind)
	}
	for name, kind := range ip.Boundary.STopType {
		check(kind == "dirichlet" || kind == "neumann", "top boundary of %s must be dirichlet or neumann, have %q", name, kind)
	}
	if len(problems) != 0 {
		sort.Strings(problems)
		return fmt.Errorf("%w: %s", types.ErrConfiguration, strings.Join(problems, "; "))
	}
	return nil
}

func (ip *LESParameters) Print(w io.Writer) {
	fmt.Fprintf(w, "\"%s\"\t\t= Title\n", ip.Title)
	fmt.Fprintf(w, "[%d x %d x %d]\t\t= Grid\n", ip.Grid.ITot, ip.Grid.JTot, ip.Grid.KTot)
	fmt.Fprintf(w, "[%g x %g x %g]\t= Domain\n", ip.Grid.XSize, ip.Grid.YSize, ip.Grid.ZSize)
	fmt.Fprintf(w, "[%d x %d]\t\t\t= Process Grid\n", ip.MPI.NPX, ip.MPI.NPY)
	fmt.Fprintf(w, "%8.5f\t\t= CFL\n", ip.Advec.CFLMax)
	fmt.Fprintf(w, "%8.5f\t\t= EndTime\n", ip.Time.EndTime)
	fmt.Fprintf(w, "[%s]\t\t\t= Advection\n", ip.Advec.Swadvec)
	fmt.Fprintf(w, "[%s]\t\t\t= Diffusion\n", ip.Diff.Swdiff)
	fmt.Fprintf(w, "[%s]\t\t\t= Pressure\n", ip.Pres.Swpres)
	fmt.Fprintf(w, "[%s]\t\t= Boundary\n", ip.Boundary.Swboundary)
	fmt.Fprintf(w, "[%s]\t\t\t= Thermo\n", ip.Thermo.Swthermo)
	fmt.Fprintf(w, "[%d]\t\t\t\t= RK Order\n", ip.Time.RKOrder)
	keys := make([]string, 0, len(ip.Boundary.SBot))
	for k := range ip.Boundary.SBot {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(w, "SBot[%s] = %v\n", key, ip.Boundary.SBot[key])
	}
}
