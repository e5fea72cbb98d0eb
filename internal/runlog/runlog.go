package runlog

import (
	"github.com/pseur/menagerie/internal/param"
)

// PopCycle records everything computed for one population during one cycle.
// Fields are written once by the ensemble driver and its populations; the
// engine never reads them back.
type PopCycle struct {
	// Evolution phase.
	Evolved  bool               `json:"evolved"`
	Members  []param.Individual `json:"members,omitempty"`
	Fits     []float64          `json:"fits,omitempty"`
	N        int                `json:"n"`
	Fitness  float64            `json:"fitness"`
	DeltaF   float64            `json:"deltaF"`
	HasDelta bool               `json:"hasDelta"`

	// Export-count phase.
	NExport       int     `json:"nexport"`
	ExportStr     float64 `json:"exportStr"`     // scaled export strength
	BinomialW     float64 `json:"binomialW"`     // probability fed to the binomial draw
	G             float64 `json:"g"`             // export strength, burdened if requested
	UnburdenedG   float64 `json:"unburdenedG"`
	EvalCost      int     `json:"evalCost"`      // fitness evaluations behind this cycle's fitness
	HasEvalCost   bool    `json:"hasEvalCost"`

	// Member-selection phase.
	WorstFirst bool      `json:"worstFirst"`           // members ordered worst to best before weighting
	ExportWts  []float64 `json:"exportWts,omitempty"`  // per pre-sort member slot
	Exported   []bool    `json:"exported,omitempty"`   // per pre-sort member slot

	// Destination-selection phase.
	B           float64 `json:"b"`
	UnburdenedB float64 `json:"unburdenedB"`
	Allot       int     `json:"allot"` // immigrants received this cycle
}

// Cycle records ensemble-wide scalars for one cycle.
type Cycle struct {
	Cycle     int     `json:"cycle"`
	Alpha     float64 `json:"alpha"`
	Beta      float64 `json:"beta"`
	Q         float64 `json:"q"`
	FMin      float64 `json:"fmin"`
	FMax      float64 `json:"fmax"`
	Migration bool    `json:"migration"`
}

// Log is the full run record: per-cycle scalars plus per-(population, cycle)
// records, indexed pops[population][cycle-1]. It is a diagnostic sink; the
// engine writes each slot once and never reads it back.
type Log struct {
	Mode      string               `json:"mode"`
	Vars      []string             `json:"vars"`
	PopNames  []string             `json:"popNames"`
	Ncyc      int                  `json:"ncyc"`
	Completed int                  `json:"completed"`
	Initial   [][]param.Individual `json:"initial"` // starting members per population
	Cycles    []Cycle              `json:"cycles"`
	Pops      [][]PopCycle         `json:"pops"`

	BestX   param.Individual `json:"bestX,omitempty"`
	BestFit float64          `json:"bestFit"`
}

// New allocates a log for npop populations over ncyc cycles.
func New(mode string, vars, popNames []string, ncyc int) *Log {
	l := &Log{
		Mode:     mode,
		Vars:     vars,
		PopNames: popNames,
		Ncyc:     ncyc,
		Initial:  make([][]param.Individual, len(popNames)),
		Cycles:   make([]Cycle, ncyc),
		Pops:     make([][]PopCycle, len(popNames)),
	}
	for i := range l.Cycles {
		l.Cycles[i].Cycle = i + 1
	}
	for i := range l.Pops {
		l.Pops[i] = make([]PopCycle, ncyc)
	}
	return l
}

// At returns the record for the given population and 1-based cycle.
func (l *Log) At(pop, cycle int) *PopCycle {
	return &l.Pops[pop][cycle-1]
}

// CycleAt returns the ensemble-wide record for the given 1-based cycle.
func (l *Log) CycleAt(cycle int) *Cycle {
	return &l.Cycles[cycle-1]
}

// Row is one flattened (population, cycle) record for tabular export.
type Row struct {
	Pop   string `json:"pop"`
	Cycle int    `json:"cycle"`
	PopCycle
}

// Rows flattens the completed portion of the log into per-(population, cycle)
// rows in population-major order.
func (l *Log) Rows() []Row {
	rows := make([]Row, 0, len(l.PopNames)*l.Completed)
	for p, name := range l.PopNames {
		for c := 1; c <= l.Completed; c++ {
			rows = append(rows, Row{Pop: name, Cycle: c, PopCycle: l.Pops[p][c-1]})
		}
	}
	return rows
}

// Dense is the materialized 4-axis view of the run, indexed
// [member][population][cycle][variable] for positions and
// [member][population][cycle] for per-member scalars. Member slots beyond a
// population's size in a given cycle hold zero values.
type Dense struct {
	Members  int      `json:"members"`
	Pops     []string `json:"pops"`
	Cycles   int      `json:"cycles"`
	Vars     []string `json:"vars"`

	InitialMemberX [][][]float64     `json:"initialMemberX"` // [member][pop][var]
	MemberX        [][][][]float64   `json:"memberX"`        // [member][pop][cycle][var]
	MemberFits     [][][]float64     `json:"memberFits"`     // [member][pop][cycle]
	ExportWts      [][][]float64     `json:"exportWts"`      // [member][pop][cycle]
	Exported       [][][]bool        `json:"exported"`       // [member][pop][cycle]

	NMembers    [][]int     `json:"nmembers"` // [pop][cycle]
	NExport     [][]int     `json:"nexport"`
	ExportStr   [][]float64 `json:"exportStrScaled"`
	ExportPopW  [][]float64 `json:"exportPopWts"`
	G           [][]float64 `json:"g"`
	UnburdenedG [][]float64 `json:"unburdenedG"`
	B           [][]float64 `json:"b"`
	UnburdenedB [][]float64 `json:"unburdenedB"`
	Nc          [][]int     `json:"nc"`
	F           [][]float64 `json:"f"`
	DeltaF      [][]float64 `json:"deltaF"`
	Allot       [][]int     `json:"a"`
	Evolved     [][]bool    `json:"evolute"`
	WorstFirst  [][]bool    `json:"wb"`

	Alpha     []float64 `json:"alpha"` // [cycle]
	Beta      []float64 `json:"beta"`
	Q         []float64 `json:"q"`
	FMin      []float64 `json:"fmin"`
	FMax      []float64 `json:"fmax"`
	Migration []bool    `json:"migration"`

	Completed int `json:"completed"`
}

// MaterializeDense builds the dense 4-axis record from the flat log. The
// member axis is sized to the largest population observed in any cycle.
func (l *Log) MaterializeDense() *Dense {
	nm := 0
	for _, pop := range l.Initial {
		if len(pop) > nm {
			nm = len(pop)
		}
	}
	for _, pcs := range l.Pops {
		for _, pc := range pcs {
			if pc.N > nm {
				nm = pc.N
			}
		}
	}

	np, nc, nv := len(l.PopNames), l.Ncyc, len(l.Vars)

	d := &Dense{
		Members: nm,
		Pops:    l.PopNames,
		Cycles:  nc,
		Vars:    l.Vars,

		InitialMemberX: make([][][]float64, nm),
		MemberX:        make([][][][]float64, nm),
		MemberFits:     make([][][]float64, nm),
		ExportWts:      make([][][]float64, nm),
		Exported:       make([][][]bool, nm),

		NMembers:    makeInts(np, nc),
		NExport:     makeInts(np, nc),
		ExportStr:   makeFloats(np, nc),
		ExportPopW:  makeFloats(np, nc),
		G:           makeFloats(np, nc),
		UnburdenedG: makeFloats(np, nc),
		B:           makeFloats(np, nc),
		UnburdenedB: makeFloats(np, nc),
		Nc:          makeInts(np, nc),
		F:           makeFloats(np, nc),
		DeltaF:      makeFloats(np, nc),
		Allot:       makeInts(np, nc),
		Evolved:     makeBools(np, nc),
		WorstFirst:  makeBools(np, nc),

		Alpha:     make([]float64, nc),
		Beta:      make([]float64, nc),
		Q:         make([]float64, nc),
		FMin:      make([]float64, nc),
		FMax:      make([]float64, nc),
		Migration: make([]bool, nc),

		Completed: l.Completed,
	}

	for m := 0; m < nm; m++ {
		d.InitialMemberX[m] = make([][]float64, np)
		d.MemberX[m] = make([][][]float64, np)
		d.MemberFits[m] = make([][]float64, np)
		d.ExportWts[m] = make([][]float64, np)
		d.Exported[m] = make([][]bool, np)
		for p := 0; p < np; p++ {
			d.InitialMemberX[m][p] = make([]float64, nv)
			d.MemberX[m][p] = make([][]float64, nc)
			d.MemberFits[m][p] = make([]float64, nc)
			d.ExportWts[m][p] = make([]float64, nc)
			d.Exported[m][p] = make([]bool, nc)
			for c := 0; c < nc; c++ {
				d.MemberX[m][p][c] = make([]float64, nv)
			}
		}
	}

	for p, pop := range l.Initial {
		for m, x := range pop {
			copy(d.InitialMemberX[m][p], x)
		}
	}

	for c := 0; c < nc; c++ {
		cyc := l.Cycles[c]
		d.Alpha[c] = cyc.Alpha
		d.Beta[c] = cyc.Beta
		d.Q[c] = cyc.Q
		d.FMin[c] = cyc.FMin
		d.FMax[c] = cyc.FMax
		d.Migration[c] = cyc.Migration

		for p := 0; p < np; p++ {
			pc := l.Pops[p][c]
			d.NMembers[p][c] = pc.N
			d.NExport[p][c] = pc.NExport
			d.ExportStr[p][c] = pc.ExportStr
			d.ExportPopW[p][c] = pc.BinomialW
			d.G[p][c] = pc.G
			d.UnburdenedG[p][c] = pc.UnburdenedG
			d.B[p][c] = pc.B
			d.UnburdenedB[p][c] = pc.UnburdenedB
			d.Nc[p][c] = pc.EvalCost
			d.F[p][c] = pc.Fitness
			d.DeltaF[p][c] = pc.DeltaF
			d.Allot[p][c] = pc.Allot
			d.Evolved[p][c] = pc.Evolved
			d.WorstFirst[p][c] = pc.WorstFirst

			for m, x := range pc.Members {
				copy(d.MemberX[m][p][c], x)
			}
			for m, f := range pc.Fits {
				d.MemberFits[m][p][c] = f
			}
			for m, w := range pc.ExportWts {
				d.ExportWts[m][p][c] = w
			}
			for m, e := range pc.Exported {
				d.Exported[m][p][c] = e
			}
		}
	}

	return d
}

func makeFloats(np, nc int) [][]float64 {
	out := make([][]float64, np)
	for i := range out {
		out[i] = make([]float64, nc)
	}
	return out
}

func makeInts(np, nc int) [][]int {
	out := make([][]int, np)
	for i := range out {
		out[i] = make([]int, nc)
	}
	return out
}

func makeBools(np, nc int) [][]bool {
	out := make([][]bool, np)
	for i := range out {
		out[i] = make([]bool, nc)
	}
	return out
}
