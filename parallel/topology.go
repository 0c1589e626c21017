package parallel

import (
	"fmt"

	"github.com/SteveHuang27GitHub/microhh/types"
)

// Topology places a rank on an NPX x NPY process grid, periodic in both
// directions. Ranks are numbered x fastest: rank = px + py*NPX.
type Topology struct {
	NPX, NPY   int
	Rank       int
	MyPX, MyPY int
	// Neighbor ranks, lookup only
	West, East, South, North int
}

func NewTopology(npx, npy, rank int) (t *Topology, err error) {
	if npx < 1 || npy < 1 {
		err = fmt.Errorf("%w: process grid must be at least 1x1, have %dx%d",
			types.ErrConfiguration, npx, npy)
		return
	}
	if rank < 0 || rank >= npx*npy {
		err = fmt.Errorf("%w: rank %d outside of %dx%d process grid",
			types.ErrConfiguration, rank, npx, npy)
		return
	}
	t = &Topology{
		NPX:  npx,
		NPY:  npy,
		Rank: rank,
		MyPX: rank % npx,
		MyPY: rank / npx,
	}
	t.West = t.RankOf(t.MyPX-1, t.MyPY)
	t.East = t.RankOf(t.MyPX+1, t.MyPY)
	t.South = t.RankOf(t.MyPX, t.MyPY-1)
	t.North = t.RankOf(t.MyPX, t.MyPY+1)
	return
}

// RankOf returns the rank at process coordinates (px, py), wrapping periodically
func (t *Topology) RankOf(px, py int) int {
	px = ((px % t.NPX) + t.NPX) % t.NPX
	py = ((py % t.NPY) + t.NPY) % t.NPY
	return px + py*t.NPX
}

// RowGroup lists the ranks sharing this rank's y coordinate, ordered by px
func (t *Topology) RowGroup() (group []int) {
	group = make([]int, t.NPX)
	for px := 0; px < t.NPX; px++ {
		group[px] = t.RankOf(px, t.MyPY)
	}
	return
}

// ColGroup lists the ranks sharing this rank's x coordinate, ordered by py
func (t *Topology) ColGroup() (group []int) {
	group = make([]int, t.NPY)
	for py := 0; py < t.NPY; py++ {
		group[py] = t.RankOf(t.MyPX, py)
	}
	return
}
