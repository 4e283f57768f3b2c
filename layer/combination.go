package layer

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/viam-modules/viam-obstacle-layer/costmap"
)

// CombinationMethod selects how the layer's grid is folded into the master grid.
type CombinationMethod int

const (
	// Overwrite copies every local cell over the master cell.
	Overwrite CombinationMethod = iota
	// Maximum keeps the higher of the local and master cost, with unknown ranked lowest.
	Maximum
	// NoOp leaves the master grid untouched; the layer only contributes bounds.
	NoOp
)

// ErrUnknownCombinationMethod denotes a combination method name that is not recognised.
var ErrUnknownCombinationMethod = errors.New("unknown combination method")

// CombinationMethodFromInt maps the integer selector used in configuration files to a
// CombinationMethod: 0 is Overwrite, 1 is Maximum and anything else is NoOp.
func CombinationMethodFromInt(v int) CombinationMethod {
	switch v {
	case 0:
		return Overwrite
	case 1:
		return Maximum
	default:
		return NoOp
	}
}

// ParseCombinationMethod parses a combination method name.
func ParseCombinationMethod(name string) (CombinationMethod, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "overwrite":
		return Overwrite, nil
	case "maximum", "max":
		return Maximum, nil
	case "noop", "nothing", "none":
		return NoOp, nil
	default:
		return NoOp, errors.Wrapf(ErrUnknownCombinationMethod, "%q", name)
	}
}

func (m CombinationMethod) String() string {
	switch m {
	case Overwrite:
		return "overwrite"
	case Maximum:
		return "maximum"
	case NoOp:
		return "noop"
	default:
		return "unknown"
	}
}

// combine folds local into master over the master cell window [minI, maxI) x [minJ, maxJ).
func combine(method CombinationMethod, master, local *costmap.Costmap2D, minI, minJ, maxI, maxJ int) {
	switch method {
	case Overwrite:
		forEachWindowCell(master, local, minI, minJ, maxI, maxJ, func(masterIdx, localIdx int) {
			master.Costs()[masterIdx] = local.Costs()[localIdx]
		})
	case Maximum:
		forEachWindowCell(master, local, minI, minJ, maxI, maxJ, func(masterIdx, localIdx int) {
			cost := local.Costs()[localIdx]
			if cost == costmap.NoInformation {
				return
			}
			old := master.Costs()[masterIdx]
			if old == costmap.NoInformation || old < cost {
				master.Costs()[masterIdx] = cost
			}
		})
	case NoOp:
	}
}

// forEachWindowCell visits every master cell in the window together with the local cell
// covering it. When the grids differ in geometry, cells are matched through the world
// position of the master cell center and master cells off the local grid are skipped.
func forEachWindowCell(master, local *costmap.Costmap2D, minI, minJ, maxI, maxJ int, fn func(masterIdx, localIdx int)) {
	minI, maxI = clampWindow(minI, maxI, master.SizeInCellsX())
	minJ, maxJ = clampWindow(minJ, maxJ, master.SizeInCellsY())
	same := master.SameGeometry(local)
	for j := minJ; j < maxJ; j++ {
		for i := minI; i < maxI; i++ {
			masterIdx := master.Index(i, j)
			if same {
				fn(masterIdx, masterIdx)
				continue
			}
			wx, wy := master.MapToWorld(i, j)
			mx, my, ok := local.WorldToMap(wx, wy)
			if !ok {
				continue
			}
			fn(masterIdx, local.Index(mx, my))
		}
	}
}

func clampWindow(lo, hi, size int) (int, int) {
	if lo < 0 {
		lo = 0
	}
	if hi > size {
		hi = size
	}
	return lo, hi
}
