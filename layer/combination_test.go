package layer

import (
	"testing"

	"go.viam.com/test"

	"github.com/viam-modules/viam-obstacle-layer/costmap"
)

var costLevels = []uint8{
	costmap.FreeSpace, 42, costmap.InscribedInflatedObstacle, costmap.LethalObstacle, costmap.NoInformation,
}

// pairGrids returns a master and local grid that together hold every pair of cost levels.
func pairGrids() (*costmap.Costmap2D, *costmap.Costmap2D) {
	n := len(costLevels)
	master := costmap.New(n, n, 1, 0, 0, costmap.NoInformation)
	local := costmap.New(n, n, 1, 0, 0, costmap.NoInformation)
	for i, m := range costLevels {
		for j, l := range costLevels {
			master.SetCost(i, j, m)
			local.SetCost(i, j, l)
		}
	}
	return master, local
}

// rank orders costs with unknown below free.
func rank(cost uint8) int {
	if cost == costmap.NoInformation {
		return -1
	}
	return int(cost)
}

func TestCombine(t *testing.T) {
	n := len(costLevels)

	t.Run("maximum keeps the higher cost with unknown lowest", func(t *testing.T) {
		master, local := pairGrids()
		before := snapshotCosts(master)
		combine(Maximum, master, local, 0, 0, n, n)
		for idx, after := range master.Costs() {
			want := before[idx]
			if rank(local.Costs()[idx]) > rank(want) {
				want = local.Costs()[idx]
			}
			test.That(t, after, test.ShouldEqual, want)
		}
	})

	t.Run("overwrite copies the local grid", func(t *testing.T) {
		master, local := pairGrids()
		combine(Overwrite, master, local, 0, 0, n, n)
		test.That(t, master.Costs(), test.ShouldResemble, local.Costs())
	})

	t.Run("noop leaves the master grid alone", func(t *testing.T) {
		master, local := pairGrids()
		before := snapshotCosts(master)
		combine(NoOp, master, local, 0, 0, n, n)
		test.That(t, master.Costs(), test.ShouldResemble, before)
	})

	t.Run("only the window is combined", func(t *testing.T) {
		master := costmap.New(4, 4, 1, 0, 0, costmap.NoInformation)
		local := costmap.NewMatching(master, costmap.LethalObstacle)
		combine(Overwrite, master, local, 1, 2, 3, 4)
		for x := 0; x < 4; x++ {
			for y := 0; y < 4; y++ {
				if x >= 1 && x < 3 && y >= 2 {
					test.That(t, master.Cost(x, y), test.ShouldEqual, costmap.LethalObstacle)
				} else {
					test.That(t, master.Cost(x, y), test.ShouldEqual, costmap.NoInformation)
				}
			}
		}
	})

	t.Run("windows past the master edges are clamped", func(t *testing.T) {
		master := costmap.New(4, 4, 1, 0, 0, costmap.NoInformation)
		local := costmap.NewMatching(master, costmap.LethalObstacle)
		combine(Maximum, master, local, -3, -3, 10, 10)
		for _, cost := range master.Costs() {
			test.That(t, cost, test.ShouldEqual, costmap.LethalObstacle)
		}
	})

	t.Run("grids of different geometry are matched through world coordinates", func(t *testing.T) {
		master := costmap.New(30, 30, 0.5, 0, 0, costmap.NoInformation)
		local := costmap.New(10, 10, 1, 0, 0, costmap.FreeSpace)
		local.SetCost(2, 3, costmap.LethalObstacle)

		combine(Maximum, master, local, 0, 0, 30, 30)
		for _, c := range [][2]int{{4, 6}, {5, 6}, {4, 7}, {5, 7}} {
			test.That(t, master.Cost(c[0], c[1]), test.ShouldEqual, costmap.LethalObstacle)
		}
		test.That(t, master.Cost(0, 0), test.ShouldEqual, costmap.FreeSpace)
		test.That(t, master.Cost(25, 25), test.ShouldEqual, costmap.NoInformation)
	})
}

func TestCombinationMethod(t *testing.T) {
	test.That(t, CombinationMethodFromInt(0), test.ShouldEqual, Overwrite)
	test.That(t, CombinationMethodFromInt(1), test.ShouldEqual, Maximum)
	test.That(t, CombinationMethodFromInt(2), test.ShouldEqual, NoOp)
	test.That(t, CombinationMethodFromInt(-1), test.ShouldEqual, NoOp)

	for _, m := range []CombinationMethod{Overwrite, Maximum, NoOp} {
		parsed, err := ParseCombinationMethod(m.String())
		test.That(t, err, test.ShouldBeNil)
		test.That(t, parsed, test.ShouldEqual, m)
	}

	_, err := ParseCombinationMethod("average")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, ErrUnknownCombinationMethod.Error())
}
