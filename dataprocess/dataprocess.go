// Package dataprocess converts costmaps into point clouds and saves them to disk.
package dataprocess

import (
	"bufio"
	"bytes"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/golang/geo/r3"
	pc "go.viam.com/rdk/pointcloud"

	"github.com/viam-modules/viam-obstacle-layer/costmap"
	s "github.com/viam-modules/viam-obstacle-layer/sensors"
)

const (
	// TimeFormat is the timestamp format used in the dataprocess.
	TimeFormat = "2006-01-02T15:04:05.0000Z"
	// fullConfidence is the blue channel value of a lethal cell.
	fullConfidence = 100
)

// GridToPointCloud returns one point per cell whose cost is at least minCost, placed at the
// cell center in millimetres. Unknown cells are skipped.
//
// Viam expects the confidence of a map point encoded in the blue channel on a scale
// of 1-100, so the cell cost is scaled against LethalObstacle.
func GridToPointCloud(grid *costmap.Costmap2D, minCost uint8) (pc.PointCloud, error) {
	cloud := pc.NewWithPrealloc(0)
	for my := 0; my < grid.SizeInCellsY(); my++ {
		for mx := 0; mx < grid.SizeInCellsX(); mx++ {
			cost := grid.Cost(mx, my)
			if cost == costmap.NoInformation || cost < minCost {
				continue
			}
			wx, wy := grid.MapToWorld(mx, my)
			point := r3.Vector{X: wx * s.MillimetersPerMeter, Y: wy * s.MillimetersPerMeter}
			if err := cloud.Set(point, pc.NewColoredData(color.NRGBA{B: confidence(cost), A: 255})); err != nil {
				return nil, err
			}
		}
	}
	return cloud, nil
}

// GridToPCD encodes the cells GridToPointCloud selects as a binary PCD.
func GridToPCD(grid *costmap.Costmap2D, minCost uint8) ([]byte, error) {
	cloud, err := GridToPointCloud(grid, minCost)
	if err != nil {
		return nil, err
	}
	buf := new(bytes.Buffer)
	if err := pc.ToPCD(cloud, buf, pc.PCDBinary); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func confidence(cost uint8) uint8 {
	c := math.Round(float64(cost) * fullConfidence / float64(costmap.LethalObstacle))
	return uint8(math.Max(1, math.Min(fullConfidence, c)))
}

// CreateTimestampFilename creates an absolute filename with a name and timestamp written
// into the filename.
func CreateTimestampFilename(dataDirectory, name, fileType string, timeStamp time.Time) string {
	return filepath.Join(dataDirectory, name+"_data_"+timeStamp.UTC().Format(TimeFormat)+fileType)
}

// WritePCDToFile encodes the pointcloud and then saves it to the passed filename.
func WritePCDToFile(pointcloud pc.PointCloud, filename string) error {
	buf := new(bytes.Buffer)
	if err := pc.ToPCD(pointcloud, buf, pc.PCDBinary); err != nil {
		return err
	}
	return WriteBytesToFile(buf.Bytes(), filename)
}

// WriteBytesToFile writes the passed bytes to the passed filename.
func WriteBytesToFile(bytes []byte, filename string) error {
	//nolint:gosec
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if _, err := w.Write(bytes); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return f.Close()
}
