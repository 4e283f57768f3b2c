// Package main runs the obstacle layer against simulated ranging sensors and writes the
// resulting map as a PCD file.
package main

import (
	"context"
	"errors"
	"image/color"
	"io"
	"math"
	"time"

	"github.com/golang/geo/r3"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/pointcloud"
	"go.viam.com/rdk/spatialmath"
	"go.viam.com/utils"

	obstaclelayer "github.com/viam-modules/viam-obstacle-layer"
	"github.com/viam-modules/viam-obstacle-layer/config"
	"github.com/viam-modules/viam-obstacle-layer/dataprocess"
	s "github.com/viam-modules/viam-obstacle-layer/sensors"
	"github.com/viam-modules/viam-obstacle-layer/telemetry"
)

// Versioning variables which are replaced by LD flags.
var (
	Version     = "development"
	GitRevision = ""
)

const (
	ringPoints         = 90
	ringRadiusMM       = 1500.0
	ringHeightMM       = 100.0
	robotSpeedMMPerSec = 100.0
)

// Arguments are the command line flags of the obstacle layer binary.
type Arguments struct {
	ConfigFile  string `flag:"config,usage=obstacle layer config file (yaml or json)"`
	DurationSec int    `flag:"duration_sec,usage=seconds to run before writing the map, 0 runs until interrupted"`
	Version     bool   `flag:"version,usage=print the version and exit"`
}

func main() {
	utils.ContextualMain(mainWithArgs, logging.NewLogger("obstacleLayer"))
}

func mainWithArgs(ctx context.Context, args []string, logger logging.Logger) error {
	var argsParsed Arguments
	if err := utils.ParseFlags(args, &argsParsed); err != nil {
		return err
	}

	var versionFields []interface{}
	if Version != "" {
		versionFields = append(versionFields, "version", Version)
	}
	if GitRevision != "" {
		versionFields = append(versionFields, "git_rev", GitRevision)
	}
	if len(versionFields) != 0 {
		logger.Infow("obstacle layer", versionFields...)
	} else {
		logger.Info("obstacle layer built from source; version unknown")
	}

	if argsParsed.Version {
		return nil
	}
	if argsParsed.ConfigFile == "" {
		return utils.NewConfigValidationFieldRequiredError("flags", "config")
	}

	cfg, err := config.Load(argsParsed.ConfigFile)
	if err != nil {
		return err
	}

	exporter, err := telemetry.SetupTelemetry()
	if err != nil {
		return err
	}
	defer exporter.Stop()

	deps := make(map[string]s.PointCloudSource, len(cfg.Sources))
	for _, source := range cfg.Sources {
		deps[source.Name] = simulatedRing()
	}

	svc, err := obstaclelayer.New(ctx, cfg, deps, logger,
		obstaclelayer.DefaultFacadeTimeout, obstaclelayer.DefaultSensorValidationMaxTimeout)
	if err != nil {
		return err
	}
	defer utils.UncheckedErrorFunc(func() error { return svc.Close(context.Background()) })

	runCtx := ctx
	if argsParsed.DurationSec > 0 {
		var cancel func()
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(argsParsed.DurationSec)*time.Second)
		defer cancel()
	}

	if err := runControlLoop(runCtx, svc, logger); err != nil {
		return err
	}

	if cfg.DataDirectory == "" {
		return nil
	}
	return writeMap(context.Background(), svc, cfg.DataDirectory, logger)
}

// runControlLoop drives the robot along the x axis and runs an update cycle at the
// configured rate until ctx is done.
func runControlLoop(ctx context.Context, svc *obstaclelayer.Service, logger logging.Logger) error {
	period := time.Duration(float64(time.Second) / svc.UpdateFrequencyHz())
	start := time.Now()
	for utils.SelectContextOrWait(ctx, period) {
		x := robotSpeedMMPerSec * time.Since(start).Seconds()
		result, err := svc.Update(ctx, spatialmath.NewPoseFromPoint(r3.Vector{X: x}))
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if !result.Current {
			logger.Warn("obstacle layer is not current")
		}
	}
	return nil
}

func writeMap(ctx context.Context, svc *obstaclelayer.Service, dataDirectory string, logger logging.Logger) error {
	f, err := svc.PointCloudMap(ctx)
	if err != nil {
		return err
	}
	var pcd []byte
	for {
		chunk, err := f()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		pcd = append(pcd, chunk...)
	}

	filename := dataprocess.CreateTimestampFilename(dataDirectory, "obstacles", ".pcd", time.Now())
	if err := dataprocess.WriteBytesToFile(pcd, filename); err != nil {
		return err
	}
	logger.Infow("wrote obstacle map", "file", filename)
	return nil
}

// simulatedRing is a sensor that sees a circular wall around itself, in millimetres.
func simulatedRing() s.PointCloudSource {
	return s.PointCloudSourceFunc(func(ctx context.Context) (pointcloud.PointCloud, error) {
		pc := pointcloud.NewWithPrealloc(ringPoints)
		for i := 0; i < ringPoints; i++ {
			angle := 2 * math.Pi * float64(i) / ringPoints
			p := r3.Vector{X: ringRadiusMM * math.Cos(angle), Y: ringRadiusMM * math.Sin(angle), Z: ringHeightMM}
			if err := pc.Set(p, pointcloud.NewColoredData(color.NRGBA{G: 255, A: 255})); err != nil {
				return nil, err
			}
		}
		return pc, nil
	})
}
