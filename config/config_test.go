package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/spatialmath"
	"go.viam.com/test"
	"go.viam.com/utils"

	"github.com/viam-modules/viam-obstacle-layer/footprint"
	"github.com/viam-modules/viam-obstacle-layer/layer"
)

const testCfgPath = "services.obstacle_layer.attributes.fake"

func makeAttributes() map[string]interface{} {
	return map[string]interface{}{
		"sources": []interface{}{
			map[string]interface{}{"name": "front_lidar"},
		},
		"width_meters":      10.0,
		"height_meters":     8.0,
		"resolution_meters": 0.05,
	}
}

func newConfig(attributes map[string]interface{}) (*Config, error) {
	conf, err := resource.TransformAttributeMap[*Config](attributes)
	if err != nil {
		return &Config{}, newError(err.Error())
	}

	if _, err := conf.Validate(testCfgPath); err != nil {
		return &Config{}, newError(err.Error())
	}

	return conf, nil
}

func TestValidate(t *testing.T) {
	t.Run("Simplest valid config", func(t *testing.T) {
		conf, err := newConfig(makeAttributes())
		test.That(t, err, test.ShouldBeNil)
		deps, err := conf.Validate(testCfgPath)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, deps, test.ShouldResemble, []string{"front_lidar"})
	})

	t.Run("Config without required fields", func(t *testing.T) {
		for _, field := range []string{"sources", "resolution_meters"} {
			attributes := makeAttributes()
			delete(attributes, field)
			_, err := newConfig(attributes)
			expectedErr := utils.NewConfigValidationFieldRequiredError(testCfgPath, field)
			test.That(t, err, test.ShouldBeError, newError(expectedErr.Error()))
		}
	})

	t.Run("Config with a source without a name", func(t *testing.T) {
		attributes := makeAttributes()
		attributes["sources"] = []interface{}{map[string]interface{}{"data_type": "PointCloud2"}}
		_, err := newConfig(attributes)
		expectedErr := utils.NewConfigValidationFieldRequiredError(testCfgPath, "sources.name")
		test.That(t, err, test.ShouldBeError, newError(expectedErr.Error()))
	})

	t.Run("Config with invalid parameters", func(t *testing.T) {
		for _, tc := range []struct {
			msg   string
			key   string
			value interface{}
		}{
			{msg: "zero width", key: "width_meters", value: 0.0},
			{msg: "negative max obstacle height", key: "max_obstacle_height", value: -1.0},
			{msg: "zero update frequency", key: "update_frequency_hz", value: 0.0},
			{msg: "unknown combination method name", key: "combination_method", value: "average"},
			{msg: "fractional combination method", key: "combination_method", value: 0.5},
			{msg: "footprint with two points", key: "footprint", value: "[[0.1, 0.1], [-0.1, 0.1]]"},
			{msg: "non positive robot radius", key: "robot_radius", value: 0.0},
			{msg: "duplicated source", key: "sources", value: []interface{}{
				map[string]interface{}{"name": "a"}, map[string]interface{}{"name": "a"},
			}},
			{msg: "unsupported data type", key: "sources", value: []interface{}{
				map[string]interface{}{"name": "a", "data_type": "Range"},
			}},
			{msg: "negative persistence", key: "sources", value: []interface{}{
				map[string]interface{}{"name": "a", "observation_persistence_sec": -1.0},
			}},
			{msg: "negative raytrace range", key: "sources", value: []interface{}{
				map[string]interface{}{"name": "a", "raytrace_range": -1.0},
			}},
			{msg: "zero data frequency", key: "sources", value: []interface{}{
				map[string]interface{}{"name": "a", "data_frequency_hz": 0},
			}},
			{msg: "inverted height window", key: "sources", value: []interface{}{
				map[string]interface{}{"name": "a", "min_obstacle_height": 1.0, "max_obstacle_height": 0.5},
			}},
		} {
			t.Run(tc.msg, func(t *testing.T) {
				attributes := makeAttributes()
				attributes[tc.key] = tc.value
				_, err := newConfig(attributes)
				test.That(t, err, test.ShouldNotBeNil)
			})
		}
	})

	t.Run("Config accepting laser scans and combination method selectors", func(t *testing.T) {
		attributes := makeAttributes()
		attributes["sources"] = []interface{}{
			map[string]interface{}{"name": "scan", "data_type": "LaserScan"},
			map[string]interface{}{"name": "cloud", "data_type": "PointCloud2"},
		}
		attributes["combination_method"] = 7
		conf, err := newConfig(attributes)
		test.That(t, err, test.ShouldBeNil)
		deps, err := conf.Validate(testCfgPath)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, deps, test.ShouldResemble, []string{"scan", "cloud"})
	})
}

func TestGetOptionalParameters(t *testing.T) {
	logger := logging.NewTestLogger(t)

	t.Run("Pass default parameters", func(t *testing.T) {
		conf, err := newConfig(makeAttributes())
		test.That(t, err, test.ShouldBeNil)

		params, sources, err := GetOptionalParameters(conf, logger)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, params.Layer.Enabled, test.ShouldBeTrue)
		test.That(t, params.Layer.FootprintClearingEnabled, test.ShouldBeTrue)
		test.That(t, params.Layer.MaxObstacleHeight, test.ShouldEqual, 2.0)
		test.That(t, params.Layer.CombinationMethod, test.ShouldEqual, layer.Maximum)
		test.That(t, params.Layer.RollingWindow, test.ShouldBeFalse)
		test.That(t, params.TrackUnknownSpace, test.ShouldBeFalse)
		test.That(t, params.UpdateFrequencyHz, test.ShouldEqual, 5.0)

		defaultFootprint, err := footprint.FromRadius(0.1)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, params.Layer.Footprint, test.ShouldResemble, defaultFootprint)

		test.That(t, len(sources), test.ShouldEqual, 1)
		source := sources[0]
		test.That(t, source.Buffer.Name, test.ShouldEqual, "front_lidar")
		test.That(t, source.Buffer.KeepTime, test.ShouldEqual, time.Duration(0))
		test.That(t, source.Buffer.ExpectedUpdateInterval, test.ShouldEqual, time.Duration(0))
		test.That(t, source.Buffer.MinObstacleHeight, test.ShouldEqual, 0.0)
		test.That(t, source.Buffer.MaxObstacleHeight, test.ShouldEqual, 0.0)
		test.That(t, source.Buffer.ObstacleRange, test.ShouldEqual, 2.5)
		test.That(t, source.Buffer.RaytraceRange, test.ShouldEqual, 3.0)
		test.That(t, source.DataType, test.ShouldEqual, PointCloud2)
		test.That(t, source.Marking, test.ShouldBeTrue)
		test.That(t, source.Clearing, test.ShouldBeFalse)
		test.That(t, source.DataFrequencyHz, test.ShouldEqual, 5)
		test.That(t, spatialmath.PoseAlmostEqual(source.MountPose, spatialmath.NewZeroPose()), test.ShouldBeTrue)
	})

	t.Run("Return overrides", func(t *testing.T) {
		attributes := makeAttributes()
		attributes["enabled"] = false
		attributes["footprint_clearing_enabled"] = false
		attributes["max_obstacle_height"] = 1.5
		attributes["combination_method"] = "overwrite"
		attributes["track_unknown_space"] = true
		attributes["rolling_window"] = true
		attributes["update_frequency_hz"] = 10.0
		attributes["footprint"] = "[[0.5, 0.25], [-0.5, 0.25], [-0.5, -0.25], [0.5, -0.25]]"
		attributes["footprint_padding"] = 0.1
		attributes["sources"] = []interface{}{
			map[string]interface{}{
				"name":                        "depth",
				"data_type":                   "LaserScan",
				"observation_persistence_sec": 1.5,
				"expected_update_rate_sec":    0.5,
				"min_obstacle_height":         0.1,
				"max_obstacle_height":         1.8,
				"marking":                     false,
				"clearing":                    true,
				"obstacle_range":              4.0,
				"raytrace_range":              5.0,
				"inf_is_valid":                true,
				"data_frequency_hz":           20,
				"mount": map[string]interface{}{
					"translation": map[string]interface{}{"x": 100.0, "y": 0.0, "z": 300.0},
					"yaw_degrees": 90.0,
				},
			},
		}
		conf, err := newConfig(attributes)
		test.That(t, err, test.ShouldBeNil)

		params, sources, err := GetOptionalParameters(conf, logger)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, params.Layer.Enabled, test.ShouldBeFalse)
		test.That(t, params.Layer.FootprintClearingEnabled, test.ShouldBeFalse)
		test.That(t, params.Layer.MaxObstacleHeight, test.ShouldEqual, 1.5)
		test.That(t, params.Layer.CombinationMethod, test.ShouldEqual, layer.Overwrite)
		test.That(t, params.Layer.RollingWindow, test.ShouldBeTrue)
		test.That(t, params.TrackUnknownSpace, test.ShouldBeTrue)
		test.That(t, params.UpdateFrequencyHz, test.ShouldEqual, 10.0)
		test.That(t, len(params.Layer.Footprint), test.ShouldEqual, 4)
		test.That(t, params.Layer.Footprint[0].X, test.ShouldAlmostEqual, 0.6)
		test.That(t, params.Layer.Footprint[0].Y, test.ShouldAlmostEqual, 0.35)

		source := sources[0]
		test.That(t, source.Buffer.KeepTime, test.ShouldEqual, 1500*time.Millisecond)
		test.That(t, source.Buffer.ExpectedUpdateInterval, test.ShouldEqual, 500*time.Millisecond)
		test.That(t, source.Buffer.MinObstacleHeight, test.ShouldEqual, 0.1)
		test.That(t, source.Buffer.MaxObstacleHeight, test.ShouldEqual, 1.8)
		test.That(t, source.Buffer.ObstacleRange, test.ShouldEqual, 4.0)
		test.That(t, source.Buffer.RaytraceRange, test.ShouldEqual, 5.0)
		test.That(t, source.DataType, test.ShouldEqual, LaserScan)
		test.That(t, source.Marking, test.ShouldBeFalse)
		test.That(t, source.Clearing, test.ShouldBeTrue)
		test.That(t, source.DataFrequencyHz, test.ShouldEqual, 20)
		test.That(t, source.MountPose.Point(), test.ShouldResemble, r3.Vector{X: 100, Y: 0, Z: 300})
		test.That(t, source.MountPose.Orientation().OrientationVectorDegrees().Theta, test.ShouldAlmostEqual, 90)
	})

	t.Run("Robot radius builds a circular footprint", func(t *testing.T) {
		attributes := makeAttributes()
		attributes["robot_radius"] = 0.3
		attributes["combination_method"] = 0
		conf, err := newConfig(attributes)
		test.That(t, err, test.ShouldBeNil)

		params, _, err := GetOptionalParameters(conf, logger)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, params.Layer.CombinationMethod, test.ShouldEqual, layer.Overwrite)
		test.That(t, params.Layer.Footprint.CircumscribedRadius(), test.ShouldAlmostEqual, 0.3)
	})

	t.Run("Invalid combination method", func(t *testing.T) {
		conf := &Config{CombinationMethod: []int{1}}
		_, _, err := GetOptionalParameters(conf, logger)
		test.That(t, err, test.ShouldBeError, newError(errors.New("combination_method has unsupported type []int").Error()))
	})
}

func TestCostmap(t *testing.T) {
	conf, err := newConfig(makeAttributes())
	test.That(t, err, test.ShouldBeNil)
	conf.OriginX = -5
	conf.OriginY = -4

	grid := conf.Costmap(true)
	test.That(t, grid.SizeInCellsX(), test.ShouldEqual, 200)
	test.That(t, grid.SizeInCellsY(), test.ShouldEqual, 160)
	test.That(t, grid.OriginX(), test.ShouldEqual, -5)
	test.That(t, grid.OriginY(), test.ShouldEqual, -4)
	test.That(t, grid.Cost(0, 0), test.ShouldEqual, uint8(255))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	t.Run("loads a yaml file", func(t *testing.T) {
		path := filepath.Join(dir, "layer.yaml")
		content := `
width_meters: 6
height_meters: 4
resolution_meters: 0.1
combination_method: 0
footprint: "[[0.2, 0.2], [-0.2, 0.2], [-0.2, -0.2], [0.2, -0.2]]"
sources:
  - name: front
    marking: true
    clearing: true
    max_obstacle_height: 2.0
    mount:
      translation: {x: 200, y: 0, z: 150}
`
		test.That(t, os.WriteFile(path, []byte(content), 0o600), test.ShouldBeNil)

		conf, err := Load(path)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, conf.WidthMeters, test.ShouldEqual, 6.0)
		test.That(t, conf.CombinationMethod, test.ShouldEqual, 0)
		test.That(t, len(conf.Sources), test.ShouldEqual, 1)
		test.That(t, *conf.Sources[0].Clearing, test.ShouldBeTrue)
		test.That(t, conf.Sources[0].Mount.Translation, test.ShouldResemble, r3.Vector{X: 200, Z: 150})
	})

	t.Run("loads a json file", func(t *testing.T) {
		path := filepath.Join(dir, "layer.json")
		content := `{"width_meters": 6, "height_meters": 4, "resolution_meters": 0.1, ` +
			`"combination_method": "maximum", "sources": [{"name": "front"}]}`
		test.That(t, os.WriteFile(path, []byte(content), 0o600), test.ShouldBeNil)

		conf, err := Load(path)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, conf.CombinationMethod, test.ShouldEqual, "maximum")
	})

	t.Run("fails on an invalid file", func(t *testing.T) {
		path := filepath.Join(dir, "invalid.yaml")
		test.That(t, os.WriteFile(path, []byte("width_meters: 6\n"), 0o600), test.ShouldBeNil)

		_, err := Load(path)
		expectedErr := utils.NewConfigValidationFieldRequiredError(path, "sources")
		test.That(t, err, test.ShouldBeError, newError(expectedErr.Error()))
	})

	t.Run("fails on a missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(dir, "missing.yaml"))
		test.That(t, err, test.ShouldNotBeNil)
	})
}
