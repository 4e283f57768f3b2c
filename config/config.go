// Package config implements functions to assist with attribute evaluation in the obstacle layer.
package config

import (
	"math"
	"os"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/spatialmath"
	"go.viam.com/utils"
	"gopkg.in/yaml.v3"

	"github.com/viam-modules/viam-obstacle-layer/costmap"
	"github.com/viam-modules/viam-obstacle-layer/footprint"
	"github.com/viam-modules/viam-obstacle-layer/layer"
	"github.com/viam-modules/viam-obstacle-layer/observation"
)

const (
	// PointCloud2 is the data type of sources that produce point clouds.
	PointCloud2 = "PointCloud2"
	// LaserScan is the data type of sources that produce planar scans.
	LaserScan = "LaserScan"

	// DefaultObstacleRange is the obstacle range in metres of sources that do not set one.
	DefaultObstacleRange = 2.5
	// DefaultRaytraceRange is the raytrace range in metres of sources that do not set one.
	DefaultRaytraceRange = 3.0

	defaultMaxObstacleHeight = 2.0
	defaultCombinationMethod = layer.Maximum
	defaultRobotRadius       = 0.1
	defaultUpdateFrequencyHz = 5.0
	defaultDataFrequencyHz   = 5
	defaultSourceMaxHeight   = 0.0
	defaultSourceMinHeight   = 0.0
	defaultMarking           = true
	defaultClearing          = false
)

// newError returns an error specific to a failure in the obstacle layer config.
func newError(configError string) error {
	return errors.Errorf("obstacle layer configuration error: %s", configError)
}

// MountConfig places a sensor on the robot. Translation is in millimetres.
type MountConfig struct {
	Translation r3.Vector `json:"translation" yaml:"translation"`
	YawDegrees  float64   `json:"yaw_degrees" yaml:"yaw_degrees"`
}

// SourceConfig describes one ranging sensor feeding the layer.
type SourceConfig struct {
	Name                      string       `json:"name" yaml:"name"`
	DataType                  string       `json:"data_type" yaml:"data_type"`
	ObservationPersistenceSec float64      `json:"observation_persistence_sec" yaml:"observation_persistence_sec"`
	ExpectedUpdateRateSec     float64      `json:"expected_update_rate_sec" yaml:"expected_update_rate_sec"`
	MinObstacleHeight         *float64     `json:"min_obstacle_height" yaml:"min_obstacle_height"`
	MaxObstacleHeight         *float64     `json:"max_obstacle_height" yaml:"max_obstacle_height"`
	Marking                   *bool        `json:"marking" yaml:"marking"`
	Clearing                  *bool        `json:"clearing" yaml:"clearing"`
	ObstacleRange             *float64     `json:"obstacle_range" yaml:"obstacle_range"`
	RaytraceRange             *float64     `json:"raytrace_range" yaml:"raytrace_range"`
	InfIsValid                *bool        `json:"inf_is_valid" yaml:"inf_is_valid"`
	DataFrequencyHz           *int         `json:"data_frequency_hz" yaml:"data_frequency_hz"`
	Mount                     *MountConfig `json:"mount" yaml:"mount"`
}

// Config describes how to configure the obstacle layer.
type Config struct {
	Sources                  []SourceConfig `json:"sources" yaml:"sources"`
	Enabled                  *bool          `json:"enabled" yaml:"enabled"`
	FootprintClearingEnabled *bool          `json:"footprint_clearing_enabled" yaml:"footprint_clearing_enabled"`
	MaxObstacleHeight        *float64       `json:"max_obstacle_height" yaml:"max_obstacle_height"`
	// CombinationMethod is either the integer selector or one of the method names.
	CombinationMethod interface{} `json:"combination_method" yaml:"combination_method"`
	TrackUnknownSpace *bool       `json:"track_unknown_space" yaml:"track_unknown_space"`
	RollingWindow     *bool       `json:"rolling_window" yaml:"rolling_window"`
	WidthMeters       float64     `json:"width_meters" yaml:"width_meters"`
	HeightMeters      float64     `json:"height_meters" yaml:"height_meters"`
	ResolutionMeters  float64     `json:"resolution_meters" yaml:"resolution_meters"`
	OriginX           float64     `json:"origin_x" yaml:"origin_x"`
	OriginY           float64     `json:"origin_y" yaml:"origin_y"`
	Footprint         string      `json:"footprint" yaml:"footprint"`
	RobotRadius       *float64    `json:"robot_radius" yaml:"robot_radius"`
	FootprintPadding  float64     `json:"footprint_padding" yaml:"footprint_padding"`
	UpdateFrequencyHz *float64    `json:"update_frequency_hz" yaml:"update_frequency_hz"`
	DataDirectory     string      `json:"data_dir" yaml:"data_dir"`
}

// LayerParameters are the resolved layer level settings.
type LayerParameters struct {
	Layer             layer.Config
	TrackUnknownSpace bool
	UpdateFrequencyHz float64
}

// SourceParameters are the resolved settings of one source.
type SourceParameters struct {
	Buffer          observation.BufferConfig
	DataType        string
	Marking         bool
	Clearing        bool
	DataFrequencyHz int
	// MountPose is the sensor pose in the robot frame, in millimetres.
	MountPose spatialmath.Pose
}

// Load reads a YAML or JSON config file and validates it.
func Load(path string) (*Config, error) {
	//nolint:gosec
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading config %v", path)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, newError(err.Error())
	}
	if _, err := cfg.Validate(path); err != nil {
		return nil, newError(err.Error())
	}
	return &cfg, nil
}

// Validate creates the list of implicit dependencies.
func (config *Config) Validate(path string) ([]string, error) {
	if len(config.Sources) == 0 {
		return nil, utils.NewConfigValidationFieldRequiredError(path, "sources")
	}

	if config.ResolutionMeters <= 0 {
		return nil, utils.NewConfigValidationFieldRequiredError(path, "resolution_meters")
	}

	if config.WidthMeters <= 0 || config.HeightMeters <= 0 {
		return nil, utils.NewConfigValidationError(path, errors.New("width_meters and height_meters must be greater than zero"))
	}

	if config.MaxObstacleHeight != nil && *config.MaxObstacleHeight < 0 {
		return nil, errors.New("cannot specify max_obstacle_height less than zero")
	}

	if config.UpdateFrequencyHz != nil && *config.UpdateFrequencyHz <= 0 {
		return nil, errors.New("cannot specify update_frequency_hz less than or equal to zero")
	}

	if _, err := parseCombinationMethod(config.CombinationMethod); err != nil {
		return nil, utils.NewConfigValidationError(path, err)
	}

	if _, err := config.footprint(); err != nil {
		return nil, utils.NewConfigValidationError(path, err)
	}

	names := map[string]bool{}
	deps := make([]string, 0, len(config.Sources))
	for i, source := range config.Sources {
		if source.Name == "" {
			return nil, utils.NewConfigValidationFieldRequiredError(path, "sources.name")
		}
		if names[source.Name] {
			return nil, utils.NewConfigValidationError(path, errors.Errorf("source %v is configured more than once", source.Name))
		}
		names[source.Name] = true

		if err := source.validate(); err != nil {
			return nil, utils.NewConfigValidationError(path, errors.Wrapf(err, "sources[%d]", i))
		}
		deps = append(deps, source.Name)
	}

	return deps, nil
}

func (source *SourceConfig) validate() error {
	switch source.DataType {
	case "", PointCloud2, LaserScan:
	default:
		return errors.Errorf("data_type %q is not supported, use %v or %v", source.DataType, PointCloud2, LaserScan)
	}
	if source.ObservationPersistenceSec < 0 {
		return errors.New("cannot specify observation_persistence_sec less than zero")
	}
	if source.ExpectedUpdateRateSec < 0 {
		return errors.New("cannot specify expected_update_rate_sec less than zero")
	}
	if source.ObstacleRange != nil && *source.ObstacleRange < 0 {
		return errors.New("cannot specify obstacle_range less than zero")
	}
	if source.RaytraceRange != nil && *source.RaytraceRange < 0 {
		return errors.New("cannot specify raytrace_range less than zero")
	}
	if source.DataFrequencyHz != nil && *source.DataFrequencyHz <= 0 {
		return errors.New("cannot specify data_frequency_hz less than or equal to zero")
	}
	if source.MinObstacleHeight != nil && source.MaxObstacleHeight != nil &&
		*source.MinObstacleHeight > *source.MaxObstacleHeight {
		return errors.New("min_obstacle_height cannot be greater than max_obstacle_height")
	}
	return nil
}

// Costmap returns an empty grid with the configured geometry.
func (config *Config) Costmap(trackUnknownSpace bool) *costmap.Costmap2D {
	return costmap.NewFromMeters(config.WidthMeters, config.HeightMeters, config.ResolutionMeters,
		config.OriginX, config.OriginY, costmap.DefaultValue(trackUnknownSpace))
}

// GetOptionalParameters sets any unset optional config parameters to their defaults and
// returns the resolved layer and source settings.
func GetOptionalParameters(config *Config, logger logging.Logger) (LayerParameters, []SourceParameters, error) {
	params := LayerParameters{
		Layer: layer.Config{
			Enabled:                  boolOrDefault(logger, "enabled", config.Enabled, true),
			FootprintClearingEnabled: boolOrDefault(logger, "footprint_clearing_enabled", config.FootprintClearingEnabled, true),
			MaxObstacleHeight:        floatOrDefault(logger, "max_obstacle_height", config.MaxObstacleHeight, defaultMaxObstacleHeight),
			RollingWindow:            boolOrDefault(logger, "rolling_window", config.RollingWindow, false),
		},
		TrackUnknownSpace: boolOrDefault(logger, "track_unknown_space", config.TrackUnknownSpace, false),
		UpdateFrequencyHz: floatOrDefault(logger, "update_frequency_hz", config.UpdateFrequencyHz, defaultUpdateFrequencyHz),
	}

	method, err := parseCombinationMethod(config.CombinationMethod)
	if err != nil {
		return LayerParameters{}, nil, newError(err.Error())
	}
	if config.CombinationMethod == nil {
		logger.Debugf("no combination_method given, setting to default value of %v", method)
	}
	params.Layer.CombinationMethod = method

	fp, err := config.footprint()
	if err != nil {
		return LayerParameters{}, nil, newError(err.Error())
	}
	if config.Footprint == "" && config.RobotRadius == nil {
		logger.Debugf("no footprint or robot_radius given, setting to a circle of the default radius %v", defaultRobotRadius)
	}
	params.Layer.Footprint = fp

	sources := make([]SourceParameters, 0, len(config.Sources))
	for _, source := range config.Sources {
		sources = append(sources, source.parameters(logger))
	}
	return params, sources, nil
}

func (source *SourceConfig) parameters(logger logging.Logger) SourceParameters {
	logger = logger.Sublogger(source.Name)

	dataType := source.DataType
	if dataType == "" {
		logger.Debugf("no data_type given, setting to default value of %v", PointCloud2)
		dataType = PointCloud2
	}
	if source.InfIsValid != nil && *source.InfIsValid {
		logger.Warn("inf_is_valid only applies to laser scans, every source is read as a point cloud")
	}

	maxHeight := floatOrDefault(logger, "max_obstacle_height", source.MaxObstacleHeight, defaultSourceMaxHeight)
	if source.MaxObstacleHeight == nil {
		logger.Warn("no max_obstacle_height given, every point above the ground will be dropped")
	}

	params := SourceParameters{
		Buffer: observation.BufferConfig{
			Name:                   source.Name,
			KeepTime:               secondsToDuration(source.ObservationPersistenceSec),
			ExpectedUpdateInterval: secondsToDuration(source.ExpectedUpdateRateSec),
			MinObstacleHeight:      floatOrDefault(logger, "min_obstacle_height", source.MinObstacleHeight, defaultSourceMinHeight),
			MaxObstacleHeight:      maxHeight,
			ObstacleRange:          floatOrDefault(logger, "obstacle_range", source.ObstacleRange, DefaultObstacleRange),
			RaytraceRange:          floatOrDefault(logger, "raytrace_range", source.RaytraceRange, DefaultRaytraceRange),
		},
		DataType:  dataType,
		Marking:   boolOrDefault(logger, "marking", source.Marking, defaultMarking),
		Clearing:  boolOrDefault(logger, "clearing", source.Clearing, defaultClearing),
		MountPose: spatialmath.NewZeroPose(),
	}

	params.DataFrequencyHz = defaultDataFrequencyHz
	if source.DataFrequencyHz == nil {
		logger.Debugf("no data_frequency_hz given, setting to default value of %d", defaultDataFrequencyHz)
	} else {
		params.DataFrequencyHz = *source.DataFrequencyHz
	}

	if source.Mount != nil {
		params.MountPose = spatialmath.NewPose(source.Mount.Translation,
			&spatialmath.OrientationVectorDegrees{OZ: 1, Theta: source.Mount.YawDegrees})
	}
	return params
}

func (config *Config) footprint() (footprint.Footprint, error) {
	var fp footprint.Footprint
	var err error
	switch {
	case config.Footprint != "":
		fp, err = footprint.FromString(config.Footprint)
	case config.RobotRadius != nil:
		fp, err = footprint.FromRadius(*config.RobotRadius)
	default:
		fp, err = footprint.FromRadius(defaultRobotRadius)
	}
	if err != nil {
		return nil, err
	}
	return fp.Padded(config.FootprintPadding), nil
}

// parseCombinationMethod accepts the integer selector or a method name. JSON numbers decode
// as float64 and YAML integers as int.
func parseCombinationMethod(v interface{}) (layer.CombinationMethod, error) {
	switch method := v.(type) {
	case nil:
		return defaultCombinationMethod, nil
	case int:
		return layer.CombinationMethodFromInt(method), nil
	case float64:
		if method != math.Trunc(method) {
			return 0, errors.Errorf("combination_method %v is not an integer", method)
		}
		return layer.CombinationMethodFromInt(int(method)), nil
	case string:
		return layer.ParseCombinationMethod(method)
	default:
		return 0, errors.Errorf("combination_method has unsupported type %T", v)
	}
}

func boolOrDefault(logger logging.Logger, key string, v *bool, defaultValue bool) bool {
	if v == nil {
		logger.Debugf("no %v given, setting to default value of %v", key, defaultValue)
		return defaultValue
	}
	return *v
}

func floatOrDefault(logger logging.Logger, key string, v *float64, defaultValue float64) float64 {
	if v == nil {
		logger.Debugf("no %v given, setting to default value of %v", key, defaultValue)
		return defaultValue
	}
	return *v
}

func secondsToDuration(sec float64) time.Duration {
	return time.Duration(sec * float64(time.Second))
}
