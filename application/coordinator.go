// Package application assembles the microscope: one event bus, the hardware
// services, the controllers, the stream handler and the acquisition
// controller, wired in dependency order and shut down in reverse.
package application

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"sync"
	"time"

	"squid-go/application/acquisition"
	"squid-go/application/autofocus"
	"squid-go/application/controller"
	"squid-go/application/service"
	"squid-go/application/stream"
	"squid-go/core/command"
	"squid-go/core/eventbus"
	"squid-go/domain/channel"
	"squid-go/domain/experiment"
	"squid-go/domain/hardware"
	"squid-go/domain/plan"
	"squid-go/infrastructure/imagesave"
	"squid-go/infrastructure/repository"
	"squid-go/infrastructure/simulated"
	"squid-go/infrastructure/telemetry"
)

// ErrUnknownTemplate is returned for a plan template name that was never loaded.
var ErrUnknownTemplate = errors.New("unknown plan template")

// Hardware holds one driver per device class. Piezo, Filter and LaserAF may
// be nil when the device is not installed.
type Hardware struct {
	Camera       hardware.Camera
	Stage        hardware.Stage
	Illumination hardware.Illumination
	Peripheral   hardware.Peripheral
	Piezo        hardware.Piezo
	Filter       hardware.FilterWheel
	LaserAF      hardware.DisplacementSensor
}

// SimulatedHardware exposes the devices of a simulated rig.
func SimulatedHardware(rig *simulated.Rig) Hardware {
	return Hardware{
		Camera:       rig.Camera,
		Stage:        rig.Stage,
		Illumination: rig.Illumination,
		Peripheral:   rig.Peripheral,
		Piezo:        rig.Piezo,
		Filter:       rig.Filter,
		LaserAF:      rig.LaserAF,
	}
}

// CoordinatorConfig holds configuration for the Coordinator.
type CoordinatorConfig struct {
	Hardware Hardware

	// Resources holds the channel file and the plan templates.
	Resources    fs.FS
	ChannelsFile string
	PlansDir     string
	// Objective is selected at startup. Empty selects the first one loaded.
	Objective string

	// Repository stores experiments. Nil keeps them in memory.
	Repository experiment.Repository
	// OutputDir receives FITS images. Empty disables image files.
	OutputDir string

	Collector   telemetry.Collector
	Acquisition acquisition.Config
	Stream      stream.Config
	EventBus    eventbus.Config

	SensorPixelUm float64
	TubeLensMM    float64

	Logger *slog.Logger
}

// DefaultCoordinatorConfig returns a configuration driving a simulated rig.
func DefaultCoordinatorConfig() *CoordinatorConfig {
	return &CoordinatorConfig{
		Hardware:      SimulatedHardware(simulated.NewRig()),
		ChannelsFile:  "channels.yaml",
		PlansDir:      "plans",
		Acquisition:   acquisition.DefaultConfig(),
		Stream:        stream.DefaultConfig(),
		EventBus:      eventbus.DefaultConfig(),
		SensorPixelUm: 3.45,
		TubeLensMM:    180,
	}
}

// Coordinator owns every long-lived component of one microscope.
type Coordinator struct {
	Bus      eventbus.EventBus
	Gate     *service.ModeGate
	Registry *channel.Registry

	Camera       *service.CameraService
	Stage        *service.StageService
	Illumination *service.IlluminationService
	Peripheral   *service.PeripheralService
	Piezo        *service.PiezoService
	Filter       *service.FilterService

	Mode        *controller.MicroscopeModeController
	Peripherals *controller.PeripheralsController
	Live        *controller.LiveController
	// LaserAF is nil when the rig has no laser autofocus sensor.
	LaserAF *controller.LaserAFController

	Stream      *stream.Handler
	Contrast    *autofocus.Contrast
	Laser       *autofocus.Laser
	Acquisition *acquisition.Controller
	Experiments *experiment.Service
	Images      *imagesave.FITSWriter

	templates map[string]*plan.Template
	logger    *slog.Logger
	stopOnce  sync.Once
}

// NewCoordinator loads the channel configuration and plan templates, then
// builds and wires every component.
func NewCoordinator(cfg *CoordinatorConfig) (*Coordinator, error) {
	if cfg == nil {
		cfg = DefaultCoordinatorConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Collector == nil {
		cfg.Collector = telemetry.Noop()
	}
	hw := cfg.Hardware
	if hw.Camera == nil || hw.Stage == nil || hw.Illumination == nil || hw.Peripheral == nil {
		return nil, errors.New("camera, stage, illumination and peripheral drivers are required")
	}

	c := &Coordinator{
		Registry:  channel.NewRegistry(),
		templates: make(map[string]*plan.Template),
		logger:    cfg.Logger.With("component", "coordinator"),
	}

	if cfg.Resources != nil {
		if err := channel.NewLoader(c.Registry).LoadFromFS(cfg.Resources, cfg.ChannelsFile); err != nil {
			return nil, err
		}
		if cfg.PlansDir != "" {
			templates, err := plan.LoadTemplates(cfg.Resources, cfg.PlansDir)
			if err != nil {
				return nil, err
			}
			c.templates = templates
		}
	}

	busCfg := cfg.EventBus
	if busCfg.Logger == nil {
		busCfg.Logger = cfg.Logger
	}
	c.Bus = eventbus.New(busCfg)
	c.Gate = service.NewModeGate(c.Bus, cfg.Logger)

	svcCfg := service.Config{EventBus: c.Bus, Gate: c.Gate, Logger: cfg.Logger}
	c.Camera = service.NewCameraService(hw.Camera, svcCfg)
	c.Stage = service.NewStageService(hw.Stage, service.DefaultStageConfig(svcCfg))
	c.Illumination = service.NewIlluminationService(hw.Illumination, svcCfg)
	c.Peripheral = service.NewPeripheralService(hw.Peripheral, svcCfg)
	c.Piezo = service.NewPiezoService(hw.Piezo, svcCfg)
	c.Filter = service.NewFilterService(hw.Filter, svcCfg)

	ctrlCfg := controller.Config{EventBus: c.Bus, Gate: c.Gate, Logger: cfg.Logger}
	c.Mode = controller.NewMicroscopeModeController(controller.ModeConfig{
		Config:       ctrlCfg,
		Registry:     c.Registry,
		Camera:       c.Camera,
		Illumination: c.Illumination,
		Filter:       c.Filter,
	})
	c.Peripherals = controller.NewPeripheralsController(controller.PeripheralsConfig{
		Config:        ctrlCfg,
		Registry:      c.Registry,
		Mode:          c.Mode,
		Camera:        c.Camera,
		SensorPixelUm: cfg.SensorPixelUm,
		TubeLensMM:    cfg.TubeLensMM,
	})

	streamCfg := cfg.Stream
	if streamCfg.Logger == nil {
		streamCfg.Logger = cfg.Logger
	}
	if streamCfg.Collector == nil {
		streamCfg.Collector = cfg.Collector
	}
	c.Stream = stream.New(streamCfg)
	c.Camera.SetFrameCallback(c.Stream.OnFrame)

	c.Live = controller.NewLiveController(controller.LiveConfig{
		Config:       ctrlCfg,
		Camera:       c.Camera,
		Illumination: c.Illumination,
		Mode:         c.Mode,
		Stream:       c.Stream,
		Trigger:      c.Peripheral,
	})

	c.Contrast = autofocus.NewContrast(c.Stage, c.Camera, cfg.Logger)
	if hw.LaserAF != nil {
		laserCfg := autofocus.DefaultLaserConfig()
		laserCfg.Logger = cfg.Logger
		c.Laser = autofocus.NewLaser(hw.LaserAF, c.Peripheral, c.Stage, c.Piezo, laserCfg)
		c.LaserAF = controller.NewLaserAFController(controller.LaserAFConfig{
			Config: ctrlCfg,
			Laser:  c.Laser,
		})
	}

	repo := cfg.Repository
	if repo == nil {
		repo = repository.NewMemoryExperimentRepository()
	}
	c.Experiments = experiment.NewService(repo)
	sink := experiment.MultiSink{}
	if cfg.OutputDir != "" {
		c.Images = imagesave.NewFITSWriter(cfg.OutputDir, cfg.Logger)
		sink = append(sink, c.Images)
	}
	sink = append(sink, c.Experiments.RecordSink())

	acqCfg := cfg.Acquisition
	acqCfg.EventBus = c.Bus
	acqCfg.Gate = c.Gate
	acqCfg.Logger = cfg.Logger
	acqCfg.Collector = cfg.Collector
	acqCfg.Camera = c.Camera
	acqCfg.Stage = c.Stage
	acqCfg.Illumination = c.Illumination
	acqCfg.Mode = c.Mode
	acqCfg.Stream = c.Stream
	acqCfg.Contrast = c.Contrast
	if c.Laser != nil {
		acqCfg.Laser = c.Laser
	}
	acqCfg.Live = c.Live
	acqCfg.Sink = sink
	acqCfg.Journal = c.Experiments
	c.Acquisition = acquisition.NewController(acqCfg)

	c.selectObjective(cfg.Objective)
	if names := c.Registry.Names(); len(names) > 0 {
		if err := c.Mode.SetMode(names[0]); err != nil {
			c.logger.Warn("Failed to apply initial channel", "channel", names[0], "error", err)
		}
	}

	c.logger.Info("Coordinator started",
		"channels", c.Registry.Count(),
		"templates", len(c.templates),
		"laser_af", c.Laser != nil,
		"output_dir", cfg.OutputDir)
	return c, nil
}

func (c *Coordinator) selectObjective(name string) {
	if name == "" {
		objs := c.Registry.Objectives()
		if len(objs) == 0 {
			return
		}
		name = objs[0].Name
	}
	if !c.Peripherals.SetObjective(name) {
		c.logger.Warn("Unknown objective", "objective", name)
	}
}

// Dispatch publishes a command on the bus.
func (c *Coordinator) Dispatch(cmd command.Command) {
	c.logger.Debug("Dispatching command", "command", cmd.EventName())
	c.Bus.Publish(cmd)
}

// Templates returns the loaded plan template names, sorted.
func (c *Coordinator) Templates() []string {
	names := make([]string, 0, len(c.templates))
	for name := range c.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BuildPlan binds a template to the channel registry and the current optics:
// the FOV footprint of the selected objective and the current stage Z.
func (c *Coordinator) BuildPlan(name string) (plan.Plan, error) {
	t, ok := c.templates[name]
	if !ok {
		return plan.Plan{}, fmt.Errorf("%w: %s", ErrUnknownTemplate, name)
	}
	return t.Build(c.Registry, c.Optics())
}

// Optics reports the imaging geometry plans are built against.
func (c *Coordinator) Optics() plan.Optics {
	roi := c.Camera.State().ROI
	w, h := c.Peripherals.FOVSizeMM(roi.Width, roi.Height)
	return plan.Optics{FOVWidthMM: w, FOVHeightMM: h, FocusZMM: c.Stage.Position().Z}
}

// Status is a point-in-time view of the microscope for front ends.
type Status struct {
	Mode         string              `json:"mode"`
	Acquisition  string              `json:"acquisition"`
	ExperimentID string              `json:"experiment_id,omitempty"`
	Channel      string              `json:"channel,omitempty"`
	Live         bool                `json:"live"`
	Objective    string              `json:"objective,omitempty"`
	PixelSizeUm  float64             `json:"pixel_size_um"`
	Stage        hardware.Position   `json:"stage"`
	Camera       service.CameraState `json:"camera"`
	StreamFPS    float64             `json:"stream_fps"`
	Frames       int64               `json:"frames"`
}

// Status collects the current state of every component.
func (c *Coordinator) Status() Status {
	s := Status{
		Mode:         c.Gate.Mode().String(),
		Acquisition:  c.Acquisition.State().String(),
		ExperimentID: c.Acquisition.ExperimentID(),
		Live:         c.Live.IsLive(),
		PixelSizeUm:  c.Peripherals.PixelSizeUm(),
		Stage:        c.Stage.Position(),
		Camera:       c.Camera.State(),
		StreamFPS:    c.Stream.FPS(),
		Frames:       c.Stream.FrameCount(),
	}
	if active, ok := c.Mode.Active(); ok {
		s.Channel = active.Name
	}
	if obj, ok := c.Peripherals.Objective(); ok {
		s.Objective = obj.Name
	}
	return s
}

// StartTemplate builds a plan from a template and starts it.
func (c *Coordinator) StartTemplate(name string) (string, error) {
	p, err := c.BuildPlan(name)
	if err != nil {
		return "", err
	}
	return c.Acquisition.Start(p)
}

// Stop shuts every component down in reverse construction order and closes
// the bus. Safe to call more than once.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		c.Acquisition.Shutdown()
		c.Live.Shutdown()
		if c.LaserAF != nil {
			c.LaserAF.Shutdown()
		}
		c.Peripherals.Shutdown()
		c.Mode.Shutdown()

		if err := c.Illumination.AllOff(); err != nil {
			c.logger.Warn("Failed to turn illumination off", "error", err)
		}
		if c.Camera.State().Streaming {
			if err := c.Camera.StopStreaming(); err != nil {
				c.logger.Warn("Failed to stop streaming", "error", err)
			}
		}

		c.Filter.Shutdown()
		c.Piezo.Shutdown()
		c.Peripheral.Shutdown()
		c.Illumination.Shutdown()
		c.Stage.Shutdown()
		c.Camera.Shutdown()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.Stream.Sync(ctx); err != nil {
			c.logger.Warn("Stream handler did not drain", "error", err)
		}
		c.Stream.Close()
		c.Bus.Close()
		c.logger.Info("Coordinator stopped")
	})
}
