package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/IshaVasanth24/SmartCrosswalkAssistant/internal/crosswalk"
)

// DefaultConfigPath is the path to the canonical defaults file.
const DefaultConfigPath = "config/crosswalk.defaults.json"

// Narrator kinds.
const (
	NarratorLog     = "log"
	NarratorCommand = "command"
	NarratorDevice  = "device"
)

// CrosswalkConfig is the on-disk configuration. Every field is optional;
// the Get* methods supply defaults for anything left out.
type CrosswalkConfig struct {
	// Decision engine
	Language            *string  `json:"language,omitempty"`
	MovementThresholdPx *float64 `json:"movement_threshold_px,omitempty"`
	AlertCooldown       *string  `json:"alert_cooldown,omitempty"` // duration string like "5s"
	FrameWidth          *int     `json:"frame_width,omitempty"`
	FrameHeight         *int     `json:"frame_height,omitempty"`
	MinConfidence       *float64 `json:"min_confidence,omitempty"`
	CrosswalkRule       *string  `json:"crosswalk_rule,omitempty"`
	BicycleIsVehicle    *bool    `json:"bicycle_is_vehicle,omitempty"`
	CrosswalkLabel      *string  `json:"crosswalk_label,omitempty"`
	PedestrianLabels    []string `json:"pedestrian_labels,omitempty"`

	// Narration
	NarratorTimeout *string  `json:"narrator_timeout,omitempty"`
	Narrator        *string  `json:"narrator,omitempty"`
	SpeechCommand   *string  `json:"speech_command,omitempty"`
	SerialPort      *string  `json:"serial_port,omitempty"`
	SerialBaud      *int     `json:"serial_baud,omitempty"`
	SpeechVolume    *int     `json:"speech_volume,omitempty"`
	SpeechRate      *int     `json:"speech_rate,omitempty"`
	DeviceLanguages []string `json:"device_languages,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }
func ptrBool(v bool) *bool          { return &v }

// DefaultCrosswalkConfig returns a config with every field set to its
// default.
func DefaultCrosswalkConfig() *CrosswalkConfig {
	return &CrosswalkConfig{
		Language:            ptrString("en"),
		MovementThresholdPx: ptrFloat64(crosswalk.DefaultMovementThreshold),
		AlertCooldown:       ptrString("5s"),
		FrameWidth:          ptrInt(640),
		FrameHeight:         ptrInt(384),
		MinConfidence:       ptrFloat64(0.25),
		CrosswalkRule:       ptrString(string(crosswalk.CrosswalkInCenter)),
		BicycleIsVehicle:    ptrBool(true),
		CrosswalkLabel:      ptrString(string(crosswalk.ClassCrosswalk)),
		PedestrianLabels:    []string{"person", "pedestrian"},
		NarratorTimeout:     ptrString("5s"),
		Narrator:            ptrString(NarratorLog),
		SpeechCommand:       ptrString("espeak-ng"),
		SerialPort:          ptrString("/dev/ttyUSB0"),
		SerialBaud:          ptrInt(9600),
		SpeechVolume:        ptrInt(10),
		SpeechRate:          ptrInt(200),
		DeviceLanguages:     []string{"en"},
	}
}

// LoadCrosswalkConfig loads a CrosswalkConfig from a JSON file.
// The file must have a .json extension, be at most 1MB, and contain only
// known fields.
func LoadCrosswalkConfig(path string) (*CrosswalkConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseCrosswalkConfig(data)
}

// ParseCrosswalkConfig decodes and validates JSON configuration.
func ParseCrosswalkConfig(data []byte) (*CrosswalkConfig, error) {
	cfg := &CrosswalkConfig{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath,
// searching the current directory and its parents. Panics if the file
// cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *CrosswalkConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/config/
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadCrosswalkConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *CrosswalkConfig) Validate() error {
	if c.Language != nil {
		if _, err := crosswalk.ParseLanguage(*c.Language); err != nil {
			return fmt.Errorf("language: %w", err)
		}
	}
	if c.MovementThresholdPx != nil && *c.MovementThresholdPx <= 0 {
		return fmt.Errorf("movement_threshold_px must be positive, got %f", *c.MovementThresholdPx)
	}
	for name, v := range map[string]*string{
		"alert_cooldown":   c.AlertCooldown,
		"narrator_timeout": c.NarratorTimeout,
	} {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, *v)
		}
	}
	if c.FrameWidth != nil && *c.FrameWidth <= 0 {
		return fmt.Errorf("frame_width must be positive, got %d", *c.FrameWidth)
	}
	if c.FrameHeight != nil && *c.FrameHeight <= 0 {
		return fmt.Errorf("frame_height must be positive, got %d", *c.FrameHeight)
	}
	if c.MinConfidence != nil && (*c.MinConfidence < 0 || *c.MinConfidence > 1) {
		return fmt.Errorf("min_confidence must be between 0 and 1, got %f", *c.MinConfidence)
	}
	if c.CrosswalkRule != nil {
		switch crosswalk.CrosswalkRule(*c.CrosswalkRule) {
		case crosswalk.CrosswalkInCenter, crosswalk.CrosswalkAnywhere:
		default:
			return fmt.Errorf("crosswalk_rule must be %q or %q, got %q",
				crosswalk.CrosswalkInCenter, crosswalk.CrosswalkAnywhere, *c.CrosswalkRule)
		}
	}
	if c.CrosswalkLabel != nil && strings.TrimSpace(*c.CrosswalkLabel) == "" {
		return fmt.Errorf("crosswalk_label must not be empty")
	}
	if c.Narrator != nil {
		switch *c.Narrator {
		case NarratorLog, NarratorCommand, NarratorDevice:
		default:
			return fmt.Errorf("narrator must be one of log, command, device, got %q", *c.Narrator)
		}
	}
	if c.SerialBaud != nil && *c.SerialBaud <= 0 {
		return fmt.Errorf("serial_baud must be positive, got %d", *c.SerialBaud)
	}
	for _, lang := range c.DeviceLanguages {
		if _, err := crosswalk.ParseLanguage(lang); err != nil {
			return fmt.Errorf("device_languages: %w", err)
		}
	}
	return nil
}

// GetLanguage returns the language or the default.
func (c *CrosswalkConfig) GetLanguage() crosswalk.Language {
	if c.Language == nil {
		return crosswalk.DefaultLang
	}
	lang, err := crosswalk.ParseLanguage(*c.Language)
	if err != nil {
		return crosswalk.DefaultLang
	}
	return lang
}

// GetMovementThreshold returns the movement threshold in pixels.
func (c *CrosswalkConfig) GetMovementThreshold() float64 {
	if c.MovementThresholdPx == nil {
		return crosswalk.DefaultMovementThreshold
	}
	return *c.MovementThresholdPx
}

func parseDurationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def
	}
	return d
}

// GetAlertCooldown returns the alert cooldown.
func (c *CrosswalkConfig) GetAlertCooldown() time.Duration {
	return parseDurationOr(c.AlertCooldown, crosswalk.DefaultAlertCooldown)
}

// GetNarratorTimeout returns the bound on a single narration.
func (c *CrosswalkConfig) GetNarratorTimeout() time.Duration {
	return parseDurationOr(c.NarratorTimeout, 5*time.Second)
}

// GetFrameWidth returns the processing width in pixels.
func (c *CrosswalkConfig) GetFrameWidth() int {
	if c.FrameWidth == nil {
		return 640
	}
	return *c.FrameWidth
}

// GetFrameHeight returns the processing height in pixels.
func (c *CrosswalkConfig) GetFrameHeight() int {
	if c.FrameHeight == nil {
		return 384
	}
	return *c.FrameHeight
}

// GetMinConfidence returns the detection confidence floor.
func (c *CrosswalkConfig) GetMinConfidence() float64 {
	if c.MinConfidence == nil {
		return 0.25
	}
	return *c.MinConfidence
}

// GetCrosswalkRule returns where a crosswalk marking must be seen.
func (c *CrosswalkConfig) GetCrosswalkRule() crosswalk.CrosswalkRule {
	if c.CrosswalkRule == nil {
		return crosswalk.CrosswalkInCenter
	}
	return crosswalk.CrosswalkRule(*c.CrosswalkRule)
}

// GetBicycleIsVehicle reports whether bicycles count as dangerous vehicles.
func (c *CrosswalkConfig) GetBicycleIsVehicle() bool {
	if c.BicycleIsVehicle == nil {
		return true
	}
	return *c.BicycleIsVehicle
}

// GetCrosswalkLabel returns the detector label for crosswalk markings.
func (c *CrosswalkConfig) GetCrosswalkLabel() string {
	if c.CrosswalkLabel == nil {
		return string(crosswalk.ClassCrosswalk)
	}
	return *c.CrosswalkLabel
}

// GetPedestrianLabels returns the detector labels treated as pedestrians.
func (c *CrosswalkConfig) GetPedestrianLabels() []string {
	if len(c.PedestrianLabels) == 0 {
		return []string{"person", "pedestrian"}
	}
	return c.PedestrianLabels
}

// GetNarrator returns the narrator kind.
func (c *CrosswalkConfig) GetNarrator() string {
	if c.Narrator == nil {
		return NarratorLog
	}
	return *c.Narrator
}

// GetSpeechCommand returns the external text-to-speech program.
func (c *CrosswalkConfig) GetSpeechCommand() string {
	if c.SpeechCommand == nil {
		return "espeak-ng"
	}
	return *c.SpeechCommand
}

// GetSerialPort returns the speech module device path.
func (c *CrosswalkConfig) GetSerialPort() string {
	if c.SerialPort == nil {
		return "/dev/ttyUSB0"
	}
	return *c.SerialPort
}

// GetSerialBaud returns the speech module baud rate.
func (c *CrosswalkConfig) GetSerialBaud() int {
	if c.SerialBaud == nil {
		return 9600
	}
	return *c.SerialBaud
}

// GetSpeechVolume returns the speech module volume setting.
func (c *CrosswalkConfig) GetSpeechVolume() int {
	if c.SpeechVolume == nil {
		return 10
	}
	return *c.SpeechVolume
}

// GetSpeechRate returns the speech module rate in words per minute.
func (c *CrosswalkConfig) GetSpeechRate() int {
	if c.SpeechRate == nil {
		return 200
	}
	return *c.SpeechRate
}

// GetDeviceLanguages returns the languages the speech module can voice.
func (c *CrosswalkConfig) GetDeviceLanguages() []crosswalk.Language {
	codes := c.DeviceLanguages
	if len(codes) == 0 {
		codes = []string{"en"}
	}
	out := make([]crosswalk.Language, 0, len(codes))
	for _, code := range codes {
		if lang, err := crosswalk.ParseLanguage(code); err == nil {
			out = append(out, lang)
		}
	}
	return out
}

// Taxonomy returns the default detector taxonomy extended with the
// configured crosswalk and pedestrian labels.
func (c *CrosswalkConfig) Taxonomy() crosswalk.Taxonomy {
	tax := crosswalk.DefaultTaxonomy()
	tax[strings.ToLower(strings.TrimSpace(c.GetCrosswalkLabel()))] = crosswalk.ClassCrosswalk
	for _, l := range c.GetPedestrianLabels() {
		tax[strings.ToLower(strings.TrimSpace(l))] = crosswalk.ClassPedestrian
	}
	return tax
}

// ToEngineConfig builds the explicit configuration of the decision engine.
func (c *CrosswalkConfig) ToEngineConfig() crosswalk.Config {
	return crosswalk.Config{
		Language:          c.GetLanguage(),
		MovementThreshold: c.GetMovementThreshold(),
		AlertCooldown:     c.GetAlertCooldown(),
		FrameWidth:        float64(c.GetFrameWidth()),
		FrameHeight:       float64(c.GetFrameHeight()),
		MinConfidence:     c.GetMinConfidence(),
		CrosswalkRule:     c.GetCrosswalkRule(),
		BicycleIsVehicle:  c.GetBicycleIsVehicle(),
		Taxonomy:          c.Taxonomy(),
	}
}
