package actuator

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// PinMap assigns a GPIO pin name (as known to gpioreg, e.g. "GPIO17") to each
// actuator. ActiveLow inverts the level for relay boards that energise on low.
type PinMap struct {
	Fuel        string `json:"fuel" yaml:"fuel"`
	GlowPlugs   string `json:"glow_plugs" yaml:"glow_plugs"`
	Starter     string `json:"starter" yaml:"starter"`
	CoolantPump string `json:"coolant_pump" yaml:"coolant_pump"`
	AltLoad     string `json:"alt_load" yaml:"alt_load"`
	Alarm       string `json:"alarm" yaml:"alarm"`
	ActiveLow   bool   `json:"active_low" yaml:"active_low"`
}

// DefaultPinMap returns the wiring of the reference relay hat.
func DefaultPinMap() PinMap {
	return PinMap{
		Fuel:        "GPIO17",
		GlowPlugs:   "GPIO27",
		Starter:     "GPIO22",
		CoolantPump: "GPIO23",
		AltLoad:     "GPIO24",
		Alarm:       "GPIO25",
	}
}

func (m PinMap) pinName(n Name) string {
	switch n {
	case Fuel:
		return m.Fuel
	case GlowPlugs:
		return m.GlowPlugs
	case Starter:
		return m.Starter
	case CoolantPump:
		return m.CoolantPump
	case AltLoad:
		return m.AltLoad
	case Alarm:
		return m.Alarm
	default:
		return ""
	}
}

// GPIOBank drives actuators through GPIO output pins.
type GPIOBank struct {
	mu        sync.Mutex
	pins      [numActuators]gpio.PinOut
	activeLow bool
	logger    *slog.Logger
}

// InitHost loads the periph host drivers. It must run once before NewGPIOBank
// resolves pins on real hardware.
func InitHost() error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("periph host init: %w", err)
	}
	return nil
}

// NewGPIOBank resolves every pin in m and drives all outputs off.
func NewGPIOBank(m PinMap, logger *slog.Logger) (*GPIOBank, error) {
	if logger == nil {
		logger = slog.Default()
	}
	b := &GPIOBank{activeLow: m.ActiveLow, logger: logger}

	var errs []error
	for _, n := range All() {
		name := m.pinName(n)
		if name == "" {
			errs = append(errs, fmt.Errorf("%s: no pin assigned", n))
			continue
		}
		p := gpioreg.ByName(name)
		if p == nil {
			errs = append(errs, fmt.Errorf("%s: pin %q not found", n, name))
			continue
		}
		b.pins[n] = p
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	for _, n := range All() {
		if err := b.Set(n, false); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// Set implements Bank.
func (b *GPIOBank) Set(n Name, on bool) error {
	if n < 0 || n >= numActuators {
		return fmt.Errorf("unknown actuator %d", int(n))
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	level := gpio.Level(on)
	if b.activeLow {
		level = !level
	}
	if err := b.pins[n].Out(level); err != nil {
		return fmt.Errorf("%s: %w", n, err)
	}
	b.logger.Debug("gpio_out", "actuator", n.String(), "pin", b.pins[n].String(), "level", level.String())
	return nil
}

// Close drives every output off. The alarm is included; callers that need it
// to stay latched should not close the bank.
func (b *GPIOBank) Close() error {
	var errs []error
	for _, n := range All() {
		if err := b.Set(n, false); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
