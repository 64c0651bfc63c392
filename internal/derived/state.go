// Package derived projects the entity cache into the typed domain model used
// by the rest of the application. Build is pure: it never mutates the cache
// and yields identical output for an unchanged cache.
package derived

import (
	"time"

	"github.com/sakumikko/lammonsaato-sub000/internal/hass"
)

// Source entities for every derived field.
const (
	EntOutdoorTemp      = hass.EntityID("sensor.outdoor_temperature")
	EntElectricityPrice = hass.EntityID("sensor.electricity_price")

	EntSupplyTemp      = hass.EntityID("sensor.heat_pump_supply_temperature")
	EntReturnTemp      = hass.EntityID("sensor.heat_pump_return_temperature")
	EntCompressorSpeed = hass.EntityID("sensor.heat_pump_compressor_speed")
	EntHeatPumpMode    = hass.EntityID("input_text.heat_pump_mode")

	EntPoolTemp       = hass.EntityID("sensor.pool_temperature")
	EntPoolTarget     = hass.EntityID("number.pool_target_temperature")
	EntPoolHeatingOn  = hass.EntityID("binary_sensor.pool_heating_active")
	EntHeatingEnabled = hass.EntityID("input_boolean.pool_heating_enabled")
	EntTotalHours     = hass.EntityID("input_number.pool_heating_total_hours")

	EntScheduleStart     = hass.EntityID("input_datetime.pool_heating_start")
	EntScheduleNextStart = hass.EntityID("input_datetime.pool_heating_next_start")
	EntScheduleEnabled   = hass.EntityID("input_boolean.pool_schedule_enabled")
)

// Heat pump operating modes; anything else parses to ModeAuto.
const (
	ModeAuto    = "auto"
	ModeHeating = "heating"
	ModeOff     = "off"
)

// runningDeltaC is the supply/return differential above which the pump is
// considered running when the compressor speed signal reads zero or is
// missing.
const runningDeltaC = 2.0

// DomainState is the typed aggregate view of the cache. It is recomputed on
// demand and never stored incrementally.
type DomainState struct {
	System   SystemState
	HeatPump HeatPumpState
	Pool     PoolState
	Schedule ScheduleState
}

// SystemState covers site-wide readings.
type SystemState struct {
	OutdoorTemp      float64
	ElectricityPrice float64
}

// HeatPumpState covers the heat pump circuit.
type HeatPumpState struct {
	SupplyTemp      float64
	ReturnTemp      float64
	CompressorSpeed float64
	Mode            string
	Running         bool
}

// PoolState covers the pool heating loop.
type PoolState struct {
	Temperature       float64
	TargetTemperature float64
	HeatingActive     bool
	Enabled           bool
	TotalHours        float64
}

// ScheduleState covers the heating schedule settings.
type ScheduleState struct {
	Enabled   bool
	StartTime string
	NextStart time.Time
}

// Build computes the domain state from the cache. Every field has a defined
// default when its source entity is absent, unknown or unavailable, so the
// dashboard always has something to render. Cost is O(tracked fields).
func Build(r Reader) DomainState {
	supply := numericEntity(r, EntSupplyTemp, 0)
	ret := numericEntity(r, EntReturnTemp, 0)
	speed := numericEntity(r, EntCompressorSpeed, 0)

	return DomainState{
		System: SystemState{
			OutdoorTemp:      numericEntity(r, EntOutdoorTemp, 0),
			ElectricityPrice: numericEntity(r, EntElectricityPrice, 0),
		},
		HeatPump: HeatPumpState{
			SupplyTemp:      supply,
			ReturnTemp:      ret,
			CompressorSpeed: speed,
			Mode:            modeEntity(r, EntHeatPumpMode, []string{ModeAuto, ModeHeating, ModeOff}, ModeAuto),
			Running:         pumpRunning(speed, supply, ret),
		},
		Pool: PoolState{
			Temperature:       numericEntity(r, EntPoolTemp, 0),
			TargetTemperature: numericEntity(r, EntPoolTarget, 0),
			HeatingActive:     boolEntity(r, EntPoolHeatingOn),
			Enabled:           boolEntity(r, EntHeatingEnabled),
			TotalHours:        numericEntity(r, EntTotalHours, 0),
		},
		Schedule: ScheduleState{
			Enabled:   boolEntity(r, EntScheduleEnabled),
			StartTime: timeOfDayEntity(r, EntScheduleStart),
			NextStart: isoTimeEntity(r, EntScheduleNextStart),
		},
	}
}

// pumpRunning prefers the compressor speed signal; when it reads zero or the
// sensor is absent, a positive supply/return differential is the fallback
// heuristic.
func pumpRunning(speed, supply, ret float64) bool {
	if speed > 0 {
		return true
	}
	return supply-ret > runningDeltaC
}
