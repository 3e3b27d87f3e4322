package alarming

import (
	"fmt"
	"strings"

	"github.com/smukkama/helmet-monitor/internal/reading"
)

// Severity of an advisory
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
)

// Dimensions evaluated, in display order
const (
	DimensionCO          = "co"
	DimensionSmoke       = "smoke"
	DimensionTemperature = "temperature"
	DimensionPressure    = "pressure"
	DimensionHumidity    = "humidity"
	DimensionOverall     = "overall"
)

// Thresholds
const (
	alertCountUrgent = 5

	temperatureCritical = 40.0
	temperatureWarning  = 35.0

	pressureCritical = 300.0
	pressureWarning  = 500.0

	humidityDry   = 20.0
	humidityHumid = 80.0
)

// Advisory is a severity-tagged message about a person's latest state
type Advisory struct {
	Severity  Severity `json:"severity"`
	Dimension string   `json:"dimension"`
	Message   string   `json:"message"`
}

// AllClearMessage is emitted when no rule fires
const AllClearMessage = "All sensor readings are within safe and expected ranges."

// Evaluate applies the threshold ladders to the latest reading and the
// person's cumulative gas alert counts. Advisories come out in the fixed
// order CO, smoke, temperature, pressure, humidity; at most one per
// dimension. Dimensions whose value is missing from the reading are skipped.
func Evaluate(latest reading.Reading, mq7Count, mq2Count int) []Advisory {
	var advisories []Advisory

	switch {
	case mq7Count > alertCountUrgent:
		advisories = append(advisories, Advisory{SeverityError, DimensionCO,
			"Urgent: elevated carbon monoxide (MQ-7) alerts detected. Immediate investigation is required."})
	case mq7Count > 0:
		advisories = append(advisories, Advisory{SeverityWarning, DimensionCO,
			"Notice: some CO (MQ-7) alerts recorded. Keep monitoring the air quality."})
	}

	switch {
	case mq2Count > alertCountUrgent:
		advisories = append(advisories, Advisory{SeverityError, DimensionSmoke,
			"Urgent: multiple smoke (MQ-2) alerts detected. Possible fire hazard or pollution. Action required."})
	case mq2Count > 0:
		advisories = append(advisories, Advisory{SeverityWarning, DimensionSmoke,
			"Notice: intermittent smoke (MQ-2) detections. Be alert to changes."})
	}

	if t := latest.Temperature; t != nil {
		switch {
		case *t > temperatureCritical:
			advisories = append(advisories, Advisory{SeverityError, DimensionTemperature,
				fmt.Sprintf("Critical: current temperature is %.1f°C, risk of overheating. Ensure cooling and proper airflow.", *t)})
		case *t > temperatureWarning:
			advisories = append(advisories, Advisory{SeverityWarning, DimensionTemperature,
				fmt.Sprintf("Warning: high temperature at %.1f°C may affect comfort and equipment reliability.", *t)})
		}
	}

	if p := latest.Pressure; p != nil {
		switch {
		case *p < pressureCritical:
			advisories = append(advisories, Advisory{SeverityError, DimensionPressure,
				fmt.Sprintf("Critical: pressure is low (%.1f hPa), oxygen tank likely empty. Replace immediately.", *p)})
		case *p < pressureWarning:
			advisories = append(advisories, Advisory{SeverityWarning, DimensionPressure,
				fmt.Sprintf("Warning: pressure dropping (%.1f hPa). Monitor for declining oxygen supply.", *p)})
		}
	}

	if h := latest.Humidity; h != nil {
		switch {
		case *h < humidityDry:
			advisories = append(advisories, Advisory{SeverityInfo, DimensionHumidity,
				fmt.Sprintf("Dry conditions: humidity is low (%.1f%%). Advise hydration and comfort measures.", *h)})
		case *h > humidityHumid:
			advisories = append(advisories, Advisory{SeverityInfo, DimensionHumidity,
				fmt.Sprintf("High humidity: reading is %.1f%%, risk of condensation in electronics. Check waterproofing.", *h)})
		}
	}

	if len(advisories) == 0 {
		advisories = append(advisories, Advisory{SeveritySuccess, DimensionOverall, AllClearMessage})
	}

	return advisories
}

// Highest returns the most severe level among advisories
func Highest(advisories []Advisory) Severity {
	highest := SeveritySuccess
	for _, a := range advisories {
		if rank(a.Severity) > rank(highest) {
			highest = a.Severity
		}
	}
	return highest
}

// Fingerprint identifies the set of actionable (error and warning) advisories.
// It is empty when nothing actionable fired.
func Fingerprint(advisories []Advisory) string {
	var parts []string
	for _, a := range advisories {
		if a.Severity == SeverityError || a.Severity == SeverityWarning {
			parts = append(parts, a.Dimension+"="+string(a.Severity))
		}
	}
	return strings.Join(parts, ",")
}

func rank(s Severity) int {
	switch s {
	case SeverityError:
		return 3
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}
