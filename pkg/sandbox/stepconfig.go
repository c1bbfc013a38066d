package sandbox

import (
	"fmt"
	"strings"
)

// ConfigFileName is the step-configuration file the external processor
// reads from its working directory.
const ConfigFileName = "topsApp.xml"

// StepConfig describes the generated per-sandbox configuration. The
// rendered property names and the master/slave output directory names
// are an external-tool contract and must not change.
type StepConfig struct {
	// Swaths are the active sub-swaths.
	Swaths []int

	// Unwrap enables phase unwrapping after the final step.
	Unwrap bool

	// Unwrapper selects the unwrap algorithm.
	Unwrapper string

	// TerrainBase is the terrain raster base name, not a full path: the
	// processor resolves names relative to the sandbox directory.
	TerrainBase string

	// Reference and Secondary are the scene identifiers.
	Reference string
	Secondary string
}

// DefaultStepConfig returns the processing defaults for Sentinel-1 IW
// interferometry: all three sub-swaths, unwrapping enabled via
// snaphu_mcf.
func DefaultStepConfig() StepConfig {
	return StepConfig{
		Swaths:    []int{1, 2, 3},
		Unwrap:    true,
		Unwrapper: "snaphu_mcf",
	}
}

// Render produces the configuration document.
func (c StepConfig) Render() string {
	swaths := make([]string, len(c.Swaths))
	for i, s := range c.Swaths {
		swaths[i] = fmt.Sprintf("%d", s)
	}

	unwrap := "False"
	if c.Unwrap {
		unwrap = "True"
	}

	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<topsApp>
<component name="topsinsar">
<property name="sensor name">SENTINEL1</property>
<property name="swaths">[%s]</property>
<property name="do unwrap">%s</property>
<property name="unwrapper name">%s</property>
<property name="demFilename">%s</property>
<component name="reference">
<property name="output directory">master</property>
<property name="safe">%s</property>
</component>
<component name="secondary">
<property name="output directory">slave</property>
<property name="safe">%s</property>
</component>
</component>
</topsApp>
`, strings.Join(swaths, ","), unwrap, c.Unwrapper, c.TerrainBase, c.Reference, c.Secondary)
}
