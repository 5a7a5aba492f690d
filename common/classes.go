package common

// Class is a discrete ice surface class label.
type Class int16

const (
	ClassNone       Class = 0 // unclassified (outside mask or invalid pixel)
	ClassSnow       Class = 1
	ClassWater      Class = 2
	ClassCryoconite Class = 3
	ClassCleanIce   Class = 4
	ClassLightAlgae Class = 5
	ClassHeavyAlgae Class = 6
)

// NoData is the fill value used for all variables on encoded outputs.
const NoData = -9999

var classNames = map[Class]string{
	ClassSnow:       "SN",
	ClassWater:      "WAT",
	ClassCryoconite: "CC",
	ClassCleanIce:   "CI",
	ClassLightAlgae: "LA",
	ClassHeavyAlgae: "HA",
}

func (c Class) String() string {
	if s, ok := classNames[c]; ok {
		return s
	}
	return "NONE"
}

// Classes returns the class labels in legend order.
func Classes() []Class {
	return []Class{ClassSnow, ClassWater, ClassCryoconite, ClassCleanIce, ClassLightAlgae, ClassHeavyAlgae}
}

// ClassLegend maps class values to their legend keys, for dataset metadata.
func ClassLegend() map[string]string {
	return map[string]string{
		"1": "Snow", "2": "Water", "3": "Cryoconite",
		"4": "Clean Ice", "5": "Light Algae", "6": "Heavy Algae",
	}
}
