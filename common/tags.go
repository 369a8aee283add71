package common

// Header description tags of the products
const (
	TagTile           = "tile"
	TagDate           = "date"
	TagSnowMode       = "snowMode"
	TagUsePrior       = "usePrior"
	TagWings          = "wings"
	TagSensors        = "sensors"
	TagPriorScale     = "priorScale"
	TagProcessingDate = "processingDate"
)

// Invalid is the sentinel of invalid values in the rasters
const Invalid = -9999
