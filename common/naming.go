package common

import (
	"fmt"
	"strings"
)

//go:generate go run github.com/dmarkham/enumer -json -type Product

// Product defines the kind of raster files handled by the chain
type Product int

const (
	UnknownProduct Product = iota
	BBDR                   // <sensor>/<YYYY>/<tile>/<YYYYDDD>_<suffix>/<band>.img
	Prior                  // Kernels.<DDD>.005.<tile>.backGround.<Snow|NoSnow>.bin
	Inversion              // GlobAlbedo.<YYYYDDD>.<tile>.<Snow|NoSnow>[.NoPrior].bin
	Merged                 // GlobAlbedo.Merge.<YYYYDDD>.<tile>.bin
	Albedo                 // GlobAlbedo.Albedo.<YYYYDDD>.<tile>[.<Snow|NoSnow|Merge>].bin
)

const (
	envExt        = ".bin"
	noPriorSuffix = "NoPrior"
	mergeTag      = "Merge"
	albedoTag     = "Albedo"
)

// PriorFileName returns the file name of the prior of a given doy, tile and mode
func PriorFileName(doy int, tile Tile, mode SnowMode) string {
	return fmt.Sprintf("Kernels.%03d.005.%s.backGround.%s%s", doy, tile, mode, envExt)
}

// InversionFileName returns the file name of an inversion product
func InversionFileName(u Unit, usePrior bool) string {
	if usePrior {
		return fmt.Sprintf("GlobAlbedo.%s.%s.%s%s", u.Date, u.Tile, u.Mode, envExt)
	}
	return fmt.Sprintf("GlobAlbedo.%s.%s.%s.%s%s", u.Date, u.Tile, u.Mode, noPriorSuffix, envExt)
}

// MergedFileName returns the file name of a merged product
func MergedFileName(tile Tile, date Date) string {
	return fmt.Sprintf("GlobAlbedo.%s.%s.%s%s", mergeTag, date, tile, envExt)
}

// AlbedoFileName returns the file name of an albedo product. source is empty for a merged input,
// or the snow mode of the inversion it was computed from.
func AlbedoFileName(tile Tile, date Date, source string) string {
	if source == "" || source == mergeTag {
		return fmt.Sprintf("GlobAlbedo.%s.%s.%s%s", albedoTag, date, tile, envExt)
	}
	return fmt.Sprintf("GlobAlbedo.%s.%s.%s.%s%s", albedoTag, date, tile, source, envExt)
}

// GetProductFromName returns the kind of product from its file name
func GetProductFromName(name string) Product {
	name = strings.TrimSuffix(name, envExt)
	parts := strings.Split(name, ".")
	switch {
	case len(parts) == 6 && parts[0] == "Kernels" && parts[4] == "backGround":
		return Prior
	case len(parts) >= 4 && parts[0] == "GlobAlbedo" && parts[1] == mergeTag:
		return Merged
	case len(parts) >= 4 && parts[0] == "GlobAlbedo" && parts[1] == albedoTag:
		return Albedo
	case len(parts) >= 4 && parts[0] == "GlobAlbedo":
		return Inversion
	case len(name) >= 9 && strings.Contains(name, "_"):
		if isDigits(name[:7]) && name[7] == '_' {
			if _, err := ParseDate(name[:7]); err == nil {
				return BBDR
			}
		}
	}
	return UnknownProduct
}

// Info returns the fields of a product file name
func Info(name string) (map[string]string, error) {
	base := strings.TrimSuffix(name, envExt)
	parts := strings.Split(base, ".")
	switch GetProductFromName(name) {
	case Prior:
		if _, err := ParseTile(parts[3]); err != nil {
			return nil, fmt.Errorf("invalid prior file name: %s", name)
		}
		return map[string]string{
			"PRODUCT":  Prior.String(),
			"DOY":      parts[1],
			"VERSION":  parts[2],
			"TILE":     parts[3],
			"SNOWMODE": parts[5],
		}, nil
	case Inversion:
		if len(parts) < 4 || len(parts[1]) != 7 {
			return nil, fmt.Errorf("invalid inversion file name: %s", name)
		}
		info := map[string]string{
			"PRODUCT":  Inversion.String(),
			"DATE":     parts[1],
			"YEAR":     parts[1][0:4],
			"DOY":      parts[1][4:7],
			"TILE":     parts[2],
			"SNOWMODE": parts[3],
			"PRIOR":    "true",
		}
		if len(parts) > 4 && parts[4] == noPriorSuffix {
			info["PRIOR"] = "false"
		}
		return info, nil
	case Merged, Albedo:
		if len(parts[2]) != 7 {
			return nil, fmt.Errorf("invalid %s file name: %s", strings.ToLower(parts[1]), name)
		}
		info := map[string]string{
			"PRODUCT": GetProductFromName(name).String(),
			"DATE":    parts[2],
			"YEAR":    parts[2][0:4],
			"DOY":     parts[2][4:7],
			"TILE":    parts[3],
		}
		if len(parts) > 4 {
			info["SNOWMODE"] = parts[4]
		}
		return info, nil
	case BBDR:
		return map[string]string{
			"PRODUCT": BBDR.String(),
			"DATE":    base[0:7],
			"YEAR":    base[0:4],
			"DOY":     base[4:7],
			"SUFFIX":  base[8:],
		}, nil
	}
	return nil, fmt.Errorf("Info: product not supported: %s", name)
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

/**
 * FormatBrackets replaces in <str> all {keys} of <info> by the corresponding value
 * keys are the ones returned by Info: PRODUCT, DATE (YEAR/DOY), TILE, SNOWMODE, PRIOR, VERSION, SUFFIX
 */
func FormatBrackets(str string, infos ...map[string]string) string {
	for _, info := range infos {
		for k, v := range info {
			str = strings.ReplaceAll(str, "{"+k+"}", v)
		}
	}
	return str
}
