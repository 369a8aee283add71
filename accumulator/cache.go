package accumulator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"slices"

	"github.com/airbusgeo/albedo-inversion/brdf"
	"github.com/airbusgeo/albedo-inversion/common"
	"github.com/airbusgeo/albedo-inversion/normaleq"
	"github.com/airbusgeo/albedo-inversion/service"
	"github.com/vmihailenco/msgpack/v5"
)

// Quantity stored in the cache
type Quantity string

// Quantities of a daily accumulator
const (
	QuantityM    Quantity = "M"
	QuantityV    Quantity = "V"
	QuantityE    Quantity = "E"
	QuantityMask Quantity = "mask"
)

// Quantities in the order they are written. The mask is written last: its presence means the entry is complete.
var Quantities = []Quantity{QuantityM, QuantityV, QuantityE, QuantityMask}

var (
	// ErrCacheMiss is returned when an entry is not in the cache
	ErrCacheMiss = errors.New("cache miss")
	// ErrCorrupt is returned when an entry cannot be decoded
	ErrCorrupt = errors.New("corrupt cache entry")
)

// Key of an object of the cache
type Key struct {
	Tile     common.Tile
	Date     common.Date
	Mode     common.SnowMode
	Quantity Quantity
}

// Path returns the key of the object: accumulators/<year>/<tile>/<mode>/<Q>_<YYYYDDD>.msgpack
func (k Key) Path() string {
	return path.Join("accumulators", fmt.Sprintf("%04d", k.Date.Year), k.Tile.String(), k.Mode.String(),
		fmt.Sprintf("%s_%s.msgpack", k.Quantity, k.Date))
}

// Array is a n-dimensional array, row-major
type Array struct {
	Shape []int     `msgpack:"shape"`
	Data  []float32 `msgpack:"data"`
}

// Cache of the daily accumulators, stored in an object storage
type Cache struct {
	Storage service.ObjectStorage
	// Workdir for temporary files (default: os.TempDir())
	Workdir string
}

// NewCache creates a cache on the storage
func NewCache(storage service.ObjectStorage, workdir string) *Cache {
	return &Cache{Storage: storage, Workdir: workdir}
}

func shapes(width, height int) map[Quantity][]int {
	return map[Quantity][]int{
		QuantityM:    {brdf.NumParams, brdf.NumParams, height, width},
		QuantityV:    {brdf.NumParams, height, width},
		QuantityE:    {height, width},
		QuantityMask: {height, width},
	}
}

func planes(c *normaleq.Contribution) map[Quantity]*[]float32 {
	return map[Quantity]*[]float32{
		QuantityM:    &c.M,
		QuantityV:    &c.V,
		QuantityE:    &c.E,
		QuantityMask: &c.Mask,
	}
}

// Put writes the daily accumulator of {tile, date, mode}
func (c *Cache) Put(ctx context.Context, tile common.Tile, date common.Date, mode common.SnowMode, contrib *normaleq.Contribution) error {
	sh := shapes(contrib.Width, contrib.Height)
	pl := planes(contrib)
	for _, q := range Quantities {
		key := Key{Tile: tile, Date: date, Mode: mode, Quantity: q}
		if err := c.put(ctx, key, &Array{Shape: sh[q], Data: *pl[q]}); err != nil {
			return fmt.Errorf("Cache.Put[%s].%w", key.Path(), err)
		}
	}
	return nil
}

// put encodes the array in a temporary file, then uploads it
func (c *Cache) put(ctx context.Context, key Key, a *Array) error {
	f, err := os.CreateTemp(c.Workdir, "acc-*.msgpack")
	if err != nil {
		return fmt.Errorf("put.%w", err)
	}
	defer os.Remove(f.Name())

	if err := msgpack.NewEncoder(f).Encode(a); err != nil {
		f.Close()
		return fmt.Errorf("put.Encode: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("put.Close: %w", err)
	}
	return c.Storage.Upload(ctx, key.Path(), f.Name())
}

// Get reads the daily accumulator of {tile, date, mode}.
// Raise ErrCacheMiss if the entry does not exist and ErrCorrupt if it cannot be decoded.
func (c *Cache) Get(ctx context.Context, tile common.Tile, date common.Date, mode common.SnowMode) (*normaleq.Contribution, error) {
	// The mask carries the shape of the raster
	mask, err := c.get(ctx, Key{Tile: tile, Date: date, Mode: mode, Quantity: QuantityMask})
	if err != nil {
		return nil, fmt.Errorf("Cache.Get.%w", err)
	}
	if len(mask.Shape) != 2 {
		return nil, fmt.Errorf("Cache.Get: invalid mask shape %v: %w", mask.Shape, ErrCorrupt)
	}
	contrib := &normaleq.Contribution{Width: mask.Shape[1], Height: mask.Shape[0], Mask: mask.Data}

	sh := shapes(contrib.Width, contrib.Height)
	pl := planes(contrib)
	for _, q := range Quantities[:len(Quantities)-1] {
		key := Key{Tile: tile, Date: date, Mode: mode, Quantity: q}
		a, err := c.get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("Cache.Get.%w", err)
		}
		if !slices.Equal(a.Shape, sh[q]) || len(a.Data) != size(sh[q]) {
			return nil, fmt.Errorf("Cache.Get[%s]: shape %v, expecting %v: %w", key.Path(), a.Shape, sh[q], ErrCorrupt)
		}
		*pl[q] = a.Data
	}
	if len(contrib.Mask) != contrib.Size() {
		return nil, fmt.Errorf("Cache.Get: invalid mask: %w", ErrCorrupt)
	}
	return contrib, nil
}

// Has returns true if the entry {tile, date, mode} is complete
func (c *Cache) Has(ctx context.Context, tile common.Tile, date common.Date, mode common.SnowMode) (bool, error) {
	if _, err := c.get(ctx, Key{Tile: tile, Date: date, Mode: mode, Quantity: QuantityMask}); err != nil {
		if errors.Is(err, ErrCacheMiss) || errors.Is(err, ErrCorrupt) {
			return false, nil
		}
		return false, fmt.Errorf("Cache.Has.%w", err)
	}
	return true, nil
}

func (c *Cache) get(ctx context.Context, key Key) (*Array, error) {
	f, err := os.CreateTemp(c.Workdir, "acc-*.msgpack")
	if err != nil {
		return nil, fmt.Errorf("get.%w", err)
	}
	f.Close()
	defer os.Remove(f.Name())

	if err := c.Storage.Download(ctx, key.Path(), f.Name()); err != nil {
		if service.IsNotFound(err) {
			return nil, fmt.Errorf("get[%s]: %w", key.Path(), ErrCacheMiss)
		}
		return nil, fmt.Errorf("get[%s].%w", key.Path(), err)
	}

	if f, err = os.Open(f.Name()); err != nil {
		return nil, fmt.Errorf("get.%w", err)
	}
	defer f.Close()
	var a Array
	if err := msgpack.NewDecoder(f).Decode(&a); err != nil {
		return nil, fmt.Errorf("get[%s]: %v: %w", key.Path(), err, ErrCorrupt)
	}
	return &a, nil
}

func size(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}
