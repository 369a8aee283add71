package service

import (
	"compress/flate"
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	gstorage "cloud.google.com/go/storage"
	"github.com/airbusgeo/albedo-inversion/common"
	"github.com/airbusgeo/geocube/interface/storage"
	"github.com/airbusgeo/geocube/interface/storage/uri"
	"github.com/mholt/archiver"
)

// Layer of a unit
type Layer string

// List of available layers
const (
	LayerPrior            Layer = "prior"
	LayerInversion        Layer = "inversion"
	LayerInversionNoPrior Layer = "inversion_noprior"
	LayerMerged           Layer = "merged"
	LayerAlbedo           Layer = "albedo"      // computed from the merged product
	LayerAlbedoMode       Layer = "albedo_mode" // computed from the inversion of the snow mode of the unit
	LayerWorkdir          Layer = "workdir"     // The whole working directory (use with ExtensionAll)
)

// Extension of a layer
type Extension string

// Some supported extensions
const (
	NoExtension     Extension = "" // The layer has no extension
	ExtensionENVI   Extension = "bin"
	ExtensionHeader Extension = "hdr"
	ExtensionZIP    Extension = "zip"
	// The content of the whole working directory, stored as a zip file (see service.storeAsZip() function)
	ExtensionAll Extension = "*"
)

const (
	storageTries = 3
	storageDelay = time.Second
)

// isErrNotFound handles the errors of the geocube strategies and of their backends
func isErrNotFound(err error) bool {
	var epath *os.PathError
	return errors.Is(err, storage.ErrFileNotFound) ||
		errors.Is(err, gstorage.ErrObjectNotExist) ||
		(errors.As(err, &epath) && os.IsNotExist(epath))
}

// LayerFileName returns the name of the file given the unit, the layer and the extension
func LayerFileName(unit common.Unit, layer Layer, ext Extension) string {
	var name string
	switch layer {
	case LayerPrior:
		name = common.PriorFileName(unit.Date.DoY, unit.Tile, unit.Mode)
	case LayerInversion:
		name = common.InversionFileName(unit, true)
	case LayerInversionNoPrior:
		name = common.InversionFileName(unit, false)
	case LayerMerged:
		name = common.MergedFileName(unit.Tile, unit.Date)
	case LayerAlbedo:
		name = common.AlbedoFileName(unit.Tile, unit.Date, "")
	case LayerAlbedoMode:
		name = common.AlbedoFileName(unit.Tile, unit.Date, unit.Mode.String())
	default:
		name = fmt.Sprintf("%s_%s", unit.Tag(), layer)
	}
	name = strings.TrimSuffix(name, "."+string(ExtensionENVI))
	if ext == NoExtension || ext == ExtensionAll {
		return name
	}
	return name + "." + string(ext)
}

// Storage is a service to store and retrieve the layers of a unit
type Storage interface {
	// SaveLayer persists the layer into a storage and returns the uri
	SaveLayer(ctx context.Context, unit common.Unit, layer Layer, ext Extension, localdir string) (string, error)
	// ImportLayer imports the layer from the storage to the given localdir
	// Raise ErrFileNotFound
	ImportLayer(ctx context.Context, unit common.Unit, layer Layer, ext Extension, localdir string) error
	// DeleteLayer delete the layer from the storage
	// Raise ErrFileNotFound
	DeleteLayer(ctx context.Context, unit common.Unit, layer Layer, ext Extension) error
}

// ObjectStorage stores files by key, relatively to a root uri
type ObjectStorage interface {
	// Upload uploads the local file to key
	Upload(ctx context.Context, key, localFile string) error
	// Download downloads key to the local file
	// Raise ErrFileNotFound
	Download(ctx context.Context, key, localFile string) error
	// Delete deletes key
	// Raise ErrFileNotFound
	Delete(ctx context.Context, key string) error
}

// StorageStrategy implements Storage and ObjectStorage using geocube.Strategy
type StorageStrategy struct {
	storage storage.Strategy
	uri     uri.DefaultUri
}

// NewStorageStrategy creates a new StorageStrategy (local directory, gs:// or s3://)
func NewStorageStrategy(ctx context.Context, storageURI string) (*StorageStrategy, error) {
	uri, err := uri.ParseUri(storageURI)
	if err != nil {
		return nil, fmt.Errorf("NewStorageStrategy.ParseURI: %w", err)
	}

	storageClient, err := uri.NewStorageStrategy(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewStorageStrategy: %w", err)
	}

	return &StorageStrategy{storage: storageClient, uri: uri}, nil
}

// SaveLayer implements Storage
func (ss *StorageStrategy) SaveLayer(ctx context.Context, unit common.Unit, layer Layer, ext Extension, localdir string) (string, error) {
	src := path.Join(localdir, LayerFileName(unit, layer, ext))

	if storedAsZip(ext) {
		// Zip the content of the localdir.
		files, err := os.ReadDir(localdir)
		if err != nil {
			return "", fmt.Errorf("SaveLayer.Archive: %w", err)
		}
		var folders []string
		for _, f := range files {
			folders = append(folders, path.Join(localdir, f.Name()))
		}
		dst := src + "." + string(ExtensionZIP)
		zipper := archiver.NewZip()
		zipper.CompressionLevel = flate.BestSpeed
		zipper.OverwriteExisting = true
		if err := zipper.Archive(folders, dst); err != nil {
			return "", fmt.Errorf("SaveLayer.Archive: %w", err)
		}
		defer os.Remove(dst)

		// Update source and extension
		src = dst
		ext = ExtensionZIP
	}

	dst := ss.getPath(unit, layer, LayerFileName(unit, layer, ext))
	if err := ss.upload(ctx, src, dst); err != nil {
		return "", fmt.Errorf("SaveLayer.%w", err)
	}
	if ext == ExtensionENVI {
		hdr := ss.getPath(unit, layer, LayerFileName(unit, layer, ExtensionHeader))
		if err := ss.upload(ctx, WithExt(src, ExtensionHeader), hdr); err != nil {
			return "", fmt.Errorf("SaveLayer.%w", err)
		}
	}

	return dst, nil
}

// ImportLayer implements Storage
func (ss *StorageStrategy) ImportLayer(ctx context.Context, unit common.Unit, layer Layer, ext Extension, localdir string) error {
	targetExt := ext
	if storedAsZip(ext) {
		ext = ExtensionZIP
	}

	exts := []Extension{ext}
	if ext == ExtensionENVI {
		exts = append(exts, ExtensionHeader)
	}
	for _, e := range exts {
		layerFileName := LayerFileName(unit, layer, e)
		if err := ss.download(ctx, ss.getPath(unit, layer, layerFileName), path.Join(localdir, layerFileName)); err != nil {
			return fmt.Errorf("ImportLayer.%w", err)
		}
	}

	if ext == ExtensionZIP && targetExt != ExtensionZIP {
		zipFile := path.Join(localdir, LayerFileName(unit, layer, ext))
		defer os.Remove(zipFile)
		zip := archiver.Zip{OverwriteExisting: true, MkdirAll: true}
		if err := zip.Unarchive(zipFile, localdir); err != nil {
			return fmt.Errorf("ImportLayer.Unarchive: %w", err)
		}
	}

	return nil
}

// DeleteLayer implements Storage
func (ss *StorageStrategy) DeleteLayer(ctx context.Context, unit common.Unit, layer Layer, ext Extension) error {
	if storedAsZip(ext) {
		ext = ExtensionZIP
	}
	exts := []Extension{ext}
	if ext == ExtensionENVI {
		exts = append(exts, ExtensionHeader)
	}
	for _, e := range exts {
		if err := ss.Delete(ctx, ss.relPath(unit, layer, LayerFileName(unit, layer, e))); err != nil {
			return fmt.Errorf("DeleteLayer.%w", err)
		}
	}
	return nil
}

// Upload implements ObjectStorage
func (ss *StorageStrategy) Upload(ctx context.Context, key, localFile string) error {
	return ss.upload(ctx, localFile, ss.keyPath(key))
}

// Download implements ObjectStorage
func (ss *StorageStrategy) Download(ctx context.Context, key, localFile string) error {
	return ss.download(ctx, ss.keyPath(key), localFile)
}

// Delete implements ObjectStorage
func (ss *StorageStrategy) Delete(ctx context.Context, key string) error {
	file := ss.keyPath(key)
	return Retriable(ctx, func() error {
		if err := ss.storage.Delete(ctx, file); err != nil {
			if isErrNotFound(err) {
				return ErrFileNotFound{file}
			}
			return MakeTemporary(fmt.Errorf("Delete %s: %w", file, err))
		}
		return nil
	}, storageDelay, storageTries)
}

func (ss *StorageStrategy) upload(ctx context.Context, src, dst string) error {
	return Retriable(ctx, func() error {
		f, err := os.Open(src)
		if err != nil {
			return MakeFatal(fmt.Errorf("Open: %w", err))
		}
		defer f.Close()
		if err := ss.storage.UploadFile(ctx, dst, f); err != nil {
			return MakeTemporary(fmt.Errorf("UploadFile to %s: %w", dst, err))
		}
		return nil
	}, storageDelay, storageTries)
}

func (ss *StorageStrategy) download(ctx context.Context, src, dst string) error {
	return Retriable(ctx, func() error {
		if err := ss.storage.DownloadToFile(ctx, src, dst); err != nil {
			if isErrNotFound(err) {
				return ErrFileNotFound{src}
			}
			return MakeTemporary(fmt.Errorf("DownloadToFile from %s: %w", src, err))
		}
		return nil
	}, storageDelay, storageTries)
}

// relPath returns the path of the layer of the unit, relatively to the root uri
// Priors: <tile>/<file>, products: <layer>/<year>/<tile>/<file>
func (ss *StorageStrategy) relPath(unit common.Unit, layer Layer, filename string) string {
	if layer == LayerPrior {
		return path.Join(unit.Tile.String(), filename)
	}
	return path.Join(string(layer), fmt.Sprintf("%04d", unit.Date.Year), unit.Tile.String(), filename)
}

// getPath returns the full path of the layer of the unit
func (ss *StorageStrategy) getPath(unit common.Unit, layer Layer, filename string) string {
	return ss.keyPath(ss.relPath(unit, layer, filename))
}

func (ss *StorageStrategy) keyPath(key string) string {
	uri := ss.uri.String()
	if !strings.HasSuffix(uri, "/") {
		uri += "/"
	}
	return uri + key
}

func storedAsZip(ext Extension) bool {
	return ext == ExtensionAll
}

// WithExt replaces the extension of the file
func WithExt(filePath string, ext Extension) string {
	filePath = strings.TrimSuffix(filePath, filepath.Ext(filePath))
	if ext != "" {
		return fmt.Sprintf("%s.%s", filePath, string(ext))
	}
	return filePath
}
