package domain

import "errors"

// ============================================================================
// Asset Errors
// ============================================================================

var (
	ErrAssetNotFound     = errors.New("asset file not found")
	ErrAssetKindMismatch = errors.New("asset extension does not match its kind")
	ErrInvalidAssetKind  = errors.New("unknown asset kind")
	ErrNotRaster         = errors.New("asset is not a raster")
)

// ============================================================================
// Region Tree Errors
// ============================================================================

var (
	ErrInvalidGeometry = errors.New("region geometry is missing or not polygonal")
	ErrUndefinedCRS    = errors.New("region crs is undefined")
	ErrInvalidLevel    = errors.New("child level must be parent level + 1")
	ErrOrphanAsset     = errors.New("asset has no counterpart on the parent region")
	ErrUnitNotFound    = errors.New("unit not found in boundary dataset")
	ErrMissingRegionID = errors.New("boundary row has no region identifier")
	ErrDuplicateRegion = errors.New("subregion identifier repeats under the same parent")
)

// ============================================================================
// Masking Errors
// ============================================================================

var (
	ErrEmptyPolygon      = errors.New("clip polygon is empty")
	ErrCRSReconciliation = errors.New("crs reconciliation failed")
	ErrEmptyIntersection = errors.New("polygon does not overlap raster")
	ErrIOFailure         = errors.New("raster i/o failure")
	ErrUnsupportedRaster = errors.New("unsupported raster layout")
)

// ============================================================================
// Pipeline Errors
// ============================================================================

// Validation errors
var (
	ErrInvalidConcurrencyMode    = errors.New("concurrency mode must be sequential or bounded-pool")
	ErrInvalidWorkerCount        = errors.New("worker count must be > 0")
	ErrInvalidJobMode            = errors.New("job mode must be tree or flat")
	ErrInvalidRunRequest         = errors.New("invalid run request")
	ErrUnsupportedBoundarySource = errors.New("unsupported boundary source")
)

// Not found errors
var (
	ErrRunNotFound = errors.New("run not found")
)

// State errors
var (
	ErrRunHasNoReport = errors.New("run has no report")
)

// ============================================================================
// Fit Errors
// ============================================================================

var (
	ErrInvalidFitInput      = errors.New("invalid fit input")
	ErrSolverNonConvergence = errors.New("solver did not converge")
)
