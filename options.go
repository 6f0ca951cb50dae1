package smr

import (
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/g-m-twostay/go-smr/internal/liveset"
	"github.com/pingcap/errors"
)

type ScanType byte

const (
	// Classic builds a liveset of every published guard and tests each retired node against it.
	Classic ScanType = iota
	// InPlace sorts the retired list and marks the entries each published guard hits.
	InPlace
)

func (s ScanType) String() string {
	if s == InPlace {
		return "inplace"
	}
	return "classic"
}

func (s ScanType) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *ScanType) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "classic":
		*s = Classic
	case "inplace", "in-place":
		*s = InPlace
	default:
		return errors.Errorf("unknown scan type %q", text)
	}
	return nil
}

// LivesetKind selects the index the classic scan builds.
type LivesetKind = liveset.Kind

const (
	LivesetSorted  = liveset.Sorted
	LivesetBTree   = liveset.BTree
	LivesetLLRB    = liveset.LLRB
	LivesetHashSet = liveset.HashSet
	LivesetHashMap = liveset.HashMap
)

type Options struct {
	Name           string      `toml:"name"`            // Label for logs and metrics.
	HazardPointers int         `toml:"hazard-pointers"` // Guards each HP thread may hold at once.
	MaxThreads     int         `toml:"max-threads"`     // Expected number of attached threads, used for sizing.
	ScanThreshold  int         `toml:"scan-threshold"`  // Retired nodes that trigger a scan, 0 derives it from the two above.
	ScanType       ScanType    `toml:"scan-type"`
	Liveset        LivesetKind `toml:"liveset"`
	InitialGuards  int         `toml:"initial-guards"` // Guards a PTB thread takes from the pool on attach.
}

const (
	DefaultHazardPointers = 8
	DefaultMaxThreads     = 100
)

func DefaultOptions() Options {
	return Options{
		Name:           "default",
		HazardPointers: DefaultHazardPointers,
		MaxThreads:     DefaultMaxThreads,
		ScanType:       Classic,
		Liveset:        LivesetSorted,
		InitialGuards:  DefaultHazardPointers,
	}
}

// LoadOptions decodes a toml file over DefaultOptions.
func LoadOptions(path string) (Options, error) {
	opt := DefaultOptions()
	if _, err := toml.DecodeFile(path, &opt); err != nil {
		return opt, errors.Annotatef(err, "load options from %s", path)
	}
	return opt, opt.Validate()
}

func (o Options) Validate() error {
	switch {
	case o.HazardPointers < 1:
		return errors.Annotatef(ErrInvalidOptions, "hazard-pointers must be positive, got %d", o.HazardPointers)
	case o.MaxThreads < 1:
		return errors.Annotatef(ErrInvalidOptions, "max-threads must be positive, got %d", o.MaxThreads)
	case o.ScanThreshold < 0:
		return errors.Annotatef(ErrInvalidOptions, "scan-threshold must not be negative, got %d", o.ScanThreshold)
	case o.InitialGuards < 0:
		return errors.Annotatef(ErrInvalidOptions, "initial-guards must not be negative, got %d", o.InitialGuards)
	case o.ScanType > InPlace:
		return errors.Annotatef(ErrInvalidOptions, "unknown scan type %d", o.ScanType)
	case o.Liveset > LivesetHashMap:
		return errors.Annotatef(ErrInvalidOptions, "unknown liveset kind %d", o.Liveset)
	}
	return nil
}

// Threshold is the retired list length that triggers a scan.
func (o Options) Threshold() int {
	if o.ScanThreshold > 0 {
		return o.ScanThreshold
	}
	return 2 * o.MaxThreads * o.HazardPointers
}
