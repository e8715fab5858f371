// Package reporter implements the sinks that consumed records are handed to.
package reporter

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mitchellh/mapstructure"

	"firestige.xyz/sourcewatch/internal/core"
)

// Reporter delivers consumed records somewhere an operator can see them.
// Report is only ever called from the consumer goroutine.
type Reporter interface {
	Name() string
	Report(ctx context.Context, rec core.SourceAddr) error
	Close() error
}

// Factory builds a reporter from its free-form options.
type Factory func(options map[string]any) (Reporter, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{
		LogName:   NewLogReporter,
		KafkaName: NewKafkaReporter,
	}
)

// Register adds a reporter type. It panics on a duplicate name.
func Register(typ string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	if _, dup := factories[typ]; dup {
		panic("reporter: Register called twice for " + typ)
	}
	factories[typ] = f
}

// New creates a reporter by type name.
func New(typ string, options map[string]any) (Reporter, error) {
	mu.RLock()
	f, ok := factories[typ]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: unknown reporter type %q (available: %s)",
			core.ErrConfigInvalid, typ, strings.Join(Types(), ", "))
	}
	return f(options)
}

// Types lists the registered reporter types.
func Types() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// decodeOptions decodes free-form options into a typed config struct.
// Strings are accepted for durations and numbers so env and YAML values
// behave the same.
func decodeOptions(options map[string]any, out any) error {
	if options == nil {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(options); err != nil {
		return fmt.Errorf("%w: %v", core.ErrConfigInvalid, err)
	}
	return nil
}

// record is the wire shape shared by encoded reporters.
type record struct {
	Addr        string `json:"addr"`
	AddrRaw     uint32 `json:"addr_raw"`
	Port        uint16 `json:"port"`
	TimestampMs int64  `json:"timestamp_ms"`
}

func newRecord(rec core.SourceAddr, ts time.Time) record {
	return record{
		Addr:        rec.IP().String(),
		AddrRaw:     rec.Addr,
		Port:        rec.Port,
		TimestampMs: ts.UnixMilli(),
	}
}
